package sshserver

import (
	"bufio"
	"io"
	"unicode"
	"unicode/utf8"

	"pkt.systems/labterm/schema"
)

// readKeys decodes terminal input into key events until r fails.
// out is closed when reading stops.
func readKeys(r io.Reader, out chan<- schema.Key) {
	defer close(out)
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		if k, ok := controlKeys[b]; ok {
			out <- schema.Key{Kind: k}
			if b == '\r' {
				lastWasCR = true
			}
			continue
		}
		switch {
		case b == 0x1b:
			readEscape(br, out)
		case b < 0x20:
			// unmapped control byte
		case b < utf8.RuneSelf:
			out <- schema.RuneKey(rune(b))
		default:
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return
			}
			if rn == utf8.RuneError {
				continue
			}
			out <- schema.RuneKey(rn)
		}
	}
}

var controlKeys = map[byte]schema.KeyKind{
	'\r': schema.KeyEnter,
	'\n': schema.KeyEnter,
	0x7f: schema.KeyBackspace,
	0x08: schema.KeyBackspace,
	0x01: schema.KeyCtrlA,
	0x03: schema.KeyCtrlC,
	0x04: schema.KeyCtrlD,
	0x05: schema.KeyCtrlE,
	0x09: schema.KeyTab,
	0x0b: schema.KeyCtrlK,
	0x0c: schema.KeyCtrlL,
	0x15: schema.KeyCtrlU,
	0x17: schema.KeyCtrlW,
	0x19: schema.KeyCtrlY,
}

func readEscape(br *bufio.Reader, out chan<- schema.Key) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case '[':
		readCSI(br, out)
	case 'O':
		readSS3(br, out)
	case 'b', 'B':
		out <- schema.Key{Kind: schema.KeyAltB}
	case 'f', 'F':
		out <- schema.Key{Kind: schema.KeyAltF}
	}
}

var csiKeys = map[string]schema.KeyKind{
	"A":  schema.KeyUp,
	"B":  schema.KeyDown,
	"C":  schema.KeyRight,
	"D":  schema.KeyLeft,
	"H":  schema.KeyHome,
	"F":  schema.KeyEnd,
	"1~": schema.KeyHome,
	"7~": schema.KeyHome,
	"4~": schema.KeyEnd,
	"8~": schema.KeyEnd,
	"3~": schema.KeyDelete,
	"5~": schema.KeyPageUp,
	"6~": schema.KeyPageDown,
	// ctrl+arrow moves by word
	"1;5C": schema.KeyAltF,
	"1;5D": schema.KeyAltB,
}

func readCSI(br *bufio.Reader, out chan<- schema.Key) {
	seq := []byte{}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		seq = append(seq, b)
		if b == '~' || unicode.IsLetter(rune(b)) {
			break
		}
		if len(seq) > 8 {
			return
		}
	}
	if k, ok := csiKeys[string(seq)]; ok {
		out <- schema.Key{Kind: k}
	}
}

func readSS3(br *bufio.Reader, out chan<- schema.Key) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	switch b {
	case 'A':
		out <- schema.Key{Kind: schema.KeyUp}
	case 'B':
		out <- schema.Key{Kind: schema.KeyDown}
	case 'C':
		out <- schema.Key{Kind: schema.KeyRight}
	case 'D':
		out <- schema.Key{Kind: schema.KeyLeft}
	case 'H':
		out <- schema.Key{Kind: schema.KeyHome}
	case 'F':
		out <- schema.Key{Kind: schema.KeyEnd}
	}
}
