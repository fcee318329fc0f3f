package sshserver

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"pkt.systems/labterm/schema"
)

// renderStatusBar draws "lab <id> | <mm:ss> remaining | <state>" across the full width.
func renderStatusBar(snap schema.SessionSnapshot, notice string, width int, theme tuiTheme) string {
	if width <= 0 {
		return ""
	}
	lab := string(snap.LabID)
	if lab == "" {
		lab = "-"
	}
	text := fmt.Sprintf(" lab %s | %s remaining | %s", lab, formatRemaining(snap.RemainingSeconds), statusLabel(snap))
	if notice != "" {
		text += " | " + notice
	}
	text = trimToWidth(text, width)
	if pad := width - utf8.RuneCountInString(text); pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	fg := theme.StatusFG
	switch {
	case snap.State == schema.SessionTerminated:
		fg = theme.EndedFG
	case snap.State == schema.SessionPaused:
		fg = theme.PausedFG
	case snap.RemainingSeconds <= lowTimeSeconds:
		fg = theme.StatusWarnFG
	}
	return ansiBgRGB(theme.StatusBG) + ansiFgRGB(fg) + text + ansiReset
}

func statusLabel(snap schema.SessionSnapshot) string {
	if snap.State == schema.SessionTerminated && snap.EndReason != "" {
		return fmt.Sprintf("%s (%s)", snap.State, snap.EndReason)
	}
	if snap.State == "" {
		return string(schema.SessionActive)
	}
	return string(snap.State)
}

// formatRemaining renders seconds as mm:ss; minutes are not capped at 59.
func formatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func renderViewport(viewLines []string, width, height int, atBottom bool) []string {
	if height <= 0 {
		return nil
	}
	rendered := make([]string, 0, height)
	if atBottom {
		var flattened []string
		for _, raw := range viewLines {
			flattened = append(flattened, wrapPlainLines(raw, width)...)
		}
		if len(flattened) > height {
			flattened = flattened[len(flattened)-height:]
		}
		rendered = append(rendered, flattened...)
	} else {
		for _, raw := range viewLines {
			for _, line := range wrapPlainLines(raw, width) {
				if len(rendered) >= height {
					break
				}
				rendered = append(rendered, line)
			}
		}
	}
	for len(rendered) < height {
		rendered = append(rendered, "")
	}
	return rendered
}

func stylePromptPrefix(prefix string, theme tuiTheme) string {
	if prefix == "" {
		return ""
	}
	return ansiBold + ansiFgRGB(theme.PromptFG) + prefix + ansiReset
}

func renderInputLines(prefix, input string, cursor, width int) ([]string, int, int) {
	inputRunes := []rune(input)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(inputRunes) {
		cursor = len(inputRunes)
	}
	prefixWidth := visibleWidth(prefix)
	if width <= 0 {
		width = prefixWidth + len(inputRunes) + 1
	}
	prefixVisible := prefix
	if prefixWidth > width {
		prefixVisible = trimANSIToWidth(prefix, width)
		prefixWidth = visibleWidth(prefixVisible)
	}
	indentWidth := prefixWidth
	indent := strings.Repeat(" ", indentWidth)
	availableFirst := width - prefixWidth
	if availableFirst < 1 {
		availableFirst = 1
	}
	availableOther := width - indentWidth
	if availableOther < 1 {
		availableOther = 1
	}

	lines := []string{}
	lineRunes := make([]rune, 0, availableFirst)
	row := 0
	col := 0
	cursorRow := 1
	cursorCol := prefixWidth + 1
	cursorSet := false
	currentAvailable := availableFirst

	flushLine := func() {
		prefixStr := prefixVisible
		if row > 0 {
			prefixStr = indent
		}
		lines = append(lines, prefixStr+string(lineRunes))
		row++
		lineRunes = lineRunes[:0]
		col = 0
		currentAvailable = availableOther
	}

	for i, r := range inputRunes {
		if !cursorSet && i == cursor {
			pfx := prefixWidth
			if row > 0 {
				pfx = indentWidth
			}
			cursorRow = row + 1
			cursorCol = pfx + col + 1
			cursorSet = true
		}
		if r == '\n' {
			flushLine()
			continue
		}
		if col >= currentAvailable {
			flushLine()
		}
		lineRunes = append(lineRunes, r)
		col++
	}
	if !cursorSet && cursor == len(inputRunes) {
		pfx := prefixWidth
		if row > 0 {
			pfx = indentWidth
		}
		cursorRow = row + 1
		cursorCol = pfx + col + 1
	}
	flushLine()
	if cursorCol < 1 {
		cursorCol = 1
	}
	if cursorCol > width {
		cursorCol = width
	}
	return lines, cursorRow, cursorCol
}

func trimToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width])
}

type textToken struct {
	text  string
	space bool
}

func tokenizeText(text string) []textToken {
	if text == "" {
		return nil
	}
	var tokens []textToken
	var buf strings.Builder
	inSpace := false
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		tokens = append(tokens, textToken{text: buf.String(), space: inSpace})
		buf.Reset()
	}
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !inSpace {
				flush()
				inSpace = true
			}
			buf.WriteRune(' ')
			continue
		}
		if inSpace {
			flush()
			inSpace = false
		}
		buf.WriteRune(r)
	}
	flush()
	return tokens
}

func wrapPlainLines(text string, width int) []string {
	if width <= 0 {
		return []string{""}
	}
	sanitized := sanitizeOutputLine(text)
	if sanitized == "" {
		return []string{""}
	}
	tokens := tokenizeText(sanitized)
	lines := make([]string, 0, 4)
	var b strings.Builder
	visible := 0
	suppressLeadingSpace := false
	flush := func(wrapped bool) {
		if b.Len() == 0 {
			return
		}
		lines = append(lines, trimToWidth(b.String(), width))
		b.Reset()
		visible = 0
		suppressLeadingSpace = wrapped
	}
	for _, token := range tokens {
		if token.text == "" {
			continue
		}
		if token.space {
			if visible == 0 && suppressLeadingSpace {
				continue
			}
			spaceLen := len([]rune(token.text))
			if spaceLen <= 0 {
				continue
			}
			if visible+spaceLen > width {
				flush(true)
				continue
			}
			b.WriteString(token.text)
			visible += spaceLen
			continue
		}
		wordRunes := []rune(token.text)
		wordLen := len(wordRunes)
		if wordLen > width {
			if visible > 0 {
				flush(true)
			}
			for start := 0; start < wordLen; start += width {
				end := start + width
				if end > wordLen {
					end = wordLen
				}
				b.WriteString(string(wordRunes[start:end]))
				visible += end - start
				if visible >= width {
					flush(true)
				}
			}
			continue
		}
		if visible+wordLen > width && visible > 0 {
			flush(true)
		}
		b.WriteString(token.text)
		visible += wordLen
		suppressLeadingSpace = false
	}
	flush(false)
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func sanitizeOutputLine(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		ch := text[i]
		if ch == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r == '\r' {
			i += size
			continue
		}
		if r == '\t' {
			b.WriteString("    ")
			i += size
			continue
		}
		if r < 0x20 || r == 0x7f {
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		if i < len(text) {
			return i + 1
		}
		return i
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}
