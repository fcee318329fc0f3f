package schema

// KeyKind identifies a decoded keystroke.
type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyTab
	KeyCtrlA
	KeyCtrlC
	KeyCtrlD
	KeyCtrlE
	KeyCtrlK
	KeyCtrlL
	KeyCtrlU
	KeyCtrlW
	KeyCtrlY
	KeyAltB
	KeyAltF
)

// Key is a single keystroke event. Rune is set for KeyRune only.
type Key struct {
	Kind KeyKind
	Rune rune
}

// RuneKey returns a KeyRune event for r.
func RuneKey(r rune) Key {
	return Key{Kind: KeyRune, Rune: r}
}
