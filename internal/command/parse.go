package command

import (
	"strings"
)

// Command represents a parsed shell line.
type Command struct {
	// Name is the lower-cased command name used for lookup.
	Name string
	// Typed is the command name exactly as entered.
	Typed string
	Args  []string
	Raw   string
	// Remainder is the text after the command name with inner spacing kept.
	Remainder string
}

// Parse splits a shell line into a command name and arguments. It returns
// false when the line is blank.
func Parse(input string) (Command, bool) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, false
	}
	fields := strings.Fields(raw)
	return Command{
		Name:      strings.ToLower(fields[0]),
		Typed:     fields[0],
		Args:      fields[1:],
		Raw:       raw,
		Remainder: strings.TrimSpace(raw[len(fields[0]):]),
	}, true
}
