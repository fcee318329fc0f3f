// Package vpath models the simulated working directory of a lab terminal.
//
// A Path is an ordered list of segments below "/". It never touches a real
// file system; the string form is produced only for display.
package vpath

import "strings"

// Path is an absolute virtual path. The zero value is the root.
type Path struct {
	segs []string
}

// Root returns the root path.
func Root() Path {
	return Path{}
}

// Parse interprets s as an absolute path. Empty and "." segments are dropped
// and ".." removes the previous segment, stopping at the root.
func Parse(s string) Path {
	return Root().walk(s)
}

// String renders the path; the root renders as "/".
func (p Path) String() string {
	if len(p.segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.segs, "/")
}

// IsRoot reports whether p is "/".
func (p Path) IsRoot() bool {
	return len(p.segs) == 0
}

// Parent drops the last segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: append([]string(nil), p.segs[:len(p.segs)-1]...)}
}

// Equal reports whether two paths name the same location.
func (p Path) Equal(other Path) bool {
	if len(p.segs) != len(other.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != other.segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is prefix or below it.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}
	for i := range prefix.segs {
		if p.segs[i] != prefix.segs[i] {
			return false
		}
	}
	return true
}

// Resolve applies a cd argument relative to p:
//
//	""  or "~"   home
//	"~/x"        x below home
//	"/x"         x below the root
//	other        segments applied to p in order
func (p Path) Resolve(arg string, home Path) Path {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "" || arg == "~":
		return home.clone()
	case strings.HasPrefix(arg, "~/"):
		return home.walk(arg[2:])
	case strings.HasPrefix(arg, "/"):
		return Root().walk(arg)
	default:
		return p.walk(arg)
	}
}

// Display renders p with the home prefix shortened to "~".
func (p Path) Display(home Path) string {
	if home.IsRoot() || !p.HasPrefix(home) {
		return p.String()
	}
	if p.Equal(home) {
		return "~"
	}
	return "~/" + strings.Join(p.segs[len(home.segs):], "/")
}

func (p Path) walk(rel string) Path {
	out := p.clone()
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			out = out.Parent()
		default:
			out.segs = append(out.segs, seg)
		}
	}
	return out
}

func (p Path) clone() Path {
	if len(p.segs) == 0 {
		return Path{}
	}
	return Path{segs: append([]string(nil), p.segs...)}
}
