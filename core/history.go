package core

import "strings"

const defaultHistoryMax = 200

// historyBuffer holds submitted commands and the recall cursor.
// index is -1 when not navigating, otherwise a valid index into entries.
type historyBuffer struct {
	entries []string
	max     int
	index   int
}

func newHistory(max int) *historyBuffer {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &historyBuffer{max: max, index: -1}
}

// Append records entry and resets the cursor. Blank entries are ignored.
func (h *historyBuffer) Append(entry string) bool {
	if h == nil {
		return false
	}
	h.index = -1
	if strings.TrimSpace(entry) == "" {
		return false
	}
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.max:]...)
	}
	return true
}

// Up moves the cursor toward the oldest entry and returns the recalled entry.
// From -1 it jumps to the newest entry; at 0 it stays at 0.
func (h *historyBuffer) Up() (string, bool) {
	if h == nil || len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.index == -1:
		h.index = len(h.entries) - 1
	case h.index > 0:
		h.index--
	}
	return h.entries[h.index], true
}

// Down moves the cursor toward the newest entry. Moving past the newest entry
// resets the cursor to -1 and reports an empty recall with ok=true.
func (h *historyBuffer) Down() (string, bool) {
	if h == nil || h.index == -1 {
		return "", false
	}
	if h.index+1 >= len(h.entries) {
		h.index = -1
		return "", true
	}
	h.index++
	return h.entries[h.index], true
}

// Index returns the recall cursor.
func (h *historyBuffer) Index() int {
	if h == nil {
		return -1
	}
	return h.index
}

// Len returns the number of entries.
func (h *historyBuffer) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h *historyBuffer) Entries() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.entries...)
}
