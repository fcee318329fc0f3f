package core

import "testing"

func TestLineEditorInsertAndMove(t *testing.T) {
	var e lineEditor
	for _, r := range "dcker" {
		e.InsertRune(r)
	}
	e.MoveStart()
	e.MoveRight()
	e.InsertRune('o')
	if got := e.String(); got != "docker" {
		t.Fatalf("expected docker, got %q", got)
	}
	if e.Cursor() != 2 {
		t.Fatalf("expected cursor 2, got %d", e.Cursor())
	}
}

func TestLineEditorBackspaceDelete(t *testing.T) {
	var e lineEditor
	e.SetString("kubectl")
	e.Backspace()
	if got := e.String(); got != "kubect" {
		t.Fatalf("backspace: got %q", got)
	}
	e.MoveStart()
	e.Delete()
	if got := e.String(); got != "ubect" {
		t.Fatalf("delete: got %q", got)
	}
	e.Clear()
	e.Backspace()
	e.Delete()
	if e.Len() != 0 || e.Cursor() != 0 {
		t.Fatalf("expected empty editor, got %q at %d", e.String(), e.Cursor())
	}
}

func TestLineEditorWordOps(t *testing.T) {
	var e lineEditor
	e.SetString("docker ps -a")
	e.DeleteWordBackward()
	if got := e.String(); got != "docker ps " {
		t.Fatalf("delete word: got %q", got)
	}
	e.MoveWordLeft()
	if e.Cursor() != 7 {
		t.Fatalf("word left: expected cursor 7, got %d", e.Cursor())
	}
	e.KillLineEnd()
	if got := e.String(); got != "docker " {
		t.Fatalf("kill end: got %q", got)
	}
	e.MoveStart()
	e.MoveWordRight()
	if e.Cursor() != 6 {
		t.Fatalf("word right: expected cursor 6, got %d", e.Cursor())
	}
	e.KillLineStart()
	if got := e.String(); got != " " || e.Cursor() != 0 {
		t.Fatalf("kill start: got %q cursor %d", got, e.Cursor())
	}
}
