package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"serve", "local", "users", "config", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	fields := strings.Fields(out.String())
	if len(fields) != 2 {
		t.Fatalf("expected module and version, got %q", out.String())
	}
}
