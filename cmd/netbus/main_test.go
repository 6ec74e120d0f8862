package main

import (
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	root := rootCmd()
	want := []string{"devices", "connections", "add", "remove", "apply"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"bus", "service", "debug", "no-color"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestAddRequiresID(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"add"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Fatalf("Execute: got %v, want an argument count error", err)
	}
}

func TestAddRejectsUnknownType(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"add", "guest", "--type", "bluetooth", "--no-color"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown connection kind") {
		t.Fatalf("Execute: got %v, want an unknown kind error", err)
	}
}
