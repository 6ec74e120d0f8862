package main

import (
	"path/filepath"
	"testing"
)

func TestRootFlags(t *testing.T) {
	cmd := rootCmd()
	for _, name := range []string{"bus", "state", "no-watch"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
	for _, name := range []string{"debug", "config"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
}

func TestPreRunRejectsBadBus(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := rootCmd()
	cmd.SetArgs([]string{"--bus", "nowhere", "--state", filepath.Join(t.TempDir(), "c.db")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for an invalid bus")
	}
}
