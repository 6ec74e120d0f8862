package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestTableContainsCells(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	out := Table([]string{"NAME", "STATE"}, [][]string{{"eth0", State(true)}, {"wlan0", State(false)}})
	for _, want := range []string{"NAME", "STATE", "eth0", "up", "wlan0", "down"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestList(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	if got := List(nil); got != "-" {
		t.Errorf("List(nil) = %q, want -", got)
	}
	if got := List([]string{"a", "b"}); got != "a, b" {
		t.Errorf("List = %q", got)
	}
}

func TestConfigureColorDisabled(t *testing.T) {
	ConfigureColor(true)
	if got := lipgloss.ColorProfile(); got != termenv.Ascii {
		t.Errorf("ColorProfile() = %v, want Ascii", got)
	}
	if got := SuccessMsg("done %d", 1); got != "✓ done 1" {
		t.Errorf("SuccessMsg = %q", got)
	}
}
