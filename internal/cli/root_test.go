package cli

import (
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "scenario", "init"} {
		if !names[want] {
			t.Errorf("RootCmd missing subcommand %q", want)
		}
	}
}

func TestRootCommandUse(t *testing.T) {
	if RootCmd.Use != "wrkr" {
		t.Errorf("RootCmd.Use = %q, want wrkr", RootCmd.Use)
	}
}
