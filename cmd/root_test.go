package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"serve", "index", "search", "migrate", "report", "version"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestSearchRequiresOwner(t *testing.T) {
	flag := searchCmd.Flags().Lookup("owner")
	if flag == nil {
		t.Fatal("owner flag missing")
	}
	if len(flag.Annotations[cobra.BashCompOneRequiredFlag]) == 0 {
		t.Error("owner flag not marked required")
	}
}
