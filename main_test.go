package main

import (
	"testing"

	"github.com/giantswarm/tokenkit/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}

	cmd.SetVersion("1.2.3")
	defer cmd.SetVersion(version)
	if got := cmd.GetVersion(); got != "1.2.3" {
		t.Errorf("Expected version to be 1.2.3, got %s", got)
	}
}
