package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewVersionCmd(t *testing.T) {
	versionCmd := newVersionCmd()

	if versionCmd.Use != "version" {
		t.Errorf("Expected Use to be 'version', got %s", versionCmd.Use)
	}
	if versionCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}
	if versionCmd.Run == nil {
		t.Error("Expected Run function to be set")
	}
}

func TestVersionCommandExecution(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = "1.2.3-test"

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, []string{})

	if !strings.HasPrefix(buf.String(), "tokenkit version 1.2.3-test (") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestVersionCommandShort(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = "1.2.3-test"

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.SetArgs([]string{"--short"})
	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("Error executing version: %v", err)
	}

	if got := buf.String(); got != "1.2.3-test\n" {
		t.Errorf("Expected short output, got %q", got)
	}
}
