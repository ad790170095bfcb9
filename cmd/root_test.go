package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tokenkit/pkg/token"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "tokenkit" {
		t.Errorf("Expected Use to be 'tokenkit', got %s", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}
	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
	for _, name := range []string{"debug", "config-path", "profile", "cache-dir"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s", name)
		}
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "tokenkit version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	if got, want := buf.String(), "tokenkit version 1.0.0\n"; got != want {
		t.Errorf("Expected version output %q, got %q", want, got)
	}
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, expected := range []string{"get", "list", "delete", "clean", "version", "self-update"} {
		if !found[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"provider error", fmt.Errorf("wrapped: %w", &token.ProviderError{StatusCode: 401, Code: "invalid_client"}), ExitCodeAuthFailed},
		{"denied", token.ErrAuthorizationDenied, ExitCodeAuthFailed},
		{"device code expired", token.ErrDeviceCodeExpired, ExitCodeAuthFailed},
		{"missing credentials", fmt.Errorf("x: %w", token.ErrMissingCredentials), ExitCodeAuthRequired},
		{"ambiguous", token.ErrAmbiguousAuthType, ExitCodeAuthRequired},
		{"cli not logged in", token.ErrCLINotLoggedIn, ExitCodeAuthRequired},
		{"not found", token.ErrTokenNotFound, ExitCodeAuthRequired},
		{"refresh failed with provider error", fmt.Errorf("%w: %w", token.ErrRefreshFailed, &token.ProviderError{StatusCode: 400}), ExitCodeAuthFailed},
		{"other", errors.New("boom"), ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
