// Package autherr defines the error taxonomy shared by the token engine.
//
// Callers match errors with errors.Is against the sentinels below and with
// errors.As against *ProviderError and *CLIError. pkg/token re-exports the
// sentinels for library users.
package autherr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAuthType is returned when an explicit auth type is not one of the known flows.
	ErrInvalidAuthType = errors.New("invalid authentication type")

	// ErrAmbiguousAuthType is returned when the supplied credentials do not identify a flow.
	ErrAmbiguousAuthType = errors.New("cannot select authentication method from the supplied credentials")

	// ErrMissingCredentials is returned when a flow lacks a credential it requires.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrMissingListenerCapability is returned by the authorization code flow when no
	// code was supplied and no local redirect listener may be started.
	ErrMissingListenerCapability = errors.New("no authorization code supplied and no local listener available")

	// ErrMissingAssertionToken is returned by the on-behalf-of flow without an input token.
	ErrMissingAssertionToken = errors.New("on-behalf-of flow requires an assertion token")

	// ErrAuthorizationDenied is returned when the provider rejects an interactive flow.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrDeviceCodeExpired is returned when the device code validity window passes
	// before the user completes the login.
	ErrDeviceCodeExpired = errors.New("device code expired before authentication completed")

	// ErrInvalidScope is returned for malformed v2 scopes or v1 resources.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidEndpoint is returned when a supplied endpoint does not match its type.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrProvider is matched by every *ProviderError.
	ErrProvider = errors.New("identity provider error")

	// ErrRefreshFailed is returned when a token could not be refreshed.
	// The cache record has been removed by the time the caller sees it.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrTokenNotFound is returned when a token handle has no cache record.
	ErrTokenNotFound = errors.New("no cached token for handle")

	// ErrTokenInvalid is returned when an invalidated token is used again.
	ErrTokenInvalid = errors.New("token has been invalidated")

	// ErrCacheCorrupt marks an unreadable cache record. It is recovered locally and
	// only ever logged.
	ErrCacheCorrupt = errors.New("cache record is corrupt")

	// ErrExpiryUnresolved marks a provider response without any usable expiry. It is
	// recovered locally with a default window and only ever logged.
	ErrExpiryUnresolved = errors.New("token expiry could not be resolved")

	// ErrCLINotInstalled, ErrCLINotLoggedIn and ErrCLIFailed classify failures of the
	// CLI-delegated flow.
	ErrCLINotInstalled = errors.New("azure CLI is not installed")
	ErrCLINotLoggedIn  = errors.New("azure CLI is not logged in")
	ErrCLIFailed       = errors.New("azure CLI failed")
)

// ProviderError is a non-2xx response from the token, devicecode or
// managed-identity endpoint.
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
	Body        string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "identity provider returned status %d", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, " - %s", firstLine(e.Description))
	} else if e.Code == "" && e.Body != "" {
		fmt.Fprintf(&b, ": %s", firstLine(e.Body))
	}
	return b.String()
}

// Is lets errors.Is(err, ErrProvider) match any provider error.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// CLIError is a classified failure of the external CLI tool.
type CLIError struct {
	// Kind is one of ErrCLINotInstalled, ErrCLINotLoggedIn or ErrCLIFailed.
	Kind   error
	Stderr string
	Err    error
}

// Error implements the error interface with a user-actionable message.
func (e *CLIError) Error() string {
	switch e.Kind {
	case ErrCLINotInstalled:
		return "azure CLI is not installed or not on PATH; install it from https://aka.ms/azure-cli"
	case ErrCLINotLoggedIn:
		return "azure CLI is not logged in; run 'az login' and retry"
	default:
		msg := "azure CLI failed to return a token"
		if s := strings.TrimSpace(e.Stderr); s != "" {
			msg += ": " + firstLine(s)
		} else if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

// Is matches the classification sentinel.
func (e *CLIError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying process error.
func (e *CLIError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
