package token

import "github.com/giantswarm/tokenkit/internal/autherr"

// Errors returned by this package. Match them with errors.Is.
var (
	ErrInvalidAuthType           = autherr.ErrInvalidAuthType
	ErrAmbiguousAuthType         = autherr.ErrAmbiguousAuthType
	ErrMissingCredentials        = autherr.ErrMissingCredentials
	ErrMissingListenerCapability = autherr.ErrMissingListenerCapability
	ErrMissingAssertionToken     = autherr.ErrMissingAssertionToken
	ErrAuthorizationDenied       = autherr.ErrAuthorizationDenied
	ErrDeviceCodeExpired         = autherr.ErrDeviceCodeExpired
	ErrInvalidScope              = autherr.ErrInvalidScope
	ErrInvalidEndpoint           = autherr.ErrInvalidEndpoint
	ErrProvider                  = autherr.ErrProvider
	ErrRefreshFailed             = autherr.ErrRefreshFailed
	ErrTokenNotFound             = autherr.ErrTokenNotFound
	ErrTokenInvalid              = autherr.ErrTokenInvalid
	ErrCLINotInstalled           = autherr.ErrCLINotInstalled
	ErrCLINotLoggedIn            = autherr.ErrCLINotLoggedIn
	ErrCLIFailed                 = autherr.ErrCLIFailed
)

// ProviderError is a non-2xx identity provider response. Use errors.As.
type ProviderError = autherr.ProviderError

// CLIError is a classified failure of the CLI-delegated flow. Use errors.As.
type CLIError = autherr.CLIError
