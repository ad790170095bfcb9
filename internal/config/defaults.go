package config

import (
	"github.com/giantswarm/tokenkit/internal/endpoint"
	"github.com/giantswarm/tokenkit/internal/listener"
)

// DefaultVersion is the protocol version used when neither the file nor the
// profile sets one.
const DefaultVersion = 2

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		Host:        endpoint.DefaultHost,
		Version:     DefaultVersion,
		RedirectURI: listener.DefaultRedirectURI,
	}
}
