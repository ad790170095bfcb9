package flow

import (
	"fmt"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

// Hints describe which credentials the caller supplied.
type Hints struct {
	// AuthType is the explicit auth type, if any.
	AuthType    string
	Password    bool
	Username    bool
	Certificate bool
	OnBehalfOf  bool
	// Listener reports whether a local redirect listener may be started.
	Listener bool
}

// Select deduces the grant type from the supplied credentials.
func Select(h Hints) (AuthType, error) {
	if h.AuthType != "" {
		return ParseAuthType(h.AuthType)
	}

	switch {
	case h.Password && h.Username && !h.Certificate:
		return ResourceOwner, nil

	case !h.Password && !h.Username && !h.Certificate:
		if h.Listener {
			return AuthorizationCode, nil
		}
		return DeviceCode, nil

	case h.Username && !h.Password && !h.Certificate && h.Listener:
		return AuthorizationCode, nil

	case (h.Password && !h.Username) || h.Certificate:
		if h.OnBehalfOf {
			return OnBehalfOf, nil
		}
		return ClientCredentials, nil
	}

	return "", fmt.Errorf("%w: username %t, password %t, certificate %t", autherr.ErrAmbiguousAuthType, h.Username, h.Password, h.Certificate)
}
