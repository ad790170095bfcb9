package flow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

func TestSelect_CredentialTable(t *testing.T) {
	tests := []struct {
		password, username, certificate bool
		withListener                    AuthType
		withoutListener                 AuthType
	}{
		{false, false, false, AuthorizationCode, DeviceCode},
		{true, false, false, ClientCredentials, ClientCredentials},
		{false, true, false, AuthorizationCode, ""},
		{false, false, true, ClientCredentials, ClientCredentials},
		{true, true, false, ResourceOwner, ResourceOwner},
		{true, false, true, ClientCredentials, ClientCredentials},
		{false, true, true, ClientCredentials, ClientCredentials},
		{true, true, true, ClientCredentials, ClientCredentials},
	}

	for _, tc := range tests {
		for _, listener := range []bool{true, false} {
			name := fmt.Sprintf("password=%t,username=%t,certificate=%t,listener=%t", tc.password, tc.username, tc.certificate, listener)
			t.Run(name, func(t *testing.T) {
				want := tc.withoutListener
				if listener {
					want = tc.withListener
				}

				got, err := Select(Hints{
					Password:    tc.password,
					Username:    tc.username,
					Certificate: tc.certificate,
					Listener:    listener,
				})
				if want == "" {
					assert.ErrorIs(t, err, autherr.ErrAmbiguousAuthType)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestSelect_OnBehalfOf(t *testing.T) {
	got, err := Select(Hints{Password: true, OnBehalfOf: true, Listener: true})
	require.NoError(t, err)
	assert.Equal(t, OnBehalfOf, got)

	got, err = Select(Hints{Certificate: true, Username: true, OnBehalfOf: true})
	require.NoError(t, err)
	assert.Equal(t, OnBehalfOf, got)

	got, err = Select(Hints{Password: true, Username: true, OnBehalfOf: true})
	require.NoError(t, err)
	assert.Equal(t, ResourceOwner, got)
}

func TestSelect_Explicit(t *testing.T) {
	for _, at := range AuthTypes {
		got, err := Select(Hints{AuthType: string(at), Password: true, Username: true})
		require.NoError(t, err)
		assert.Equal(t, at, got)
	}

	_, err := Select(Hints{AuthType: "implicit"})
	assert.ErrorIs(t, err, autherr.ErrInvalidAuthType)
}

func TestNew(t *testing.T) {
	for _, at := range AuthTypes {
		f, err := New(at)
		require.NoError(t, err)
		assert.Equal(t, at, f.Type())
	}

	_, err := New("saml")
	assert.ErrorIs(t, err, autherr.ErrInvalidAuthType)
}
