package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInputs() Inputs {
	return Inputs{
		Version:  2,
		Host:     "https://login.microsoftonline.com/",
		Tenant:   "contoso",
		AuthType: "client_credentials",
		Client: ClientIdentity{
			ClientID:       "11111111-1111-1111-1111-111111111111",
			CredentialKind: "secret",
		},
		Scopes:        []string{"https://management.example.com/.default"},
		AuthorizeArgs: map[string]string{"prompt": "login"},
		TokenArgs:     map[string]string{"claims": "x", "foo": "bar"},
	}
}

func TestHash_Deterministic(t *testing.T) {
	first := Hash(baseInputs())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Hash(baseInputs()))
	}

	// Map construction order must not matter.
	in := baseInputs()
	in.TokenArgs = map[string]string{"foo": "bar", "claims": "x"}
	assert.Equal(t, first, Hash(in))

	require.Len(t, first, 32)
	assert.True(t, IsHash(first))
}

func TestHash_NormalizesHostAndTenant(t *testing.T) {
	in := baseInputs()
	in.Host = "https://LOGIN.microsoftonline.com"
	in.Tenant = "Contoso"
	assert.Equal(t, Hash(baseInputs()), Hash(in))
}

func TestHash_DiffersOnAnySingleField(t *testing.T) {
	base := Hash(baseInputs())

	mutations := map[string]func(*Inputs){
		"version":         func(in *Inputs) { in.Version = 1 },
		"host":            func(in *Inputs) { in.Host = "https://login.microsoftonline.us/" },
		"tenant":          func(in *Inputs) { in.Tenant = "fabrikam" },
		"auth type":       func(in *Inputs) { in.AuthType = "device_code" },
		"client id":       func(in *Inputs) { in.Client.ClientID = "22222222-2222-2222-2222-222222222222" },
		"username":        func(in *Inputs) { in.Client.Username = "user@contoso.com" },
		"thumbprint":      func(in *Inputs) { in.Client.CertificateThumbprint = "abcd" },
		"assertion":       func(in *Inputs) { in.Client.Assertion = "user:contoso/alice" },
		"resource":        func(in *Inputs) { in.Resource = "https://management.example.com/" },
		"scope":           func(in *Inputs) { in.Scopes = []string{"https://graph.example.com/.default"} },
		"extra scope":     func(in *Inputs) { in.Scopes = append(in.Scopes, "openid") },
		"authorize arg":   func(in *Inputs) { in.AuthorizeArgs["prompt"] = "consent" },
		"token arg":       func(in *Inputs) { in.TokenArgs["foo"] = "baz" },
		"extra token arg": func(in *Inputs) { in.TokenArgs["new"] = "1" },
	}

	seen := map[string]string{base: "base"}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInputs()
			mutate(&in)
			h := Hash(in)
			assert.NotEqual(t, base, h)
			if other, dup := seen[h]; dup {
				t.Errorf("hash collision between %q and %q", name, other)
			}
			seen[h] = name
		})
	}
}

func TestIsHash(t *testing.T) {
	assert.True(t, IsHash("0123456789abcdef0123456789abcdef"))
	assert.False(t, IsHash("0123456789ABCDEF0123456789ABCDEF"))
	assert.False(t, IsHash("abc"))
	assert.False(t, IsHash("../../../../etc/passwd0123456789a"))
}
