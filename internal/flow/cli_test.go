package flow

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokenkit/internal/autherr"
)

type fakeRunner struct {
	stdout, stderr string
	err            error
	name           string
	args           []string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	return []byte(r.stdout), []byte(r.stderr), r.err
}

func TestCLI_Success(t *testing.T) {
	runner := &fakeRunner{stdout: `{
		"accessToken": "cli-token",
		"expiresOn": "2026-06-01 10:00:00.000000",
		"expires_on": 1780308000,
		"subscription": "sub-1",
		"tenant": "contoso",
		"tokenType": "Bearer"
	}`}
	req := &Request{Version: 1, Resource: "https://management.example.com/", Tenant: "contoso", Runner: runner, Now: func() time.Time { return testNow }}

	resp, err := cliFlow{}.Acquire(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, CLICommand, runner.name)
	assert.Equal(t, "cli-token", resp.Fields["access_token"])
	assert.Equal(t, "Bearer", resp.Fields["token_type"])
	assert.Equal(t, json.Number("1780308000"), resp.Fields["expires_on"])
	assert.Equal(t, "sub-1", resp.Fields["subscription"])
	assert.NotContains(t, resp.Fields, "accessToken")
	assert.Equal(t, testNow, resp.RequestedAt)
}

func TestCLI_LegacyExpiresOn(t *testing.T) {
	local := time.Date(2026, 6, 1, 10, 0, 0, 0, time.Local)
	runner := &fakeRunner{stdout: `{"accessToken":"t","expiresOn":"2026-06-01 10:00:00.000000","tokenType":"Bearer"}`}

	resp, err := cliFlow{}.Acquire(context.Background(), &Request{Version: 1, Resource: "r", Runner: runner})
	require.NoError(t, err)
	assert.Equal(t, local.Unix(), resp.Fields["expires_on"])
}

func TestCLI_FailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		kind   error
		msg    string
	}{
		{
			name:   "not installed",
			runner: &fakeRunner{err: &exec.Error{Name: "az", Err: exec.ErrNotFound}},
			kind:   autherr.ErrCLINotInstalled,
			msg:    "https://aka.ms/azure-cli",
		},
		{
			name:   "not logged in",
			runner: &fakeRunner{stderr: "ERROR: Please run 'az login' to setup account.", err: errors.New("exit status 1")},
			kind:   autherr.ErrCLINotLoggedIn,
			msg:    "run 'az login'",
		},
		{
			name:   "other",
			runner: &fakeRunner{stderr: "ERROR: AADSTS70043: The refresh token has expired\nmore detail", err: errors.New("exit status 1")},
			kind:   autherr.ErrCLIFailed,
			msg:    "AADSTS70043",
		},
		{
			name:   "garbage output",
			runner: &fakeRunner{stdout: "not json"},
			kind:   autherr.ErrCLIFailed,
		},
		{
			name:   "no token in output",
			runner: &fakeRunner{stdout: `{"tokenType":"Bearer"}`},
			kind:   autherr.ErrCLIFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cliFlow{}.Acquire(context.Background(), &Request{Version: 1, Resource: "r", Runner: tc.runner})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			for _, other := range []error{autherr.ErrCLINotInstalled, autherr.ErrCLINotLoggedIn, autherr.ErrCLIFailed} {
				if other != tc.kind {
					assert.NotErrorIs(t, err, other)
				}
			}
			if tc.msg != "" {
				assert.Contains(t, err.Error(), tc.msg)
			}
		})
	}
}

func TestCLIArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"account", "get-access-token", "--output", "json", "--resource", "https://r/", "--tenant", "contoso"},
		CLIArgs(&Request{Version: 1, Resource: "https://r/", Tenant: "contoso"}))

	assert.Equal(t,
		[]string{"account", "get-access-token", "--output", "json", "--scope", "https://a/.default", "offline_access"},
		CLIArgs(&Request{Version: 2, Scopes: []string{"https://a/.default", "offline_access"}, Tenant: "common"}))
}
