package flow

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/giantswarm/tokenkit/internal/autherr"
	"github.com/giantswarm/tokenkit/pkg/logging"
)

// CLICommand is the external tool used by the CLI-delegated flow.
const CLICommand = "az"

// cliTimeLayout is the local time layout of the legacy expiresOn field.
const cliTimeLayout = "2006-01-02 15:04:05.999999"

// CommandRunner runs an external command and returns its output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// cliFieldNames maps the CLI output to provider field names.
var cliFieldNames = map[string]string{
	"accessToken":  "access_token",
	"tokenType":    "token_type",
	"expires_on":   "expires_on",
	"subscription": "subscription",
	"tenant":       "tenant",
}

type cliFlow struct{}

func (cliFlow) Type() AuthType { return CLI }

func (cliFlow) Acquire(ctx context.Context, req *Request) (*Response, error) {
	runner := req.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	args := CLIArgs(req)
	logging.Debug("Flow", "Running %s %s", CLICommand, strings.Join(args, " "))

	requestedAt := req.now()
	stdout, stderr, err := runner.Run(ctx, CLICommand, args...)
	if err != nil {
		return nil, classifyCLIError(err, stderr)
	}

	raw, err := decodeObject(stdout)
	if err != nil {
		return nil, &autherr.CLIError{Kind: autherr.ErrCLIFailed, Stderr: string(stderr), Err: err}
	}

	fields, err := remapCLIFields(raw)
	if err != nil {
		return nil, &autherr.CLIError{Kind: autherr.ErrCLIFailed, Err: err}
	}
	return &Response{Fields: fields, RequestedAt: requestedAt}, nil
}

// CLIArgs returns the arguments for az account get-access-token.
func CLIArgs(req *Request) []string {
	args := []string{"account", "get-access-token", "--output", "json"}
	if req.Version == 1 {
		args = append(args, "--resource", req.Resource)
	} else {
		args = append(args, "--scope")
		args = append(args, req.Scopes...)
	}
	switch req.Tenant {
	case "", "common", "organizations", "consumers":
	default:
		args = append(args, "--tenant", req.Tenant)
	}
	return args
}

func classifyCLIError(err error, stderr []byte) error {
	msg := string(stderr)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return &autherr.CLIError{Kind: autherr.ErrCLINotInstalled, Err: err}
	case strings.Contains(msg, "az login"):
		return &autherr.CLIError{Kind: autherr.ErrCLINotLoggedIn, Stderr: msg, Err: err}
	default:
		return &autherr.CLIError{Kind: autherr.ErrCLIFailed, Stderr: msg, Err: err}
	}
}

func remapCLIFields(raw map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if name, ok := cliFieldNames[k]; ok {
			fields[name] = v
		}
	}
	if _, ok := fields["access_token"]; !ok {
		return nil, errors.New("CLI output does not contain an access token")
	}

	if _, ok := fields["expires_on"]; !ok {
		if s, ok := raw["expiresOn"].(string); ok {
			t, err := time.ParseInLocation(cliTimeLayout, s, time.Local)
			if err != nil {
				logging.Warn("Flow", "Ignoring unparseable CLI expiresOn %q", s)
			} else {
				fields["expires_on"] = t.Unix()
			}
		}
	}
	return fields, nil
}
