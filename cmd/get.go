package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/giantswarm/tokenkit/internal/assertion"
	"github.com/giantswarm/tokenkit/internal/config"
	"github.com/giantswarm/tokenkit/internal/flow"
	"github.com/giantswarm/tokenkit/pkg/token"
)

// EnvPassword supplies --password without putting the secret on the command line.
const EnvPassword = "TOKENKIT_PASSWORD"

// Output formats of the get command.
const (
	outputToken  = "token"
	outputHeader = "header"
	outputJSON   = "json"
)

type getFlags struct {
	version       int
	host          string
	tenant        string
	app           string
	resource      string
	scopes        []string
	authType      string
	username      string
	password      string
	certificate   string
	certPassword  string
	onBehalfOf    string
	authCode      string
	noCache       bool
	noListener    bool
	redirectURI   string
	authorizeArgs map[string]string
	tokenArgs     map[string]string
	output        string
	quiet         bool
}

// newGetCmd creates the command that acquires a token and prints it.
func newGetCmd() *cobra.Command {
	f := &getFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Acquire an access token",
		Long: `Acquire an access token and print it.

The grant type is deduced from the credentials you supply unless --auth-type
is set:
  --username and --password         resource owner password
  no credentials                    authorization code (browser), or device
                                    code with --no-listener
  --password or --certificate       client credentials
  ... plus --on-behalf-of           on-behalf-of exchange

Tokens are cached and refreshed on later invocations with the same request.`,
		Example: `  tokenkit get --tenant contoso --scope https://management.example.com/.default
  tokenkit get --profile work --output header
  TOKENKIT_PASSWORD=... tokenkit get --app $APP --tenant contoso --resource https://graph.example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.version, "protocol", 0, "Protocol version, 1 or 2 (default from config)")
	flags.StringVar(&f.host, "host", "", "Identity provider host")
	flags.StringVar(&f.tenant, "tenant", "", "Tenant ID or domain (default \"common\")")
	flags.StringVar(&f.app, "app", "", "Client (application) ID")
	flags.StringVar(&f.resource, "resource", "", "Resource of a v1 request")
	flags.StringSliceVar(&f.scopes, "scope", nil, "Scopes of a v2 request (repeatable)")
	flags.StringVar(&f.authType, "auth-type", "", "Force a grant type: "+authTypeNames())
	flags.StringVar(&f.username, "username", "", "User name for the resource owner or authorization code flows")
	flags.StringVar(&f.password, "password", "", "Client secret or user password (default $"+EnvPassword+")")
	flags.StringVar(&f.certificate, "certificate", "", "Client certificate, PEM or PFX file")
	flags.StringVar(&f.certPassword, "certificate-password", "", "Password of a PFX certificate")
	flags.StringVar(&f.onBehalfOf, "on-behalf-of", "", "Access token to exchange with the on-behalf-of grant")
	flags.StringVar(&f.authCode, "auth-code", "", "Authorization code obtained out of band")
	flags.BoolVar(&f.noCache, "no-cache", false, "Neither read nor write the token cache")
	flags.BoolVar(&f.noListener, "no-listener", false, "Do not start a local redirect listener")
	flags.StringVar(&f.redirectURI, "redirect-uri", "", "Redirect URI of the authorization code flow")
	flags.StringToStringVar(&f.authorizeArgs, "authorize-arg", nil, "Extra authorize request parameter key=value")
	flags.StringToStringVar(&f.tokenArgs, "token-arg", nil, "Extra token request parameter key=value")
	flags.StringVarP(&f.output, "output", "o", outputToken, "Output format: token, header, json")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress the progress spinner")

	return cmd
}

func authTypeNames() string {
	names := make([]string, 0, len(flow.AuthTypes))
	for _, t := range flow.AuthTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func runGet(cmd *cobra.Command, f *getFlags) error {
	switch f.output {
	case outputToken, outputHeader, outputJSON:
	default:
		return fmt.Errorf("unsupported output format %q", f.output)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := buildOptions(cfg, rootProfile, f, os.Getenv)
	if err != nil {
		return err
	}
	opts.Out = cmd.ErrOrStderr()

	var s *spinner.Spinner
	if !f.quiet && !isInteractive(opts) {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = " Acquiring token..."
		s.Start()
	}

	tok, err := token.Get(cmd.Context(), opts)
	if s != nil {
		if err != nil {
			s.FinalMSG = text.FgRed.Sprint("Failed to acquire token") + "\n"
		}
		s.Stop()
	}
	if err != nil {
		return err
	}

	return printToken(cmd.OutOrStdout(), tok, f.output)
}

// buildOptions layers flags over the selected profile.
func buildOptions(cfg config.Config, profileName string, f *getFlags, getenv func(string) string) (token.Options, error) {
	p, err := cfg.Profile(profileName)
	if err != nil {
		return token.Options{}, err
	}

	opts := token.Options{
		Version:         first(f.version, p.Version),
		Host:            firstString(f.host, p.Host),
		Tenant:          firstString(f.tenant, p.Tenant),
		App:             firstString(f.app, p.App),
		Username:        firstString(f.username, p.Username),
		AuthType:        firstString(f.authType, p.AuthType),
		Password:        firstString(f.password, getenv(EnvPassword)),
		OnBehalfOfToken: f.onBehalfOf,
		AuthCode:        f.authCode,
		DisableCache:    f.noCache,
		DisableListener: f.noListener,
		RedirectURI:     firstString(f.redirectURI, cfg.RedirectURI),
		AuthorizeArgs:   mergeArgs(p.AuthorizeArgs, f.authorizeArgs),
		TokenArgs:       mergeArgs(p.TokenArgs, f.tokenArgs),
	}

	// A target on the command line replaces the profile's target entirely.
	if f.resource != "" || len(f.scopes) > 0 {
		opts.Resource, opts.Scopes = f.resource, f.scopes
	} else {
		opts.Resource, opts.Scopes = p.Resource, p.Scopes
	}

	if f.certificate != "" {
		signer, err := loadCertificate(f.certificate, f.certPassword)
		if err != nil {
			return token.Options{}, err
		}
		opts.Certificate = signer
	}

	if !opts.DisableCache {
		if opts.Store, err = token.OpenStore(cfg.CacheDir); err != nil {
			return token.Options{}, err
		}
	}
	return opts, nil
}

func loadCertificate(path, password string) (token.Signer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pfx", ".p12":
		return assertion.LoadPFX(path, password)
	default:
		return assertion.LoadPEM(path)
	}
}

// isInteractive reports whether the request will prompt the user, in which
// case a spinner would garble the instructions.
func isInteractive(opts token.Options) bool {
	t, err := flow.Select(flow.Hints{
		AuthType:    opts.AuthType,
		Password:    opts.Password != "",
		Username:    opts.Username != "",
		Certificate: opts.Certificate != nil,
		OnBehalfOf:  opts.OnBehalfOfToken != "",
		Listener:    !opts.DisableListener,
	})
	if err != nil {
		return false
	}
	return (t == flow.AuthorizationCode && opts.AuthCode == "") || t == flow.DeviceCode
}

type tokenOutput struct {
	Hash        string    `json:"hash"`
	AuthType    string    `json:"authType"`
	TokenType   string    `json:"tokenType"`
	AccessToken string    `json:"accessToken"`
	ExpiresOn   time.Time `json:"expiresOn,omitzero"`
}

func printToken(w io.Writer, tok *token.Token, format string) error {
	ot := tok.OAuth2()
	switch format {
	case outputHeader:
		_, err := fmt.Fprintf(w, "Authorization: %s %s\n", ot.Type(), ot.AccessToken)
		return err
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tokenOutput{
			Hash:        tok.Hash(),
			AuthType:    string(tok.AuthType()),
			TokenType:   ot.Type(),
			AccessToken: ot.AccessToken,
			ExpiresOn:   tok.Expiry(),
		})
	default:
		_, err := fmt.Fprintln(w, ot.AccessToken)
		return err
	}
}

func first(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeArgs(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
