package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/tokenkit/internal/config"
	"github.com/giantswarm/tokenkit/pkg/logging"
	"github.com/giantswarm/tokenkit/pkg/token"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates credentials are missing or the CLI session is not logged in.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the identity provider rejected the request.
	ExitCodeAuthFailed = 3
)

var (
	rootDebug      bool
	rootConfigPath string
	rootProfile    string
	rootCacheDir   string
)

// rootCmd represents the base command for the tokenkit application.
var rootCmd = &cobra.Command{
	Use:   "tokenkit",
	Short: "Acquire and cache OAuth 2.0 access tokens",
	Long: `tokenkit acquires OAuth 2.0 access tokens from Microsoft-style identity
providers. It picks the grant type from the credentials you supply, caches
tokens on disk and refreshes them when they expire.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelWarn
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tokenkit version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var providerErr *token.ProviderError
	if errors.As(err, &providerErr) || errors.Is(err, token.ErrAuthorizationDenied) || errors.Is(err, token.ErrDeviceCodeExpired) {
		return ExitCodeAuthFailed
	}

	switch {
	case errors.Is(err, token.ErrMissingCredentials),
		errors.Is(err, token.ErrAmbiguousAuthType),
		errors.Is(err, token.ErrCLINotLoggedIn),
		errors.Is(err, token.ErrTokenNotFound):
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}

// loadConfig reads the configuration selected by the persistent flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(rootConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if rootCacheDir != "" {
		cfg.CacheDir = rootCacheDir
	}
	return cfg, nil
}

// openStore opens the token cache configured for this invocation.
func openStore() (*token.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return token.OpenStore(cfg.CacheDir)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Configuration directory (default $TOKENKIT_CONFIG_DIR or ~/.config/tokenkit)")
	rootCmd.PersistentFlags().StringVar(&rootProfile, "profile", "", "Configuration profile to use")
	rootCmd.PersistentFlags().StringVar(&rootCacheDir, "cache-dir", "", "Token cache directory (default $TOKENKIT_CACHE_DIR or ~/.config/tokenkit/tokens)")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
