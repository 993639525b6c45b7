// Package cmd implements the contentctl command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/contentctl/internal/config"
	"github.com/3leaps/contentctl/internal/observability"
)

// Exit codes not covered by foundry, from sysexits.h.
const (
	ExitDataErr = 65
	ExitNoInput = 66
)

var (
	cfgFile    string
	hammerFile string
	verbose    bool

	// appConfig is populated by the root PersistentPreRunE.
	appConfig *config.Config
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "contentctl",
	Short: "Upload content into Katello repositories",
	Long: `contentctl pushes local files and object storage inputs into
Katello-compatible content repositories using chunked upload sessions.

Configuration is read from flags, CONTENTCTL_* environment variables,
a config file and built-in defaults, in that order.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/contentctl/config.yaml or ~/.contentctl.yaml)")
	pf.StringVar(&hammerFile, "hammer-config", "", "Import server settings from a hammer CLI config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.StringP("server", "s", "", "Server URL")
	pf.StringP("username", "u", "", "Username")
	pf.StringP("password", "p", "", "Password")
	pf.Bool("insecure", false, "Skip TLS certificate verification")
	pf.String("ca-file", "", "Additional CA bundle (PEM)")
	pf.Float64("rate-limit", 0, "Maximum API calls per second (0 = unlimited)")
	pf.StringP("output", "o", config.OutputText, "Output format: text or jsonl")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
}

// flagKeys maps flags onto config keys. Missing flags are skipped, so
// command-local flags can be listed here too.
var flagKeys = map[string]string{
	"server":     "server.url",
	"username":   "server.username",
	"password":   "server.password",
	"insecure":   "server.insecure_skip_verify",
	"ca-file":    "server.ca_file",
	"rate-limit": "upload.rate_limit",
	"output":     "output.format",
	"log-level":  "logging.level",
	"chunk-size": "upload.chunk_size",
}

// loadSettings resolves configuration for the running command and
// initializes the CLI logger.
func loadSettings(cmd *cobra.Command, _ []string) error {
	v := config.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to bind flags", err)
	}

	if err := config.ReadFile(v, cfgFile); err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read config file", err)
	}
	if hammerFile != "" {
		if err := config.ImportHammerFile(v, hammerFile); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to import hammer config", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := observability.InitCLILogger("contentctl", cfg.Logging.Level, verbose); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid log level", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		observability.CLILogger.Debug("Loaded config file", zap.String("path", used))
	}

	appConfig = cfg
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	_ = observability.InitCLILogger("contentctl", "info", false)
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *ExitError
	if errors.As(err, &ee) {
		if ee.reported {
			observability.CLILogger.Debug(ee.Message, zap.Error(ee.Err))
			return ee.Code
		}
		if ee.Err != nil {
			observability.CLILogger.Error(ee.Message, zap.Error(ee.Err))
		} else {
			observability.CLILogger.Error(ee.Message)
		}
		return ee.Code
	}

	// Flag parsing and argument errors from cobra.
	_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Run '%s --help' for usage.\n", rootCmd.CommandPath())
	return foundry.ExitInvalidArgument
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// reported is set when the command already printed Message.
	reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// reportedError is exitError for failures the command has already
// printed to the user.
func reportedError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err, reported: true}
}
