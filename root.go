package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/filevault-go/internal/api"
	"github.com/tonimelisma/filevault-go/internal/config"
	"github.com/tonimelisma/filevault-go/internal/credstore"
	"github.com/tonimelisma/filevault-go/internal/metrics"
	"github.com/tonimelisma/filevault-go/internal/netdiag"
	"github.com/tonimelisma/filevault-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// errNotLoggedIn is returned by commands that need a session when there is none.
var errNotLoggedIn = errors.New("not logged in")

// CLIFlags are the persistent flags every command sees.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext bundles everything a command needs. It is built once per
// invocation by the root command's pre-run hook.
type CLIContext struct {
	Cfg     *config.Resolved
	Flags   CLIFlags
	Logger  *slog.Logger
	Target  netdiag.Target
	BaseURL string
	// URLErr is set when no base URL could be resolved. Only doctor runs
	// in that state.
	URLErr   error
	Store    credstore.Store
	Client   *api.Client
	Session  *session.Manager
	Registry *prometheus.Registry

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

type cliContextKey struct{}

// skipContextCommands never touch the server or the credential store.
var skipContextCommands = map[string]bool{
	"help":       true,
	"completion": true,
}

// mustCLIContext returns the CLIContext stored by the pre-run hook.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context not initialized")
	}

	return cc
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Stderr, format, args...)
	}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "filevault",
		Short:   "FileVault storage client",
		Long:    "Sign in to a FileVault server and manage your stored files and folders.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipContextCommands[cmd.Name()] {
				return nil
			}

			cc, err := buildCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok {
				return closeStore(cc)
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API base URL (overrides platform resolution)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newShareCmd())
	cmd.AddCommand(newSharesCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmdirCmd())
	cmd.AddCommand(newThemeCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// buildCLIContext resolves configuration and assembles the store, the
// request pipeline and the session manager.
func buildCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	cfg, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIURL:     flagAPIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Cfg:    cfg,
		Flags:  CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet},
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Stdin:  cmd.InOrStdin(),
		Target: netdiag.Target{
			Platform: cfg.API.Platform,
			Device:   cfg.API.Device,
			Mode:     cfg.API.Mode,
		},
	}

	cc.Logger = buildLogger(cfg, cc.Flags, cc.Stderr)

	cc.BaseURL, cc.URLErr = resolveBaseURL(cfg, cc.Target)
	if cc.URLErr != nil && cmd.Name() != "doctor" {
		return nil, cc.URLErr
	}

	ctx := cmd.Context()

	cc.Store, err = credstore.Open(ctx, cfg.Storage.Backend, cfg.Storage.ResolvedPath(), cc.Logger)
	if err != nil {
		return nil, err
	}

	limiter, err := api.NewBandwidthLimiter(cfg.Network.UploadBandwidthLimit, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cc.Registry = prometheus.NewRegistry()

	cc.Client = api.NewClient(cc.BaseURL, cc.Store, api.Options{
		HTTPClient:   &http.Client{Timeout: cfg.Network.RequestTimeoutDuration()},
		UploadClient: &http.Client{Timeout: cfg.Network.UploadTimeoutDuration()},
		UserAgent:    cfg.Network.UserAgent,
		MaxRetries:   pipelineRetries(cfg.Network.MaxRetries),
		NetworkHints: netdiag.TroubleshootingTips(cc.Target, cc.BaseURL),
		Limiter:      limiter,
		Metrics:      metrics.NewCollector(cc.Registry),
	}, cc.Logger)

	cc.Session = session.NewManager(cc.Client, cc.Store, cc.Logger)

	cc.Logger.Debug("cli context ready",
		slog.String("config", cfg.Path),
		slog.String("base_url", cc.BaseURL),
		slog.String("storage", cfg.Storage.Backend),
	)

	return cc, nil
}

// resolveBaseURL prefers an explicit base URL over platform resolution.
func resolveBaseURL(cfg *config.Resolved, target netdiag.Target) (string, error) {
	if cfg.API.BaseURL != "" {
		return strings.TrimRight(cfg.API.BaseURL, "/"), nil
	}

	return netdiag.ResolveBaseURL(target, netdiag.Endpoints{
		ProductionURL: cfg.API.ProductionURL,
		DevHost:       cfg.API.DevHost,
		DevPort:       cfg.API.DevPort,
		DevScheme:     cfg.API.DevScheme,
	})
}

// pipelineRetries maps the config's retry count onto api.Options, where
// zero selects the default and a negative value disables retries.
func pipelineRetries(n int) int {
	if n == 0 {
		return -1
	}

	return n
}

func closeStore(cc *CLIContext) error {
	closer, ok := cc.Store.(io.Closer)
	if !ok {
		return nil
	}

	if err := closer.Close(); err != nil {
		return fmt.Errorf("closing credential store: %w", err)
	}

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Resolved, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn

	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	printError(os.Stderr, err)
	os.Exit(1)
}

// printError writes err and, when the session is gone, how to get it back.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	var signIn *authFailureError
	if errors.As(err, &signIn) {
		return
	}

	if errors.Is(err, errNotLoggedIn) || api.RequiresLogin(err) {
		fmt.Fprintln(w, "Run 'filevault login' to sign in.")
	}
}
