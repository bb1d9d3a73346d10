package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/mixwizard-cli/internal/backend"
	cfgpkg "github.com/KaramelBytes/mixwizard-cli/internal/config"
	"github.com/KaramelBytes/mixwizard-cli/internal/logging"
	"github.com/KaramelBytes/mixwizard-cli/internal/statemgr"
	"github.com/KaramelBytes/mixwizard-cli/internal/store"
	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
)

var (
	// Global flags
	cfgFile  string
	debug    bool
	useLocal bool
	// Backend/HTTP flags (override config if set)
	flagBackendURL       string
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int
	flagLogLevel         string

	// Loaded configuration
	cfg *cfgpkg.Global

	timeNow = time.Now
)

var rootCmd = &cobra.Command{
	Use:   "mixwizard",
	Short: "MixWizard CLI: step-by-step marketing mix analysis setup",
	Long: `MixWizard walks an analysis from dataset upload through sheet concatenation, target and
brand selection to model building, persisting the concatenation record to the analysis backend.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.mixwizard/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useLocal, "local", false, "persist concatenation state to the local store instead of the backend")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend-url", "", "analysis backend base URL (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts on 429/5xx; 1 disables retry (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		logging.Init("info", "console")
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("backend-url") && flagBackendURL != "" {
		cfg.BackendURL = flagBackendURL
	}
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("local") {
		cfg.UseLocalStore = useLocal
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
}

// requireConfig returns the loaded configuration or loads it on demand.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// stateBackend is the persistence surface shared by the HTTP client and the
// local store adapter.
type stateBackend interface {
	statemgr.Backend
	ListStates(ctx context.Context) ([]string, error)
}

// openBackend selects the HTTP backend or, with use_local_store, the file
// store under local_store_dir. The returned func releases resources.
func openBackend() (stateBackend, func(), error) {
	c, err := requireConfig()
	if err != nil {
		return nil, nil, err
	}
	if c.UseLocalStore {
		st, err := store.NewFile(expandHome(c.LocalStoreDir))
		if err != nil {
			return nil, nil, err
		}
		l := backend.NewLocal(st)
		return l, func() { _ = l.Close() }, nil
	}
	client, err := backend.NewClient(backend.Options{
		BaseURL:          c.BackendURL,
		Timeout:          time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMaxAttempts: c.RetryMaxAttempts,
		RetryBaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		RetryMaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}

// newManager wraps openBackend in a state manager.
func newManager() (*statemgr.Manager, stateBackend, func(), error) {
	b, closeFn, err := openBackend()
	if err != nil {
		return nil, nil, nil, err
	}
	return statemgr.New(b), b, closeFn, nil
}

func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~") {
		return filepath.Clean(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(dir)
	}
	dir = strings.TrimPrefix(dir, "~")
	dir = strings.TrimPrefix(dir, string(os.PathSeparator))
	dir = strings.TrimPrefix(dir, "/")
	return filepath.Join(home, dir)
}

// sessionsDir resolves and creates the sessions root.
func sessionsDir() (string, error) {
	c, err := requireConfig()
	if err != nil {
		return "", err
	}
	dir := expandHome(c.SessionsDir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// resolveSessionDir maps --session to its directory. Without a name the
// session enclosing the working directory is used.
func resolveSessionDir(name string) (string, error) {
	if name == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		dir, err := utils.FindSessionRoot(wd)
		if errors.Is(err, utils.ErrNoSession) {
			return "", errors.New("--session is required (or run inside a session directory)")
		}
		return dir, err
	}
	root, err := sessionsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}
