// Package main provides the defcheck binary entry point.
// defcheck validates Dutch legal and governmental definitions against a
// catalog of quality rules and reports a versioned ValidationResult.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/c360studio/defcheck/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "defcheck"
)

// errUnacceptable is returned by validate when --strict is set and the
// definition is rejected.
var errUnacceptable = errors.New("definition is not acceptable")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUnacceptable) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// globals holds the persistent flags and what they resolve to.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Definition quality validation engine",
		Long: `defcheck validates definitions of Dutch legal and governmental
concepts against a catalog of quality rules.

Every validation produces a versioned ValidationResult with an overall
score, per-category scores, violations and improvement suggestions. Rule
failures and collaborator outages degrade the result instead of failing
the call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")

	cmd.AddCommand(
		validateCmd(g),
		batchCmd(g),
		catalogCmd(g),
		schemaCmd(),
		serveCmd(g),
		versionCmd(),
	)
	return cmd
}

// setup loads configuration and configures logging.
func (g *globals) setup(stderr io.Writer) error {
	loader := config.NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = loader.LoadFile(g.configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(&config.Config{Log: config.LogConfig{Level: g.logLevel, Format: g.logFormat}})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(stderr, opts)
	}
	g.logger = slog.New(handler)
	slog.SetDefault(g.logger)
	g.cfg = cfg
	return nil
}

// startApp builds and starts the application for one command.
func (g *globals) startApp(ctx context.Context) (*App, error) {
	app, err := NewApp(g.cfg, g.logger)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
