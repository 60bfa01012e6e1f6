// Command ksense drives an analysis server from the command line: it opens
// a file, asks for completions or diagnostics, and prints what comes back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/ksense/internal/config"
	"github.com/dshills/ksense/internal/logging"
	"github.com/dshills/ksense/internal/lsp"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

// errProblems makes the process exit non-zero without printing anything
// more; the command has already reported why.
var errProblems = errors.New("problems reported")

var rootCmd = &cobra.Command{
	Use:           "ksense",
	Short:         "Completion and diagnostics from language servers",
	Long:          `ksense starts the language server for a file and reports its completions and diagnostics`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.Version = version + " (" + commit + ")"

	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.PersistentFlags().String("config", "", "path to a .toml or .yaml config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("workspace", "", "workspace root (default: current directory)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errProblems) {
			fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		}
		stop()
		os.Exit(1)
	}
}

// env is what every subcommand needs: resolved settings, a logger and a
// server resolver.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	resolver *lsp.Resolver
	root     string
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if ws, _ := flags.GetString("workspace"); ws != "" {
		cfg.Workspace = ws
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}

	root := cfg.Workspace
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel()
	return &env{
		cfg:      cfg,
		log:      logging.New(logCfg),
		resolver: resolver,
		root:     root,
	}, nil
}

// manager builds a session manager whose status messages go to stderr.
func (e *env) manager() *lsp.Manager {
	status := color.New(color.Faint)
	return lsp.NewManager(e.root,
		lsp.WithResolver(e.resolver),
		lsp.WithLogger(e.log),
		lsp.WithStatusSink(lsp.StatusFunc(func(msg string) {
			status.Fprintln(os.Stderr, msg)
		})),
	)
}

// readSource returns the absolute path and contents of a file argument.
func readSource(arg string) (string, string, error) {
	path, err := filepath.Abs(arg)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return path, string(data), nil
}
