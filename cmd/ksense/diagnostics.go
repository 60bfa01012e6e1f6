package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/ksense/internal/lsp"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics [flags] <file>",
	Short: "Print the diagnostics a server publishes for a file",
	Long:  `Open a file and print the first set of diagnostics the server publishes for it. Exits non-zero when any are errors.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

func init() {
	diagnosticsCmd.Flags().Duration("timeout", 30*time.Second, "how long to wait for the server")
}

var severityColors = map[lsp.DiagnosticSeverity]*color.Color{
	lsp.DiagnosticSeverityError:       color.New(color.FgRed, color.Bold),
	lsp.DiagnosticSeverityWarning:     color.New(color.FgYellow, color.Bold),
	lsp.DiagnosticSeverityInformation: color.New(color.FgCyan),
	lsp.DiagnosticSeverityHint:        color.New(color.Faint),
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to get timeout flag: %w", err)
	}

	path, text, err := readSource(args[0])
	if err != nil {
		return err
	}

	m := e.manager()
	defer m.Close()

	m.OpenFile(path, text)
	if _, ok := m.Active(); !ok {
		return errProblems
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	diags, err := awaitDiagnostics(ctx, m, path)
	if err != nil {
		return err
	}

	if printDiagnostics(cmd.OutOrStdout(), relPath(e.root, path), diags) > 0 {
		return errProblems
	}
	return nil
}

// awaitDiagnostics polls m until diagnostics for path have been published.
// An empty, non-nil result means the server reported the file clean.
func awaitDiagnostics(ctx context.Context, m *lsp.Manager, path string) ([]lsp.Diagnostic, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		m.Poll()
		if diags := m.Diagnostics(path); diags != nil {
			return diags, nil
		}
		if !m.Connected() {
			return nil, errProblems
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for diagnostics: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// printDiagnostics writes one line per diagnostic, positions 1-based, and
// returns how many were errors.
func printDiagnostics(w io.Writer, name string, diags []lsp.Diagnostic) int {
	if len(diags) == 0 {
		fmt.Fprintf(w, "%s: %s\n", name, color.GreenString("no problems"))
		return 0
	}

	errs := 0
	for _, d := range diags {
		if d.Severity == lsp.DiagnosticSeverityError {
			errs++
		}
		sev := d.Severity.String()
		if c, ok := severityColors[d.Severity]; ok {
			sev = c.Sprint(sev)
		}
		msg := d.Message
		if d.Source != "" {
			msg += " (" + d.Source + ")"
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", name, d.Range.Start.Line+1, d.Range.Start.Character+1, sev, msg)
	}
	return errs
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !filepath.IsAbs(rel) && rel != "" && rel[0] != '.' {
		return rel
	}
	return path
}
