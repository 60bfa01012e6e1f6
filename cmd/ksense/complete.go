package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/dshills/ksense/internal/assist"
	"github.com/dshills/ksense/internal/completion"
	"github.com/dshills/ksense/internal/lsp"
)

const pollInterval = 100 * time.Millisecond

var completeCmd = &cobra.Command{
	Use:   "complete [flags] <file>",
	Short: "Print ranked completions at a position",
	Long: `Open a file, request completions at --line and --col (both 1-based),
and print the candidates in ranked order. --col 0 means the end of the line.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().Int("line", 1, "cursor line (1-based)")
	completeCmd.Flags().Int("col", 0, "cursor column in characters (1-based, 0 = end of line)")
	completeCmd.Flags().Duration("timeout", 10*time.Second, "how long to wait for the server")
	completeCmd.Flags().Bool("popup", false, "draw the suggestion menu instead of a table")
}

func runComplete(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	lineFlag, err := cmd.Flags().GetInt("line")
	if err != nil {
		return fmt.Errorf("failed to get line flag: %w", err)
	}
	colFlag, err := cmd.Flags().GetInt("col")
	if err != nil {
		return fmt.Errorf("failed to get col flag: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to get timeout flag: %w", err)
	}
	popup, _ := cmd.Flags().GetBool("popup")

	path, text, err := readSource(args[0])
	if err != nil {
		return err
	}
	lines := strings.Split(text, "\n")
	if lineFlag < 1 || lineFlag > len(lines) {
		return fmt.Errorf("line %d out of range (file has %d lines)", lineFlag, len(lines))
	}
	line := lineFlag - 1
	lineText := strings.TrimSuffix(lines[line], "\r")

	col := utf8.RuneCountInString(lineText)
	if colFlag > 0 {
		if colFlag-1 > col {
			return fmt.Errorf("column %d out of range (line has %d characters)", colFlag, col)
		}
		col = colFlag - 1
	}

	m := e.manager()
	defer m.Close()

	m.OpenFile(path, text)
	if !m.RequestCompletion(path, line, col) {
		return errProblems
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	update, err := awaitCompletion(ctx, m)
	if err != nil {
		return err
	}

	items := completion.Prepare(update, lineText, e.cfg.Completion.MaxItems)
	if len(items) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No completions.")
		return nil
	}

	if popup {
		s := completion.NewSession(update.Line, update.Col, items, e.cfg.Completion.WindowRows)
		return printPopup(cmd.OutOrStdout(), lineText, s)
	}
	return printItems(cmd.OutOrStdout(), items)
}

// awaitCompletion polls m until a completion update arrives. It gives up
// when ctx ends or the server goes away.
func awaitCompletion(ctx context.Context, m *lsp.Manager) (lsp.CompletionUpdate, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		m.Poll()
		if update, ok := m.TakeCompletion(); ok {
			return update, nil
		}
		if !m.Connected() {
			return lsp.CompletionUpdate{}, errProblems
		}

		select {
		case <-ctx.Done():
			return lsp.CompletionUpdate{}, fmt.Errorf("waiting for completion: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func printItems(w io.Writer, items []completion.Item) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.Label, it.Kind, it.Detail)
	}
	return tw.Flush()
}

func printPopup(w io.Writer, lineText string, s *completion.Session) error {
	g := newGrid(max(utf8.RuneCountInString(lineText), s.AnchorCol)+50, s.WindowRows()+3)
	g.drawString(0, 0, lineText)
	assist.DrawPopup(g, s, s.AnchorCol, 0, assist.DefaultPopupStyle())
	_, err := io.WriteString(w, g.String())
	return err
}
