package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ksense/internal/lsp"
	"github.com/dshills/ksense/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <file>",
	Short: "Keep a server open and print diagnostics as the file changes on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a change is sent")
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return fmt.Errorf("failed to get debounce flag: %w", err)
	}

	path, text, err := readSource(args[0])
	if err != nil {
		return err
	}

	w, err := watch.New(path, watch.WithDebounce(debounce))
	if err != nil {
		return err
	}
	defer w.Close()

	m := e.manager()
	defer m.Close()

	m.OpenFile(path, text)
	if _, ok := m.Active(); !ok {
		return errProblems
	}

	log := e.log.WithComponent("watch")
	g, ctx := errgroup.WithContext(cmd.Context())

	// The manager is owned by this goroutine alone.
	g.Go(func() error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		name := relPath(e.root, path)
		var shown []lsp.Diagnostic
		for {
			select {
			case <-ctx.Done():
				return nil

			case ev, ok := <-w.Events():
				if !ok {
					return nil
				}
				data, err := os.ReadFile(ev.Path)
				if err != nil {
					log.Warn("reading %s: %v", ev.Path, err)
					continue
				}
				log.Debug("%s changed (%s)", ev.Path, ev.Op)
				if !m.Connected() {
					m.OpenFile(path, string(data))
					continue
				}
				m.DidChange(path, string(data))
				m.DidSave(path)

			case <-ticker.C:
				m.Poll()
				diags := m.Diagnostics(path)
				if diags == nil || slices.EqualFunc(diags, shown, sameDiagnostic) {
					continue
				}
				shown = diags
				fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n", time.Now().Format(time.TimeOnly))
				printDiagnostics(cmd.OutOrStdout(), name, diags)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				log.Warn("watcher: %v", err)
			}
		}
	})

	return g.Wait()
}

func sameDiagnostic(a, b lsp.Diagnostic) bool {
	return a.Range == b.Range && a.Severity == b.Severity && a.Message == b.Message && a.Source == b.Source
}
