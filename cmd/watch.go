package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/cpsim/sim/models"
)

// watchDebounce absorbs the burst of events editors emit for one save.
const watchDebounce = 200 * time.Millisecond

// watchCmd re-runs a scenario every time its file changes
var watchCmd = &cobra.Command{
	Use:   "watch <scenario.yaml>",
	Short: "Re-run a scenario whenever its file changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		opts := optionsFromFlags(cmd)
		return watchScenario(ctx, args[0], opts, cmd.OutOrStdout(), nil)
	},
}

// watchScenario runs the scenario at path once, then again after every
// change to the file, until ctx is done. Failed runs are reported and
// watching continues. onRun, if set, is called after every run.
func watchScenario(ctx context.Context, path string, opts runOptions, out io.Writer, onRun func(*models.Report, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file on save, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	runOnce := func() {
		rep, err := runScenarioFile(path, opts, out)
		if err != nil {
			fmt.Fprintf(out, "run failed: %v\n", err)
		}
		if onRun != nil {
			onRun(rep, err)
		}
	}
	runOnce()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logrus.Debugf("scenario changed: %s", ev)
			debounce = time.After(watchDebounce)
		case <-debounce:
			debounce = nil
			fmt.Fprintf(out, "--- %s changed, re-running ---\n", path)
			runOnce()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("watch error: %v", err)
		}
	}
}

func init() {
	watchCmd.Flags().Int64Var(&runFlags.seed, "seed", 0, "Override the scenario seed")
	watchCmd.Flags().StringVar(&runFlags.until, "until", "", "Override the scenario end time (Go duration)")
	watchCmd.Flags().StringVar(&runFlags.journal, "journal", "", "Write a zstd-compressed trace journal to this path on every run")
	watchCmd.Flags().StringVar(&runFlags.db, "db", "", "Index every journal into this SQLite database")
	watchCmd.Flags().StringVar(&runFlags.traceLevel, "trace-level", "all", "Journal trace level (none, dispatch, all)")

	rootCmd.AddCommand(watchCmd)
}
