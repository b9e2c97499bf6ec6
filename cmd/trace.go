package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/inference-sim/cpsim/sim"
	"github.com/inference-sim/cpsim/sim/trace"
	"github.com/inference-sim/cpsim/sim/trace/store"
)

var traceFlags struct {
	db    string
	kind  string
	limit int
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect trace journals and the run index",
}

var traceSummaryCmd = &cobra.Command{
	Use:   "summary <journal>",
	Short: "Summarize a trace journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		header, records, err := trace.ReadJournal(args[0])
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), header, trace.Summarize(records))
		return nil
	},
}

var traceImportCmd = &cobra.Command{
	Use:   "import <journal>...",
	Short: "Index journals into the run database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := importJournal(path, traceFlags.db, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		return nil
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "List indexed runs, or the records of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.New(traceFlags.db)
		if err != nil {
			return err
		}
		defer st.Close()
		if len(args) == 0 {
			return listRuns(cmd.OutOrStdout(), st)
		}
		return showRun(cmd.OutOrStdout(), st, args[0], trace.Kind(traceFlags.kind), traceFlags.limit)
	},
}

func printSummary(out io.Writer, header trace.JournalHeader, s *trace.TraceSummary) {
	fmt.Fprintf(out, "Run %s (scenario %s, seed %d, format %s)\n", header.RunID, header.Scenario, header.Seed, header.Version)
	fmt.Fprintf(out, "Records: %s between %s and %s\n",
		humanize.Comma(int64(s.TotalRecords)), sim.Time(s.FirstTime), sim.Time(s.LastTime))

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-10s %s\n", k, humanize.Comma(int64(s.ByKind[trace.Kind(k)])))
	}

	targets := make([]string, 0, len(s.TargetDistribution))
	for name := range s.TargetDistribution {
		targets = append(targets, name)
	}
	sort.Strings(targets)
	fmt.Fprintf(out, "Activations by model (%d models):\n", s.UniqueTargets)
	for _, name := range targets {
		fmt.Fprintf(out, "  %-12s %s\n", name, humanize.Comma(int64(s.TargetDistribution[name])))
	}
}

func listRuns(out io.Writer, st *store.Store) error {
	runs, err := st.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs indexed")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-20s seed=%-6d %8s records  imported %s\n",
			r.ID, r.Scenario, r.Seed, humanize.Comma(int64(r.Records)), humanize.RelTime(r.ImportedAt, time.Now(), "ago", "from now"))
	}
	return nil
}

func showRun(out io.Writer, st *store.Store, id string, kind trace.Kind, limit int) error {
	run, err := st.Run(id)
	if err != nil {
		return err
	}
	records, err := st.Records(id, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s: scenario %s, seed %d, %s records\n", run.ID, run.Scenario, run.Seed, humanize.Comma(int64(run.Records)))
	for i, r := range records {
		if limit > 0 && i == limit {
			fmt.Fprintf(out, "... %s more\n", humanize.Comma(int64(len(records)-limit)))
			break
		}
		fmt.Fprintf(out, "%6d %s %-9s %s -> %s %s\n", r.Seq, sim.Time(r.Time), r.Kind, r.Source, r.Target, r.Payload)
	}
	return nil
}

func init() {
	traceCmd.PersistentFlags().StringVar(&traceFlags.db, "db", "cpsim-runs.db", "Run index database")
	traceShowCmd.Flags().StringVar(&traceFlags.kind, "kind", "", "Only show records of this kind")
	traceShowCmd.Flags().IntVar(&traceFlags.limit, "limit", 100, "Maximum number of records to print (0 for all)")

	traceCmd.AddCommand(traceSummaryCmd, traceImportCmd, traceShowCmd)
	rootCmd.AddCommand(traceCmd)
}
