package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/cpsim/sim"
	"github.com/inference-sim/cpsim/sim/models"
	"github.com/inference-sim/cpsim/sim/trace"
	"github.com/inference-sim/cpsim/sim/trace/store"
)

// runOptions are the command-line overrides applied on top of a scenario file.
type runOptions struct {
	seed       *int64
	until      string
	journal    string
	db         string
	traceLevel string
}

var runFlags struct {
	seed       int64
	until      string
	journal    string
	db         string
	traceLevel string
}

// runCmd executes one scenario file
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a sun-sensor bench scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runScenarioFile(args[0], optionsFromFlags(cmd), cmd.OutOrStdout())
		return err
	},
}

func optionsFromFlags(cmd *cobra.Command) runOptions {
	opts := runOptions{
		until:      runFlags.until,
		journal:    runFlags.journal,
		db:         runFlags.db,
		traceLevel: runFlags.traceLevel,
	}
	if cmd.Flags().Changed("seed") {
		seed := runFlags.seed
		opts.seed = &seed
	}
	return opts
}

// runScenarioFile loads, runs and reports one scenario. With a journal path
// every kept trace record is written there, and with a database path the
// journal is then indexed.
func runScenarioFile(path string, opts runOptions, out io.Writer) (*models.Report, error) {
	if !trace.IsValidTraceLevel(opts.traceLevel) {
		return nil, fmt.Errorf("unknown trace level %q", opts.traceLevel)
	}
	if opts.db != "" && opts.journal == "" {
		return nil, fmt.Errorf("--db needs --journal")
	}

	sc, err := models.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	if opts.seed != nil {
		sc.Seed = *opts.seed
	}
	if opts.until != "" {
		sc.Until = opts.until
	}
	if sc.Name == "" {
		sc.Name = path
	}

	var simOpts []sim.Option
	var jw *trace.JournalWriter
	if opts.journal != "" {
		start, err := time.ParseDuration(orZero(sc.Start))
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		jw, err = trace.CreateJournal(opts.journal, trace.JournalHeader{
			Scenario: sc.Name,
			Seed:     sc.Seed,
			StartNs:  int64(sim.Epoch.Add(start)),
		})
		if err != nil {
			return nil, err
		}
		level := trace.TraceLevel(opts.traceLevel)
		if level == "" {
			level = trace.TraceLevelAll
		}
		simOpts = append(simOpts, sim.WithRecorder(trace.Filter(level, jw)))
	}

	logrus.Infof("Running scenario %s (seed %d, until %s)", sc.Name, sc.Seed, sc.Until)
	wall := time.Now()
	rep, runErr := models.RunScenario(sc, simOpts...)
	if jw != nil {
		if err := jw.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	printReport(out, rep, time.Since(wall))

	if jw != nil {
		size := int64(0)
		if fi, err := os.Stat(opts.journal); err == nil {
			size = fi.Size()
		}
		fmt.Fprintf(out, "Journal: %s (run %s, %s records, %s)\n",
			opts.journal, jw.Header().RunID, humanize.Comma(int64(jw.Count())), humanize.Bytes(uint64(size)))
	}
	if opts.db != "" {
		if err := importJournal(opts.journal, opts.db, out); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

func orZero(d string) string {
	if d == "" {
		return "0s"
	}
	return d
}

// importJournal indexes a journal file into the store at dbPath.
func importJournal(journalPath, dbPath string, out io.Writer) error {
	header, records, err := trace.ReadJournal(journalPath)
	if err != nil {
		return err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.ImportJournal(header, records); err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported run %s into %s (%s records)\n", header.RunID, dbPath, humanize.Comma(int64(len(records))))
	return nil
}

func printReport(out io.Writer, rep *models.Report, wall time.Duration) {
	fmt.Fprintf(out, "=== Scenario %s (seed %d) ===\n", rep.Scenario, rep.Seed)
	fmt.Fprintf(out, "Simulated %s -> %s in %s wall time\n", rep.Start, rep.End, wall.Round(time.Microsecond))
	for _, p := range rep.Power {
		state := "off"
		if p.On {
			state = "on"
		}
		fmt.Fprintf(out, "Power %s at %s\n", state, p.At)
	}
	fmt.Fprintf(out, "Telemetry: %s samples\n", humanize.Comma(int64(len(rep.Telemetry))))
	if n := len(rep.Telemetry); n > 0 {
		last := rep.Telemetry[n-1]
		fmt.Fprintf(out, "  last at %s: polar=%.6f azimuthal=%.6f (from %d to %d)\n",
			last.At, last.PolarAngle, last.AzimuthalAngle, last.SrcAddress, last.DestAddress)
	}
	for _, p := range rep.Positions {
		fmt.Fprintf(out, "Sun position at %s: [%.4f %.4f %.4f]\n", p.At, p.Position[0], p.Position[1], p.Position[2])
	}
	if rep.Obc != nil {
		fmt.Fprintf(out, "OBC: %s commands sent, %s replies received\n",
			humanize.Comma(int64(rep.Obc.Sent)), humanize.Comma(int64(rep.Obc.Received)))
	}
	if rep.Pending > 0 {
		fmt.Fprintf(out, "Pending events at end: %s\n", humanize.Comma(int64(rep.Pending)))
	}
}

func init() {
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 0, "Override the scenario seed")
	runCmd.Flags().StringVar(&runFlags.until, "until", "", "Override the scenario end time (Go duration)")
	runCmd.Flags().StringVar(&runFlags.journal, "journal", "", "Write a zstd-compressed trace journal to this path")
	runCmd.Flags().StringVar(&runFlags.db, "db", "", "Index the journal into this SQLite database")
	runCmd.Flags().StringVar(&runFlags.traceLevel, "trace-level", "all", "Journal trace level (none, dispatch, all)")

	rootCmd.AddCommand(runCmd)
}
