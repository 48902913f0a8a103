package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/metrics"
)

type reportFlags struct {
	inputs []string
}

func newReportCmd() *cobra.Command {
	flags := &reportFlags{}

	cmd := &cobra.Command{
		Use:   "report [FILE...]",
		Short: "Summarize exchange metrics CSVs",
		Long: `Read CSV files written with --metrics-csv and print totals, RTT
percentiles and per-operation statistics. Several files are merged into one
summary; glob patterns are expanded.`,
		Example: `  mcgw get MAIN.PRG --metrics-csv run1.csv
  mcgw report run1.csv

  mcgw report 'results/*.csv'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			flags.inputs = append(flags.inputs, args...)
			if len(flags.inputs) == 0 {
				return missingFlagError(cmd, "--input")
			}
			return runReport(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags)
		},
	}

	cmd.Flags().StringArrayVar(&flags.inputs, "input", nil, "Metrics CSV file or glob (repeatable)")
	return cmd
}

func runReport(out, errOut io.Writer, flags *reportFlags) error {
	var files []string
	for _, in := range flags.inputs {
		matches, err := filepath.Glob(in)
		if err != nil {
			return fmt.Errorf("glob %s: %w", in, err)
		}
		if len(matches) == 0 {
			matches = []string{in}
		}
		files = append(files, matches...)
	}

	var (
		all         []metrics.Metric
		first, last time.Time
	)
	for _, f := range files {
		records, firstTime, lastTime, err := metrics.ReadMetricsCSV(f)
		if err != nil {
			if len(files) == 1 {
				return err
			}
			fmt.Fprintf(errOut, "Warning: skipping %s: %v\n", f, err)
			continue
		}
		all = append(all, records...)
		if !firstTime.IsZero() && (first.IsZero() || firstTime.Before(first)) {
			first = firstTime
		}
		if lastTime.After(last) {
			last = lastTime
		}
	}
	if len(all) == 0 {
		return fmt.Errorf("no metrics found in %d file(s)", len(files))
	}

	summary := metrics.Summarize(all)
	fmt.Fprintf(out, "Files: %d", len(files))
	if !first.IsZero() {
		fmt.Fprintf(out, "  Window: %s .. %s (%s)", first.Format(time.RFC3339), last.Format(time.RFC3339),
			last.Sub(first).Round(time.Millisecond))
	}
	fmt.Fprint(out, "\n\n")
	fmt.Fprint(out, metrics.FormatSummary(summary))

	ops := make([]string, 0, len(summary.RTTByOperation))
	for op := range summary.RTTByOperation {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		s := summary.RTTByOperation[metrics.OperationType(op)]
		rows = append(rows, []string{
			op,
			strconv.Itoa(s.Count),
			strconv.Itoa(s.Success),
			strconv.Itoa(s.Failed),
			fmt.Sprintf("%.3f", s.AvgRTT),
			fmt.Sprintf("%.3f", s.MaxRTT),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Operation", "Count", "OK", "Failed", "Avg ms", "Max ms"}, rows, nil))
	return nil
}
