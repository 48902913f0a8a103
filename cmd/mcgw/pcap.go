package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/pcap"
)

func newPcapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Inspect captured MC protocol traffic",
	}
	cmd.AddCommand(newPcapDecodeCmd())
	cmd.AddCommand(newPcapDumpCmd())
	return cmd
}

type pcapDecodeFlags struct {
	input   string
	port    uint16
	layout  string
	entries bool
}

func newPcapDecodeCmd() *cobra.Command {
	flags := &pcapDecodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode directory listings in a capture with a listing layout",
		Long: `Extract 3E frames from a pcap or pcapng file, pair every directory
(0x1810) and search (0x1811) request with its response and decode the listing.

With --layout auto the first layout that decodes every answered listing is
used. The command fails when any listing does not match the layout, so it
can gate a layout choice for a CPU model.`,
		Example: `  mcgw pcap decode --input capture.pcapng
  mcgw pcap decode --input capture.pcap --layout tail --entries`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.input == "" && len(args) > 0 {
				flags.input = args[0]
			}
			if flags.input == "" {
				return missingFlagError(cmd, "--input")
			}
			return runPcapDecode(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.input, "input", "", "Capture file (required)")
	cmd.Flags().Uint16Var(&flags.port, "port", pcap.DefaultMCPort, "MC protocol TCP port, 0 for any")
	cmd.Flags().StringVar(&flags.layout, "layout", "auto", "Listing layout: auto|tail|leading")
	cmd.Flags().BoolVar(&flags.entries, "entries", false, "Print the decoded entries of every listing")
	return cmd
}

func runPcapDecode(out io.Writer, flags *pcapDecodeFlags) error {
	frames, err := pcap.ExtractMCFromPCAP(flags.input, flags.port)
	if err != nil {
		return err
	}

	var layout mc.Layout
	if flags.layout == "auto" {
		if layout, err = pcap.DetectLayout(frames); err != nil {
			// Fall back to the iQ-R layout so mismatches are still reported.
			layout = mc.LeadingLayout
			fmt.Fprintf(out, "No layout decodes every listing (%v); showing %s\n", err, layout.Name())
		}
	} else if layout, err = mc.LayoutByName(flags.layout); err != nil {
		return err
	}

	results, summary := pcap.DecodeListings(frames, layout)
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		target := r.Path
		if r.Filename != "" {
			target = r.Filename + " in " + r.Path
		}
		endCode, detail := "", strconv.Itoa(len(r.Entries))+" entries"
		if r.EndCode != 0 {
			endCode = fmt.Sprintf("0x%04X", r.EndCode)
		}
		if r.Err != nil {
			detail = r.Err.Error()
		}
		rows = append(rows, []string{
			r.Timestamp.Format("15:04:05.000"),
			r.Command.String(),
			strconv.Itoa(int(r.Drive)),
			target,
			endCode,
			string(r.Status),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Time", "Command", "Drive", "Path", "End", "Status", "Detail"},
		rows,
		func(row, col int) lipgloss.Style {
			if i := row - 1; i >= 0 && i < len(results) && col == 5 && results[i].Status != pcap.ListingOK {
				return errStyle
			}
			return cellStyle
		}))

	if flags.entries {
		for _, r := range results {
			if len(r.Entries) == 0 {
				continue
			}
			fmt.Fprintf(out, "\n%s %s drive %d %s\n", r.Timestamp.Format("15:04:05.000"), r.Command, r.Drive, r.Path)
			fmt.Fprintln(out, renderEntries(r.Entries))
		}
	}

	fmt.Fprintf(out, "\nFrames: %d  Layout: %s\n", len(frames), layout.Name())
	fmt.Fprintf(out, "Listings: %d  OK: %d  Mismatch: %d  Device errors: %d  Malformed: %d  Unanswered: %d\n",
		summary.Total, summary.OK, summary.Mismatch, summary.DeviceError, summary.Malformed, summary.Unanswered)
	if summary.Mismatch > 0 {
		return fmt.Errorf("%d listing(s) do not match the %s layout: %w", summary.Mismatch, layout.Name(), mc.ErrLayoutMismatch)
	}
	return nil
}

type pcapDumpFlags struct {
	input    string
	port     uint16
	annotate bool
	max      int
}

func newPcapDumpCmd() *cobra.Command {
	flags := &pcapDumpFlags{}

	cmd := &cobra.Command{
		Use:     "dump",
		Short:   "Print every 3E frame in a capture as hex",
		Example: `  mcgw pcap dump --input capture.pcap --annotate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.input == "" && len(args) > 0 {
				flags.input = args[0]
			}
			if flags.input == "" {
				return missingFlagError(cmd, "--input")
			}
			return runPcapDump(cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.input, "input", "", "Capture file (required)")
	cmd.Flags().Uint16Var(&flags.port, "port", pcap.DefaultMCPort, "MC protocol TCP port, 0 for any")
	cmd.Flags().BoolVar(&flags.annotate, "annotate", false, "Split each frame into header, command and data")
	cmd.Flags().IntVar(&flags.max, "max", 0, "Stop after this many frames (0 for all)")
	return cmd
}

func runPcapDump(out io.Writer, flags *pcapDumpFlags) error {
	frames, err := pcap.ExtractMCFromPCAP(flags.input, flags.port)
	if err != nil {
		return err
	}
	for i, f := range frames {
		if flags.max > 0 && i >= flags.max {
			break
		}
		fmt.Fprintf(out, "#%d %s %s %s\n", i+1, f.Timestamp.Format("15:04:05.000000"), f.Stream(), f.Description())
		fmt.Fprintln(out, pcap.FormatFrameHex(f.Raw, flags.annotate))
	}
	fmt.Fprintf(out, "%d frame(s)\n", len(frames))
	return nil
}
