package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/emulator"
	"github.com/tturner/mcgw/internal/logging"
)

type emulateFlags struct {
	configPath string
	listen     string
	series     string
	layout     string
	searchMiss bool
	drives     []string
	words      []string
	logLevel   string
}

func newEmulateCmd() *cobra.Command {
	flags := &emulateFlags{}

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Run a device emulator",
		Long: `Run a TCP server that answers the MC protocol commands this tool uses:
batch read, directory, search, open, read and close.

Drives are host directories mapped with --drive N=DIR; top-level
subdirectories become PLC directories. Word devices can be preset with
--word D100=1,2,3.

Press Ctrl+C to stop the emulator.`,
		Example: `  # Emulate an iQ-R CPU with drive 4 backed by ./plcfiles
  mcgw emulate --drive 4=./plcfiles

  # Emulate a Q CPU whose search always misses
  mcgw emulate --series Q --search-miss --drive 0=./plcfiles`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runEmulate(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path")
	cmd.Flags().StringVar(&flags.listen, "listen", "", "Listen address (overrides emulator.listen)")
	cmd.Flags().StringVar(&flags.series, "series", "", "CPU series: Q|L|iQ-R (overrides emulator.series)")
	cmd.Flags().StringVar(&flags.layout, "layout", "", "Listing layout: auto|tail|leading (overrides emulator.layout)")
	cmd.Flags().BoolVar(&flags.searchMiss, "search-miss", false, "Answer every search with file-not-found")
	cmd.Flags().StringArrayVar(&flags.drives, "drive", nil, "Drive mapping N=DIR (repeatable)")
	cmd.Flags().StringArrayVar(&flags.words, "word", nil, "Word preset DEV=V1,V2,... (repeatable)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	return cmd
}

func parseDriveMapping(s string) (config.DriveConfig, error) {
	num, dir, ok := strings.Cut(s, "=")
	if !ok || dir == "" {
		return config.DriveConfig{}, fmt.Errorf("invalid drive mapping %q (want N=DIR)", s)
	}
	n, err := strconv.ParseUint(num, 10, 16)
	if err != nil {
		return config.DriveConfig{}, fmt.Errorf("invalid drive number in %q", s)
	}
	return config.DriveConfig{Number: uint16(n), Dir: dir}, nil
}

// presetWords applies "D100=1,2,3" to mem.
func presetWords(mem *emulator.Memory, s string) error {
	head, list, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("invalid word preset %q (want DEV=V1,V2)", s)
	}
	d, err := parseDeviceSpec(head)
	if err != nil {
		return err
	}
	var values []uint16
	for _, v := range strings.Split(list, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q in %q", v, s)
		}
		values = append(values, uint16(n))
	}
	return mem.SetWords(d.Code, d.Address, values...)
}

func runEmulate(cmd *cobra.Command, flags *emulateFlags) error {
	cfg, err := config.Load(flags.configPath, false)
	if err != nil {
		return err
	}
	ec := cfg.Emulator
	if flags.listen != "" {
		ec.Listen = flags.listen
	}
	if flags.series != "" {
		ec.Series = flags.series
	}
	if flags.layout != "" {
		ec.Layout = flags.layout
	}
	if flags.searchMiss {
		ec.SearchMiss = true
	}
	for _, m := range flags.drives {
		dc, err := parseDriveMapping(m)
		if err != nil {
			return err
		}
		ec.Drives = append(ec.Drives, dc)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(level, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	srv, err := emulator.FromConfig(ec, logger)
	if err != nil {
		return err
	}
	for _, w := range flags.words {
		if err := presetWords(srv.Memory(), w); err != nil {
			return err
		}
	}
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("Emulating %s CPU on %s with %d drive(s)", ec.Series, srv.Addr(), len(ec.Drives))

	<-cmd.Context().Done()
	logger.Info("Stopping emulator")
	return srv.Stop()
}
