package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tturner/mcgw/internal/mc"
)

type readFlags struct {
	plc plcFlags
}

func newReadCmd() *cobra.Command {
	flags := &readFlags{}

	cmd := &cobra.Command{
		Use:   "read DEVICE[:POINTS]...",
		Short: "Read word or bit devices",
		Long: `Read one or more head devices with batch read (0x0401).

Each device is read on its own connection, concurrently. Word devices
(D, W, R, ZR) return unsigned 16-bit values; bit devices (X, Y, M) return
0 or 1. X, Y and W are numbered in hexadecimal.`,
		Example: `  # Read D100..D109
  mcgw read D100:10 --host 192.168.3.39

  # Read several devices at once
  mcgw read D0:4 Y20:16 M100:8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "DEVICE[:POINTS]")
			}
			return runRead(cmd, flags, args)
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	return cmd
}

// parseDeviceSpec parses "D100:4"; the point count defaults to 1.
func parseDeviceSpec(spec string) (mc.DeviceAddress, error) {
	device, count, found := strings.Cut(spec, ":")
	points := uint64(1)
	if found {
		var err error
		if points, err = strconv.ParseUint(count, 10, 32); err != nil {
			return mc.DeviceAddress{}, fmt.Errorf("invalid point count in %q", spec)
		}
	}
	return mc.ParseDevice(device, uint32(points))
}

func runRead(cmd *cobra.Command, flags *readFlags, args []string) error {
	devices := make([]mc.DeviceAddress, len(args))
	for i, arg := range args {
		d, err := parseDeviceSpec(arg)
		if err != nil {
			return err
		}
		devices[i] = d
	}

	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	reader := &mc.DeviceReader{Dialer: e.dialer, Logger: e.logger}
	results := make([][]int, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range devices {
		g.Go(func() error {
			values, err := reader.Read(gctx, d)
			if err != nil {
				return fmt.Errorf("%s: %w", d, err)
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.wrap(err, "read")
	}

	var rows [][]string
	for i, d := range devices {
		for j, v := range results[i] {
			point := d
			point.Address += uint32(j)
			rows = append(rows, []string{point.String(), d.Kind.String(), strconv.Itoa(v)})
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Device", "Kind", "Value"}, rows, nil))
	return nil
}
