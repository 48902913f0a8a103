package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/shell"
)

type shellFlags struct {
	plc    plcFlags
	outDir string
	store  bool
}

func newShellCmd() *cobra.Command {
	flags := &shellFlags{}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Browse a PLC drive interactively",
		Long: `Open an interactive prompt bound to one PLC. Every command (ls, cd,
find, get, read, drive) is a single operation on its own connection.`,
		Example: `  mcgw shell --host 192.168.3.39
  mcgw shell --out-dir ./backup --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runShell(cmd, flags)
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	cmd.Flags().StringVar(&flags.outDir, "out-dir", "", "Directory for fetched files (default: current directory)")
	cmd.Flags().BoolVar(&flags.store, "store", false, "Also store every fetched file through the configured store")
	return cmd
}

func runShell(cmd *cobra.Command, flags *shellFlags) error {
	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{openStore: flags.store})
	if err != nil {
		return err
	}
	defer e.close()

	if flags.outDir != "" {
		if err := os.MkdirAll(flags.outDir, 0o755); err != nil {
			return err
		}
	}
	sh, err := shell.New(shell.Options{
		Dialer: e.dialer,
		Layout: e.layout,
		Files:  e.cfg.Files,
		Store:  e.store,
		Source: e.source(),
		OutDir: flags.outDir,
		Logger: e.logger,
	})
	if err != nil {
		return err
	}
	sh.Run(ctx)
	return nil
}
