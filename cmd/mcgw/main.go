package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcgw",
		Short: "MELSEC MC protocol file access client and gateway",
		Long: `MCGW reads device memory and browses, searches and fetches files on
Mitsubishi MELSEC CPUs over the MC protocol (SLMP 3E binary frames).

It can also serve the same operations over HTTP, emulate a device for
testing, and check captured traffic against the known listing layouts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newShellCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEmulateCmd())
	rootCmd.AddCommand(newPcapCmd())
	rootCmd.AddCommand(newReportCmd())

	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden && subCmd.IsAvailableCommand() {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
