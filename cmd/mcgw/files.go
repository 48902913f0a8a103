package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/progress"
	"github.com/tturner/mcgw/internal/store"
)

type lsFlags struct {
	plc   plcFlags
	path  string
	start uint32
	count uint16
	all   bool
}

func newLsCmd() *cobra.Command {
	flags := &lsFlags{}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List a directory on a PLC drive",
		Long: `List directory entries with the directory command (0x1810).

Without --all a single page of --count entries starting at file number
--start is requested. With --all every page is requested until the device
returns a short one.`,
		Example: `  # First 36 entries of the project directory
  mcgw ls --host 192.168.3.39

  # Every entry of the drive root
  mcgw ls --path '\' --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runLs(cmd, flags)
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	cmd.Flags().StringVar(&flags.path, "path", "", "Directory (default files.default_path)")
	cmd.Flags().Uint32Var(&flags.start, "start", mc.FirstFileNumber, "First file number")
	cmd.Flags().Uint16Var(&flags.count, "count", 0, "Entries per request (default files.list_count)")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Page through the whole directory")
	return cmd
}

func runLs(cmd *cobra.Command, flags *lsFlags) error {
	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	path := flags.path
	if path == "" {
		path = e.cfg.Files.DefaultPath
	}
	lister := &mc.Lister{
		Dialer:   e.dialer,
		Layout:   e.layout,
		PageSize: e.cfg.Files.PageSize,
		Logger:   e.logger,
	}

	var entries []mc.FileEntry
	if flags.all {
		entries, err = lister.ListAll(ctx, e.cfg.Files.Drive, path)
	} else {
		count := flags.count
		if count == 0 {
			count = uint16(e.cfg.Files.ListCount)
		}
		_, entries, err = lister.List(ctx, e.cfg.Files.Drive, flags.start, count, path)
	}
	if err != nil {
		return e.wrap(err, "list "+path)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderEntries(entries))
	fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("drive %d  %s  %d entries", e.cfg.Files.Drive, path, len(entries))))
	return nil
}

type findFlags struct {
	plc  plcFlags
	path string
}

func newFindCmd() *cobra.Command {
	flags := &findFlags{}

	cmd := &cobra.Command{
		Use:   "find NAME",
		Short: "Search for a file on a PLC drive",
		Long: `Search for NAME.EXT with the search command (0x1811).

When the device answers file-not-found the directory is listed in full and
filtered by name instead, since some CPUs only resolve names that way.`,
		Example: `  mcgw find MAIN.PRG
  mcgw find PARAM.PRM --path '$MELPRJ$'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "NAME")
			}
			return runFind(cmd, flags, args[0])
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	cmd.Flags().StringVar(&flags.path, "path", "", "Directory to search (default: project path, then the drive root)")
	return cmd
}

func runFind(cmd *cobra.Command, flags *findFlags, name string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{})
	if err != nil {
		return err
	}
	defer e.close()

	searcher := &mc.Searcher{
		Dialer:      e.dialer,
		Layout:      e.layout,
		DefaultPath: e.cfg.Files.DefaultPath,
		RootMarker:  e.cfg.Files.RootMarker,
		PageSize:    e.cfg.Files.PageSize,
		Logger:      e.logger,
	}
	entries, err := searcher.Search(ctx, e.cfg.Files.Drive, name, flags.path)
	if err != nil {
		return e.wrap(err, "search "+name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderEntries(entries))
	return nil
}

type getFlags struct {
	plc     plcFlags
	out     string
	chunk   int
	persist bool
	quiet   bool
}

func newGetCmd() *cobra.Command {
	flags := &getFlags{}

	cmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Fetch a file from a PLC drive",
		Long: `Fetch a file with open (0x1827), read (0x1828) and close (0x182A).

The file is read in chunks of at most 1920 bytes on a single connection and
the file pointer is always closed. Use --out - to write the content to stdout.
With --persist the content is also stored through the configured store.`,
		Example: `  mcgw get MAIN.PRG
  mcgw get '$MELPRJ$\PARAM.PRM' --out param.prm
  mcgw get MAIN.PRG --persist --config ./mcgw.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "NAME")
			}
			return runGet(cmd, flags, args[0])
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output path, or - for stdout (default: the file's base name)")
	cmd.Flags().IntVar(&flags.chunk, "chunk", 0, "Bytes per read request, 1-1920 (default files.chunk_size)")
	cmd.Flags().BoolVar(&flags.persist, "persist", false, "Store the file through the configured store")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Do not show a progress bar")
	return cmd
}

func runGet(cmd *cobra.Command, flags *getFlags, name string) error {
	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{openStore: flags.persist})
	if err != nil {
		return err
	}
	defer e.close()
	if flags.persist && e.store == nil {
		return fmt.Errorf("--persist needs a store (set store.type in the config)")
	}

	chunk := flags.chunk
	if chunk == 0 {
		chunk = e.cfg.Files.ChunkSize
	}

	bar := progress.NewProgressBar(0, name)
	bar.SetOutput(cmd.ErrOrStderr())
	if flags.quiet {
		bar.Disable()
	}
	fc, err := mc.ReadFile(ctx, e.dialer, e.cfg.Files.Drive, name, chunk,
		mc.WithProgress(bar.Set), mc.WithSessionLogger(e.logger))
	if err != nil {
		return e.wrap(err, "read file "+name)
	}
	bar.Finish()

	out := flags.out
	if out == "" {
		out = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	}
	if out == "-" {
		if _, err := cmd.OutOrStdout().Write(fc.Data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	} else {
		if err := os.WriteFile(out, fc.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		e.logger.Info("%s -> %s (%s)", name, out, progress.FormatBytes(int64(fc.Size)))
	}

	if flags.persist {
		rec, err := e.store.Put(ctx, store.Record{
			Drive:    fc.Drive,
			Filename: fc.Filename,
			Source:   e.source(),
		}, fc.Data)
		if err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
		e.logger.Info("Stored %s as %s (sha256 %s)", name, rec.ID, rec.SHA256)
	}
	return nil
}
