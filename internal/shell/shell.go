// Package shell provides an interactive prompt for browsing and fetching
// files from a PLC drive.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/logging"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/progress"
	"github.com/tturner/mcgw/internal/store"
)

// Options configures a Shell.
type Options struct {
	Dialer mc.Dialer
	Layout mc.Layout
	Files  config.FilesConfig
	// Store receives every fetched file when set.
	Store store.Store
	// Source is recorded with stored files, usually host:port.
	Source string
	// OutDir is where "get" writes files. Defaults to the working directory.
	OutDir string
	Logger *logging.Logger
}

// Shell is an interactive session bound to one device.
type Shell struct {
	opts  Options
	out   io.Writer
	rl    *readline.Instance
	drive uint16
	// cwd is the current directory without separators; "" is the root.
	cwd string
}

// New creates a shell reading from the terminal.
func New(opts Options) (*Shell, error) {
	s := newShell(opts, nil)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("ls"),
			readline.PcItem("cd"),
			readline.PcItem("pwd"),
			readline.PcItem("find"),
			readline.PcItem("get"),
			readline.PcItem("read"),
			readline.PcItem("drive"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	return s, nil
}

func newShell(opts Options, out io.Writer) *Shell {
	if opts.Files.ChunkSize <= 0 {
		opts.Files.ChunkSize = mc.MaxChunkSize
	}
	if opts.Files.RootMarker == "" {
		opts.Files.RootMarker = mc.DefaultRootMarker
	}
	return &Shell{opts: opts, out: out, drive: opts.Files.Drive}
}

// Stdout returns a writer that does not corrupt the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until exit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	fmt.Fprintln(s.out, "Type 'help' for commands.")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}
		if s.Exec(ctx, line) {
			return
		}
		s.rl.SetPrompt(s.prompt())
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "ls", "dir":
		err = s.cmdList(ctx, args)
	case "cd":
		err = s.cmdCd(args)
	case "pwd":
		fmt.Fprintf(s.out, "%d:%s\n", s.drive, s.displayDir())
	case "find":
		err = s.cmdFind(ctx, args)
	case "get":
		err = s.cmdGet(ctx, args)
	case "read", "r":
		err = s.cmdRead(ctx, args)
	case "drive":
		err = s.cmdDrive(args)
	case "exit", "quit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) prompt() string {
	return fmt.Sprintf("plc %d:%s> ", s.drive, s.displayDir())
}

func (s *Shell) displayDir() string {
	return `\` + s.cwd
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Commands:
  ls [dir]              - List a directory (default: current)
  cd <dir>              - Change directory ("\" or ".." returns to the root)
  pwd                   - Show drive and directory
  find <name>           - Search for a file
  get <name> [local]    - Fetch a file
  read <device> [n]     - Read n points from a device, e.g. read D100 4
  drive [n]             - Show or change the drive
  help                  - Show this help
  exit                  - Leave the shell`)
}

// listPath is what the device expects for dir; "" means the current one.
func (s *Shell) listPath(dir string) string {
	if dir == "" {
		dir = s.cwd
	}
	dir = strings.Trim(dir, `\/`)
	if dir == "" {
		return s.opts.Files.RootMarker
	}
	return dir
}

func (s *Shell) cmdList(ctx context.Context, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	}
	lister := &mc.Lister{
		Dialer:   s.opts.Dialer,
		Layout:   s.opts.Layout,
		PageSize: s.opts.Files.PageSize,
		Logger:   s.opts.Logger,
	}
	entries, err := lister.ListAll(ctx, s.drive, s.listPath(dir))
	if err != nil {
		return err
	}
	s.printEntries(entries)
	return nil
}

func (s *Shell) printEntries(entries []mc.FileEntry) {
	for _, e := range entries {
		kind, size := "    ", strconv.FormatUint(uint64(e.Size), 10)
		if e.IsDir() {
			kind, size = "<DIR>", ""
		}
		modified := ""
		if !e.Modified.IsZero() {
			modified = e.Modified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(s.out, "%-5s %10s  %-16s  %s\n", kind, size, modified, e.FullName())
	}
	fmt.Fprintf(s.out, "%d entries\n", len(entries))
}

func (s *Shell) cmdCd(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: cd <dir>")
	}
	dir := strings.Trim(args[0], `\/`)
	switch {
	case dir == "" || dir == "..":
		s.cwd = ""
	case s.cwd != "":
		return fmt.Errorf("nested directories are not supported (at %s)", s.displayDir())
	default:
		s.cwd = strings.ToUpper(dir)
	}
	return nil
}

func (s *Shell) cmdFind(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: find <name>")
	}
	searcher := &mc.Searcher{
		Dialer:      s.opts.Dialer,
		Layout:      s.opts.Layout,
		DefaultPath: s.opts.Files.DefaultPath,
		RootMarker:  s.opts.Files.RootMarker,
		PageSize:    s.opts.Files.PageSize,
		Logger:      s.opts.Logger,
	}
	entries, err := searcher.Search(ctx, s.drive, args[0], s.cwd)
	if err != nil {
		return err
	}
	s.printEntries(entries)
	return nil
}

func (s *Shell) cmdGet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: get <name> [local]")
	}
	name := args[0]
	remote := name
	if s.cwd != "" && !strings.ContainsAny(name, `\/`) {
		remote = s.cwd + `\` + name
	}
	local := filepath.Join(s.opts.OutDir, filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if len(args) > 1 {
		local = args[1]
	}

	bar := progress.NewProgressBar(0, name)
	bar.SetOutput(s.out)
	fc, err := mc.ReadFile(ctx, s.opts.Dialer, s.drive, remote, s.opts.Files.ChunkSize,
		mc.WithProgress(bar.Set), mc.WithSessionLogger(s.opts.Logger))
	if err != nil {
		return err
	}
	bar.Finish()

	if err := os.WriteFile(local, fc.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", local, err)
	}
	fmt.Fprintf(s.out, "%s -> %s (%s)\n", remote, local, progress.FormatBytes(int64(fc.Size)))

	if s.opts.Store != nil {
		rec, err := s.opts.Store.Put(ctx, store.Record{
			Drive:    s.drive,
			Filename: remote,
			Source:   s.opts.Source,
		}, fc.Data)
		if err != nil {
			return fmt.Errorf("store %s: %w", remote, err)
		}
		fmt.Fprintf(s.out, "stored as %s\n", rec.ID)
	}
	return nil
}

func (s *Shell) cmdRead(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: read <device> [points]")
	}
	n := uint64(1)
	if len(args) > 1 {
		var err error
		if n, err = strconv.ParseUint(args[1], 10, 32); err != nil {
			return fmt.Errorf("invalid point count %q", args[1])
		}
	}
	d, err := mc.ParseDevice(args[0], uint32(n))
	if err != nil {
		return err
	}
	reader := &mc.DeviceReader{Dialer: s.opts.Dialer, Logger: s.opts.Logger}
	values, err := reader.Read(ctx, d)
	if err != nil {
		return err
	}
	for i, v := range values {
		next := d
		next.Address += uint32(i)
		fmt.Fprintf(s.out, "%-8s %d\n", next, v)
	}
	return nil
}

func (s *Shell) cmdDrive(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "drive %d\n", s.drive)
		return nil
	}
	n, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid drive %q", args[0])
	}
	s.drive = uint16(n)
	s.cwd = ""
	return nil
}
