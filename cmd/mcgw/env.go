package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/config"
	apperrors "github.com/tturner/mcgw/internal/errors"
	"github.com/tturner/mcgw/internal/logging"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/metrics"
	"github.com/tturner/mcgw/internal/plc"
	"github.com/tturner/mcgw/internal/store"
)

// plcFlags are shared by every command that talks to a device.
type plcFlags struct {
	configPath string
	host       string
	port       int
	series     string
	drive      int
	layout     string
	timeout    string
	logLevel   string
	logFile    string
	metricsCSV string
	stats      bool
}

func registerPLCFlags(cmd *cobra.Command, flags *plcFlags) {
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path (default $XDG_CONFIG_HOME/mcgw/mcgw.yaml)")
	cmd.Flags().StringVar(&flags.host, "host", "", "PLC host (overrides plc.host)")
	cmd.Flags().IntVar(&flags.port, "port", 0, "PLC MC protocol port (overrides plc.port)")
	cmd.Flags().StringVar(&flags.series, "series", "", "CPU series: Q|L|iQ-R (overrides plc.series)")
	cmd.Flags().IntVar(&flags.drive, "drive", -1, "Drive number (overrides files.drive)")
	cmd.Flags().StringVar(&flags.layout, "layout", "", "Listing layout: auto|tail|leading (overrides files.layout)")
	cmd.Flags().StringVar(&flags.timeout, "timeout", "", "Exchange timeout, e.g. 3s (overrides plc.timeout)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "Also write log lines to this file")
	cmd.Flags().StringVar(&flags.metricsCSV, "metrics-csv", "", "Write one CSV row per PLC exchange to this file")
	cmd.Flags().BoolVar(&flags.stats, "stats", false, "Print an exchange summary to stderr when done")
}

// env is everything a device command needs, built from config and flags.
type env struct {
	cfg      *config.Config
	logger   *logging.Logger
	sink     *metrics.Sink
	writer   *metrics.Writer
	prom     *metrics.Prometheus
	dialer   *plc.Dialer
	layout   mc.Layout
	store    store.Store
	showStat bool
}

type setupOptions struct {
	// openStore opens the configured store; commands that never persist skip it.
	openStore bool
	// prometheus forces the Prometheus recorder regardless of config.
	prometheus bool
}

func loadConfig(flags *plcFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath, false)
	if err != nil {
		return nil, err
	}
	if flags.host != "" {
		cfg.PLC.Host = flags.host
	}
	if flags.port != 0 {
		cfg.PLC.Port = flags.port
	}
	if flags.series != "" {
		cfg.PLC.Series = flags.series
	}
	if flags.drive >= 0 {
		cfg.Files.Drive = uint16(flags.drive)
	}
	if flags.layout != "" {
		cfg.Files.Layout = flags.layout
	}
	if flags.timeout != "" {
		d, err := time.ParseDuration(flags.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.PLC.Timeout = d
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.Logging.File = flags.logFile
	}
	if flags.metricsCSV != "" {
		cfg.Metrics.CSV = flags.metricsCSV
	}
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.WrapConfigError(err, displayConfigPath(flags.configPath))
	}
	return cfg, nil
}

func displayConfigPath(path string) string {
	if path == "" {
		return config.GetDefaultConfigPath()
	}
	return path
}

func setup(ctx context.Context, flags *plcFlags, opts setupOptions) (*env, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	e := &env{cfg: cfg, logger: logger, sink: metrics.NewSink(), showStat: flags.stats}
	recorders := metrics.Multi{e.sink}
	if cfg.Metrics.CSV != "" || cfg.Metrics.JSON != "" {
		if e.writer, err = metrics.NewWriter(cfg.Metrics.CSV, cfg.Metrics.JSON); err != nil {
			e.close()
			return nil, fmt.Errorf("create metrics writer: %w", err)
		}
		recorders = append(recorders, e.writer)
	}
	if opts.prometheus || cfg.Metrics.Prometheus {
		e.prom = metrics.NewPrometheus(cfg.Metrics.Runtime)
		recorders = append(recorders, e.prom)
	}

	if e.dialer, err = plc.NewDialer(cfg.PLC, logger, recorders); err != nil {
		e.close()
		return nil, err
	}
	if e.layout, err = mc.ResolveLayout(cfg.Files.Layout, cfg.PLC.Series); err != nil {
		e.close()
		return nil, err
	}

	if opts.openStore {
		if e.store, err = store.FromConfig(ctx, cfg.Store); err != nil {
			e.close()
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Type, err)
		}
	}

	logger.Verbose("PLC %s (%s), drive %d, layout %s", e.dialer.Addr(), cfg.PLC.Series, cfg.Files.Drive, e.layout.Name())
	return e, nil
}

// close flushes metrics and releases the store and log file.
func (e *env) close() {
	if e.showStat {
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, metrics.FormatSummary(e.sink.GetSummary()))
	}
	if e.writer != nil {
		if err := e.writer.Close(); err != nil {
			e.logger.Error("close metrics writer: %v", err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("close store: %v", err)
		}
	}
	_ = e.logger.Close()
}

// wrap turns a core error into a user-facing one naming the target.
func (e *env) wrap(err error, operation string) error {
	return apperrors.Wrap(err, operation, e.cfg.PLC.Host, e.cfg.PLC.Port)
}

func (e *env) source() string {
	return e.dialer.Addr()
}
