package config

// Configuration loading and validation for mcgw

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tturner/mcgw/internal/errors"
)

// EnvPrefix prefixes every environment override (MCGW_PLC_HOST, ...).
const EnvPrefix = "MCGW"

// Config represents the complete mcgw configuration.
//
// Sources in order of precedence:
//  1. Environment variables (MCGW_*, plus PLC_IP, PLC_PORT, PLC_TIMEOUT_SEC
//     and PLC_DRIVE)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	PLC      PLCConfig      `yaml:"plc" mapstructure:"plc"`
	Files    FilesConfig    `yaml:"files" mapstructure:"files"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Gateway  GatewayConfig  `yaml:"gateway" mapstructure:"gateway"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Emulator EmulatorConfig `yaml:"emulator" mapstructure:"emulator"`
}

// PLCConfig addresses the device.
type PLCConfig struct {
	Host    string        `yaml:"host" mapstructure:"host" validate:"required"`
	Port    int           `yaml:"port" mapstructure:"port" validate:"required,min=1,max=65535"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	// Series is the CPU family: Q, L or iQ-R.
	Series   string `yaml:"series" mapstructure:"series" validate:"required,oneof=Q L iQ-R"`
	Network  uint8  `yaml:"network" mapstructure:"network"`
	PC       uint8  `yaml:"pc" mapstructure:"pc"`
	ModuleIO uint16 `yaml:"module_io" mapstructure:"module_io"`
	Station  uint8  `yaml:"station" mapstructure:"station"`
}

// FilesConfig controls directory listing, search and transfer.
type FilesConfig struct {
	Drive       uint16 `yaml:"drive" mapstructure:"drive"`
	Layout      string `yaml:"layout" mapstructure:"layout" validate:"required,oneof=auto tail leading"`
	DefaultPath string `yaml:"default_path" mapstructure:"default_path" validate:"required"`
	RootMarker  string `yaml:"root_marker" mapstructure:"root_marker" validate:"required"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size" validate:"min=1,max=65535"`
	ChunkSize   int    `yaml:"chunk_size" mapstructure:"chunk_size" validate:"min=1,max=1920"`
	// ListCount is the number of entries a single listing asks for.
	ListCount int `yaml:"list_count" mapstructure:"list_count" validate:"min=1,max=65535"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=silent off error info verbose debug"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// GatewayConfig controls the HTTP gateway.
type GatewayConfig struct {
	Listen          string        `yaml:"listen" mapstructure:"listen" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	// Persist stores every fetched file through the configured store.
	Persist bool `yaml:"persist" mapstructure:"persist"`
}

// StoreConfig selects the sidecar store. Options are decoded by the backend.
type StoreConfig struct {
	Type    string         `yaml:"type" mapstructure:"type" validate:"oneof=none badger fs s3"`
	Options map[string]any `yaml:"options,omitempty" mapstructure:"options"`
}

// MetricsConfig controls exchange metrics.
type MetricsConfig struct {
	CSV        string `yaml:"csv,omitempty" mapstructure:"csv"`
	JSON       string `yaml:"json,omitempty" mapstructure:"json"`
	Prometheus bool   `yaml:"prometheus" mapstructure:"prometheus"`
	Runtime    bool   `yaml:"runtime" mapstructure:"runtime"`
}

// EmulatorConfig controls the built-in device emulator.
type EmulatorConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen" validate:"required,hostname_port"`
	Series string `yaml:"series" mapstructure:"series" validate:"required,oneof=Q L iQ-R"`
	Layout string `yaml:"layout" mapstructure:"layout" validate:"required,oneof=auto tail leading"`
	// SearchMiss makes every search answer file-not-found.
	SearchMiss bool          `yaml:"search_miss" mapstructure:"search_miss"`
	Drives     []DriveConfig `yaml:"drives,omitempty" mapstructure:"drives" validate:"dive"`
}

// DriveConfig maps a host directory onto an emulated drive.
type DriveConfig struct {
	Number uint16 `yaml:"number" mapstructure:"number"`
	Dir    string `yaml:"dir" mapstructure:"dir" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PLC: PLCConfig{
			Host:     "127.0.0.1",
			Port:     5511,
			Timeout:  3 * time.Second,
			Series:   "iQ-R",
			Network:  0x00,
			PC:       0xFF,
			ModuleIO: 0x03FF,
			Station:  0x00,
		},
		Files: FilesConfig{
			Drive:       4,
			Layout:      "auto",
			DefaultPath: "$MELPRJ$",
			RootMarker:  `\`,
			PageSize:    256,
			ChunkSize:   1920,
			ListCount:   36,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Gateway: GatewayConfig{
			Listen:          "127.0.0.1:8001",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type: "none",
		},
		Emulator: EmulatorConfig{
			Listen: "127.0.0.1:5511",
			Series: "iQ-R",
			Layout: "auto",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a file
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load loads configuration from file, environment, and defaults.
//
// An empty path searches the default location and tolerates a missing file.
// An explicit path that does not exist is created with defaults when
// autoCreate is set, and is an error otherwise.
func Load(path string, autoCreate bool) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.WrapConfigError(fmt.Errorf("stat config file: %w", err), path)
			}
			if !autoCreate {
				return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
			}
			if err := WriteDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("create default config: %w", err)
			}
		}
	}

	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v); err != nil {
		return nil, errors.WrapConfigError(err, displayPath(v, path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("unmarshal config: %w", err), displayPath(v, path))
	}

	if err := applyLegacyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment overrides, defaults and the config file.
func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names understood by the original gateway deployment.
	_ = v.BindEnv("plc.host", EnvPrefix+"_PLC_HOST", "PLC_IP")
	_ = v.BindEnv("plc.port", EnvPrefix+"_PLC_PORT", "PLC_PORT")
	_ = v.BindEnv("files.drive", EnvPrefix+"_FILES_DRIVE", "PLC_DRIVE")

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.AddConfigPath(".")
	v.AddConfigPath(GetConfigDir())
	v.SetConfigName("mcgw")
	v.SetConfigType("yaml")
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("plc.host", d.PLC.Host)
	v.SetDefault("plc.port", d.PLC.Port)
	v.SetDefault("plc.timeout", d.PLC.Timeout)
	v.SetDefault("plc.series", d.PLC.Series)
	v.SetDefault("plc.network", d.PLC.Network)
	v.SetDefault("plc.pc", d.PLC.PC)
	v.SetDefault("plc.module_io", d.PLC.ModuleIO)
	v.SetDefault("plc.station", d.PLC.Station)

	v.SetDefault("files.drive", d.Files.Drive)
	v.SetDefault("files.layout", d.Files.Layout)
	v.SetDefault("files.default_path", d.Files.DefaultPath)
	v.SetDefault("files.root_marker", d.Files.RootMarker)
	v.SetDefault("files.page_size", d.Files.PageSize)
	v.SetDefault("files.chunk_size", d.Files.ChunkSize)
	v.SetDefault("files.list_count", d.Files.ListCount)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("gateway.listen", d.Gateway.Listen)
	v.SetDefault("gateway.read_timeout", d.Gateway.ReadTimeout)
	v.SetDefault("gateway.write_timeout", d.Gateway.WriteTimeout)
	v.SetDefault("gateway.shutdown_timeout", d.Gateway.ShutdownTimeout)
	v.SetDefault("gateway.persist", d.Gateway.Persist)

	v.SetDefault("store.type", d.Store.Type)

	v.SetDefault("metrics.csv", d.Metrics.CSV)
	v.SetDefault("metrics.json", d.Metrics.JSON)
	v.SetDefault("metrics.prometheus", d.Metrics.Prometheus)
	v.SetDefault("metrics.runtime", d.Metrics.Runtime)

	v.SetDefault("emulator.listen", d.Emulator.Listen)
	v.SetDefault("emulator.series", d.Emulator.Series)
	v.SetDefault("emulator.layout", d.Emulator.Layout)
	v.SetDefault("emulator.search_miss", d.Emulator.SearchMiss)
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// applyLegacyEnv handles PLC_TIMEOUT_SEC, which is given in (fractional)
// seconds rather than as a duration.
func applyLegacyEnv(cfg *Config) error {
	if os.Getenv(EnvPrefix+"_PLC_TIMEOUT") != "" {
		return nil
	}
	raw := os.Getenv("PLC_TIMEOUT_SEC")
	if raw == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return errors.WrapConfigError(fmt.Errorf("PLC_TIMEOUT_SEC: invalid value %q", raw), "environment")
	}
	cfg.PLC.Timeout = time.Duration(secs * float64(time.Second))
	return nil
}

func displayPath(v *viper.Viper, path string) string {
	if used := v.ConfigFileUsed(); used != "" {
		return used
	}
	if path != "" {
		return path
	}
	return GetDefaultConfigPath()
}

// GetConfigDir returns $XDG_CONFIG_HOME/mcgw, ~/.config/mcgw, or "." as a
// last resort.
func GetConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mcgw")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mcgw")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "mcgw.yaml")
}
