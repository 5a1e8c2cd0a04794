package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied by validateAndDefault.
const (
	DefaultMultiplier   = 100
	DefaultRotationDays = 30
	DefaultLogLevel     = "info"
	DefaultDirFailures  = "warn"
	DefaultConfigPath   = "/etc/treesweep/config.yaml"

	systemStateDir = "/var/lib/treesweep"
)

// StateDir holds the history database and run lock unless configured
// otherwise: /var/lib/treesweep for root, the user cache directory for
// everyone else.
func StateDir() string {
	if os.Geteuid() == 0 {
		return systemStateDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "treesweep")
	}
	return filepath.Join(os.TempDir(), "treesweep")
}

type WorkersCfg struct {
	Multiplier int `yaml:"multiplier" json:"multiplier"` // Pool size is NumCPU * multiplier
	Max        int `yaml:"max" json:"max"`               // Hard cap on pool size, 0 = no cap
}

type LoggingCfg struct {
	Level        string `yaml:"level" json:"level"`
	File         string `yaml:"file" json:"file"`                   // Optional JSON log file, empty = console only
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type MetricsCfg struct {
	Listen   string `yaml:"listen" json:"listen"`     // e.g. ":9090", empty = no HTTP endpoint
	Textfile string `yaml:"textfile" json:"textfile"` // node_exporter textfile output, empty = off
}

type SafetyCfg struct {
	AllowedRoots   []string `yaml:"allowed_roots" json:"allowed_roots"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`
}

type Config struct {
	Workers           WorkersCfg `yaml:"workers" json:"workers"`
	DirectoryFailures string     `yaml:"directory_failures" json:"directory_failures"` // warn or abort
	Logging           LoggingCfg `yaml:"logging" json:"logging"`
	Metrics           MetricsCfg `yaml:"metrics" json:"metrics"`
	DatabasePath      string     `yaml:"database_path" json:"database_path"` // SQLite run history
	LockPath          string     `yaml:"lock_path" json:"lock_path"`
	Safety            SafetyCfg  `yaml:"safety" json:"safety"`
}

var (
	errInvalidPath       = errors.New("path must be absolute")
	errNegativeWorkers   = errors.New("workers values cannot be negative")
	errInvalidPolicy     = errors.New("directory_failures must be warn or abort")
	errInvalidLogLevel   = errors.New("logging.level must be one of trace, debug, info, warn, error")
	errNegativeRetention = errors.New("logging.rotation_days cannot be negative")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	// Defaults on an empty config cannot fail
	_ = cfg.validateAndDefault()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate re-checks a config after command line overrides were applied.
func (c *Config) Validate() error {
	return c.validateAndDefault()
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file, everything defaulted
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.Workers.Multiplier < 0 || c.Workers.Max < 0 {
		return errNegativeWorkers
	}
	if c.Workers.Multiplier == 0 {
		c.Workers.Multiplier = DefaultMultiplier
	}

	policy := strings.ToLower(strings.TrimSpace(c.DirectoryFailures))
	switch policy {
	case "":
		policy = DefaultDirFailures
	case "warn", "abort":
	default:
		return fmt.Errorf("%w: %q", errInvalidPolicy, c.DirectoryFailures)
	}
	c.DirectoryFailures = policy

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch level {
	case "":
		level = DefaultLogLevel
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", errInvalidLogLevel, c.Logging.Level)
	}
	c.Logging.Level = level

	if c.Logging.RotationDays < 0 {
		return errNegativeRetention
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = DefaultRotationDays
	}

	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(StateDir(), "history.db")
	}
	if c.LockPath == "" {
		c.LockPath = filepath.Join(StateDir(), "treesweep.lock")
	}

	var err error
	if c.Logging.File != "" {
		if c.Logging.File, err = cleanAbsolute(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	if c.Metrics.Textfile != "" {
		if c.Metrics.Textfile, err = cleanAbsolute(c.Metrics.Textfile); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	if c.Safety.AllowedRoots, err = cleanAll(c.Safety.AllowedRoots); err != nil {
		return fmt.Errorf("safety.allowed_roots: %w", err)
	}
	if c.Safety.ProtectedPaths, err = cleanAll(c.Safety.ProtectedPaths); err != nil {
		return fmt.Errorf("safety.protected_paths: %w", err)
	}

	return nil
}

func cleanAll(paths []string) ([]string, error) {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, cp)
	}
	return cleaned, nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}
