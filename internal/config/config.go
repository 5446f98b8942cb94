package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marco/videomap/internal/index"
	"github.com/marco/videomap/internal/scanner"
	"github.com/marco/videomap/internal/video"
)

// Config represents the application configuration
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Scanner ScannerConfig `yaml:"scanner"`
	Probe   ProbeConfig   `yaml:"probe"`
	Index   IndexConfig   `yaml:"index"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig holds the record store settings
type CacheConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// ScannerConfig holds scanner settings
type ScannerConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// ProbeConfig holds ffprobe settings
type ProbeConfig struct {
	FFprobePath string        `yaml:"ffprobe_path"`
	MemoSize    int           `yaml:"memo_size"`
	MemoTTL     time.Duration `yaml:"memo_ttl"`
}

// IndexConfig holds refresh behaviour
type IndexConfig struct {
	Workers       int    `yaml:"workers"`
	FailurePolicy string `yaml:"failure_policy"`
	Staleness     string `yaml:"staleness"`
	EncoderTarget string `yaml:"encoder_target"`
}

// WatchConfig holds settings for the watch command
type WatchConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	Interval     time.Duration `yaml:"interval"`
	RunOnStartup *bool         `yaml:"run_on_startup"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "videomap", "config.yaml")
	}
	return filepath.Join(home, ".config", "videomap", "config.yaml")
}

// DefaultCachePath is the default location of the record database.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cache", "videomap", "cache.db")
	}
	return filepath.Join(home, ".cache", "videomap", "cache.db")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	runOnStartup := true
	return &Config{
		Cache: CacheConfig{Path: DefaultCachePath()},
		Scanner: ScannerConfig{
			Extensions:  append([]string(nil), scanner.DefaultExtensions...),
			ExcludeDirs: []string{"@eaDir", "#recycle", ".Trash-"},
		},
		Probe: ProbeConfig{
			MemoSize: 4096,
			MemoTTL:  6 * time.Hour,
		},
		Index: IndexConfig{
			Workers:       runtime.NumCPU(),
			FailurePolicy: string(index.SkipFile),
			Staleness:     video.StalenessSize,
			EncoderTarget: video.TargetSoftware,
		},
		Watch: WatchConfig{
			Debounce:     5 * time.Second,
			Interval:     time.Hour,
			RunOnStartup: &runOnStartup,
		},
	}
}

// Load reads and parses the configuration file. An empty path selects
// DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	path = expandHome(path)

	cfg := Default()

	// Read the config file
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Probe.FFprobePath = expandHome(cfg.Probe.FFprobePath)
	cfg.Metrics.Textfile = expandHome(cfg.Metrics.Textfile)
	for i, dir := range cfg.Scanner.Directories {
		cfg.Scanner.Directories[i] = expandHome(dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values and normalises extensions and defaults in place.
func (c *Config) Validate() error {
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath()
	}

	if len(c.Scanner.Extensions) == 0 {
		c.Scanner.Extensions = append([]string(nil), scanner.DefaultExtensions...)
	}
	for i, ext := range c.Scanner.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			return fmt.Errorf("empty extension in scanner.extensions")
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Scanner.Extensions[i] = ext
	}

	if c.Index.Workers < 0 {
		return fmt.Errorf("index.workers must not be negative, got %d", c.Index.Workers)
	}
	if c.Index.Workers == 0 {
		c.Index.Workers = runtime.NumCPU()
	}
	if _, err := index.ParseFailurePolicy(c.Index.FailurePolicy); err != nil {
		return err
	}
	if _, err := video.ParseStalenessPolicy(c.Index.Staleness); err != nil {
		return err
	}
	if c.Index.EncoderTarget == "" {
		c.Index.EncoderTarget = video.TargetSoftware
	}
	if !video.ValidTarget(c.Index.EncoderTarget) {
		return fmt.Errorf("unknown encoder target %q (want one of %v)", c.Index.EncoderTarget, video.Targets)
	}

	if c.Probe.MemoSize < 0 {
		return fmt.Errorf("probe.memo_size must not be negative, got %d", c.Probe.MemoSize)
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce)
	}
	if c.Watch.Interval < 0 {
		return fmt.Errorf("watch.interval must not be negative, got %s", c.Watch.Interval)
	}
	if c.Watch.RunOnStartup == nil {
		runOnStartup := true
		c.Watch.RunOnStartup = &runOnStartup
	}
	return nil
}

// FailurePolicy returns the validated failure policy.
func (c *Config) FailurePolicy() index.FailurePolicy {
	p, err := index.ParseFailurePolicy(c.Index.FailurePolicy)
	if err != nil {
		return index.SkipFile
	}
	return p
}

// StalenessPolicy returns the validated staleness policy.
func (c *Config) StalenessPolicy() video.StalenessPolicy {
	p, err := video.ParseStalenessPolicy(c.Index.Staleness)
	if err != nil {
		return video.SizePolicy{}
	}
	return p
}

// expandHome expands a leading ~ to the home directory.
func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
