// Package config loads and validates the docanalyzer configuration:
// watched directories, fleet limits, lock/chunking/retry/heartbeat
// tuning, and the three upstream service endpoints.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maverikod/docanalyzer/internal/errors"
)

// Config is the complete docanalyzer configuration.
type Config struct {
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Fleet     FleetConfig     `yaml:"fleet" json:"fleet"`
	Lock      LockConfig      `yaml:"lock" json:"lock"`
	Chunking  ChunkingConfig  `yaml:"chunking" json:"chunking"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" json:"heartbeat"`
}

// WatchConfig configures which directories are watched and how they
// are scanned.
type WatchConfig struct {
	Directories      []string      `yaml:"directories" json:"directories"`
	SupportedFormats []string      `yaml:"supported_formats" json:"supported_formats"`
	Recursive        bool          `yaml:"recursive" json:"recursive"`
	MaxFileSize      int64         `yaml:"max_file_size" json:"max_file_size"`
	ScanInterval     time.Duration `yaml:"scan_interval" json:"scan_interval"`
}

// FleetConfig configures the Master's Worker fleet.
type FleetConfig struct {
	MaxProcesses int `yaml:"max_processes" json:"max_processes"`
}

// LockConfig configures directory lock advisory inspection.
type LockConfig struct {
	// Timeout is a staleness threshold used only for advisory
	// inspection; the lock itself has no TTL, liveness is authoritative.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ChunkingConfig configures the Chunking Manager.
type ChunkingConfig struct {
	MaxBlockSize        int `yaml:"max_block_size" json:"max_block_size"`
	MaxBlocksPerBatch   int `yaml:"max_blocks_per_batch" json:"max_blocks_per_batch"`
}

// ServiceConfig is one upstream endpoint's address and policy.
type ServiceConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Retries int           `yaml:"retries" json:"retries"`
}

// UpstreamConfig configures the three remote services the Facade
// speaks to.
type UpstreamConfig struct {
	VectorStore  ServiceConfig `yaml:"vector_store" json:"vector_store"`
	Segmentation ServiceConfig `yaml:"segmentation" json:"segmentation"`
	Embedding    ServiceConfig `yaml:"embedding" json:"embedding"`
}

// RetryConfig configures the Error Handler's backoff shape.
type RetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
}

// HeartbeatConfig configures Worker liveness monitoring.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// defaultSupportedFormats lists the file extensions watched when the
// configuration does not name any.
var defaultSupportedFormats = []string{".txt", ".md"}

// New returns a Config populated with the defaults named throughout
// spec.md §6.
func New() *Config {
	return &Config{
		Watch: WatchConfig{
			Directories:      []string{},
			SupportedFormats: append([]string{}, defaultSupportedFormats...),
			Recursive:        true,
			MaxFileSize:      10 * 1024 * 1024,
			ScanInterval:     30 * time.Second,
		},
		Fleet: FleetConfig{
			MaxProcesses: 4,
		},
		Lock: LockConfig{
			Timeout: time.Hour,
		},
		Chunking: ChunkingConfig{
			MaxBlockSize:      1500,
			MaxBlocksPerBatch: 50,
		},
		Upstream: UpstreamConfig{
			VectorStore:  ServiceConfig{URL: "http://localhost:8007", Timeout: 30 * time.Second, Retries: 3},
			Segmentation: ServiceConfig{URL: "http://localhost:8009", Timeout: 30 * time.Second, Retries: 3},
			Embedding:    ServiceConfig{URL: "http://localhost:8001", Timeout: 30 * time.Second, Retries: 3},
		},
		Retry: RetryConfig{
			BaseDelay:   1 * time.Second,
			MaxDelay:    16 * time.Second,
			MaxAttempts: 3,
		},
		Heartbeat: HeartbeatConfig{
			Interval: 5 * time.Second,
			Timeout:  30 * time.Second,
		},
	}
}

// Load reads a YAML config file from path, applying it on top of
// defaults, then env var overrides for the upstream URLs (highest
// precedence, matching the teacher's env > file > default order).
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCANALYZER_VECTORSTORE_URL"); v != "" {
		cfg.Upstream.VectorStore.URL = v
	}
	if v := os.Getenv("DOCANALYZER_SEGMENTATION_URL"); v != "" {
		cfg.Upstream.Segmentation.URL = v
	}
	if v := os.Getenv("DOCANALYZER_EMBEDDING_URL"); v != "" {
		cfg.Upstream.Embedding.URL = v
	}
	if v := os.Getenv("DOCANALYZER_MAX_PROCESSES"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Fleet.MaxProcesses = n
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive: %q", s)
	}
	return n, nil
}

// Validate checks the configuration for the constraints spec.md §7
// requires be fatal (ConfigInvalid) at Master startup.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.KindConfigInvalid, "config", "", "", 0, fmt.Errorf(format, args...))
	}

	if len(c.Watch.Directories) == 0 {
		return invalid("watch.directories must list at least one directory")
	}
	if len(c.Watch.SupportedFormats) == 0 {
		return invalid("watch.supported_formats must not be empty")
	}
	if c.Watch.MaxFileSize <= 0 {
		return invalid("watch.max_file_size must be positive")
	}
	if c.Fleet.MaxProcesses <= 0 {
		return invalid("fleet.max_processes must be positive")
	}
	if c.Chunking.MaxBlockSize <= 0 {
		return invalid("chunking.max_block_size must be positive")
	}
	if c.Chunking.MaxBlocksPerBatch <= 0 {
		return invalid("chunking.max_blocks_per_batch must be positive")
	}
	for name, svc := range map[string]ServiceConfig{
		"vector_store": c.Upstream.VectorStore,
		"segmentation": c.Upstream.Segmentation,
		"embedding":    c.Upstream.Embedding,
	} {
		if svc.URL == "" {
			return invalid("upstream.%s.url must be set", name)
		}
		if svc.Timeout <= 0 {
			return invalid("upstream.%s.timeout must be positive", name)
		}
	}
	if c.Retry.MaxAttempts < 0 {
		return invalid("retry.max_attempts must not be negative")
	}
	if c.Heartbeat.Interval <= 0 {
		return invalid("heartbeat.interval must be positive")
	}
	if c.Heartbeat.Timeout <= c.Heartbeat.Interval {
		return invalid("heartbeat.timeout must be greater than heartbeat.interval")
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
