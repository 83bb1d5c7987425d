// Package config handles global configuration loading using viper,
// following the teacher's `capture-agent:`-root-keyed YAML convention
// adapted to the `pollcore:` root key and this module's tunables
// (spec.md §6).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GlobalConfig is the top-level static configuration, mapping to the
// `pollcore:` root key in YAML.
type GlobalConfig struct {
	Node    NodeConfig    `mapstructure:"node"`
	Control ControlConfig `mapstructure:"control"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Preproc PreprocConfig `mapstructure:"preproc"`
}

// NodeConfig identifies this agent instance.
type NodeConfig struct {
	Hostname string            `mapstructure:"hostname"` // empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ControlConfig configures the RTC Unix-domain-socket channel
// (spec.md §6 "RTC").
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// LogConfig configures structured logging (matches the teacher's
// internal/log adapter).
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Pattern string `mapstructure:"pattern"`
	Time    string `mapstructure:"time"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// PollerConfig holds the tunables named in spec.md §6: `source_ip`,
// `timeout`, `unavailable_delay`, `unreachable_delay`, `unreachable_period`,
// `max_concurrent_checks_per_poller`, `process_num`.
type PollerConfig struct {
	SourceIP                     string        `mapstructure:"source_ip"`
	Timeout                      time.Duration `mapstructure:"timeout"`
	UnavailableDelay             time.Duration `mapstructure:"unavailable_delay"`
	UnreachableDelay             time.Duration `mapstructure:"unreachable_delay"`
	UnreachablePeriod            time.Duration `mapstructure:"unreachable_period"`
	MaxConcurrentChecksPerPoller int           `mapstructure:"max_concurrent_checks_per_poller"`
	ProcessNum                   int           `mapstructure:"process_num"`
	Nameserver                   string        `mapstructure:"nameserver"`
}

// PreprocConfig holds the preprocessor's worker-count tunable
// (spec.md §6 "worker count").
type PreprocConfig struct {
	Workers int `mapstructure:"workers"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `pollcore: ...`.
type configRoot struct {
	Pollcore GlobalConfig `mapstructure:"pollcore"`
}

// Load reads path, applies defaults and POLLCORE_-prefixed env overrides,
// and validates the result.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Pollcore

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pollcore.control.socket", "/var/run/pollcore.sock")
	v.SetDefault("pollcore.control.pid_file", "/var/run/pollcore.pid")

	v.SetDefault("pollcore.log.level", "info")
	v.SetDefault("pollcore.log.pattern", "%time [%level] %caller %msg %field")
	v.SetDefault("pollcore.log.time", "2006-01-02T15:04:05.000Z07:00")

	v.SetDefault("pollcore.metrics.enabled", true)
	v.SetDefault("pollcore.metrics.listen", ":9091")
	v.SetDefault("pollcore.metrics.path", "/metrics")

	v.SetDefault("pollcore.poller.timeout", "3s")
	v.SetDefault("pollcore.poller.unavailable_delay", "5m")
	v.SetDefault("pollcore.poller.unreachable_delay", "15s")
	v.SetDefault("pollcore.poller.unreachable_period", "45s")
	v.SetDefault("pollcore.poller.max_concurrent_checks_per_poller", 1000)
	v.SetDefault("pollcore.poller.process_num", 1)
	v.SetDefault("pollcore.poller.nameserver", "127.0.0.1:53")

	v.SetDefault("pollcore.preproc.workers", 4)
}

// validate enforces the invariants the rest of the module assumes: a
// recognized log level, a positive poller timeout, and positive counts
// (concurrency cap, process_num, preproc workers). The hysteresis
// durations are not checked.
func (cfg *GlobalConfig) validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}

	p := &cfg.Poller
	if p.MaxConcurrentChecksPerPoller <= 0 {
		return fmt.Errorf("poller.max_concurrent_checks_per_poller must be positive, got %d", p.MaxConcurrentChecksPerPoller)
	}
	if p.ProcessNum <= 0 {
		return fmt.Errorf("poller.process_num must be positive, got %d", p.ProcessNum)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("poller.timeout must be positive, got %s", p.Timeout)
	}
	if cfg.Preproc.Workers <= 0 {
		return fmt.Errorf("preproc.workers must be positive, got %d", cfg.Preproc.Workers)
	}
	return nil
}
