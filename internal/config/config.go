// Package config loads the fw-prompt configuration file and environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. FWPROMPT_SERVE_DIALOG.
const EnvPrefix = "FWPROMPT"

// Duration wraps time.Duration with YAML unmarshalling for human-readable strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServeConfig holds serve-subcommand settings.
type ServeConfig struct {
	// Bus is "system", "session" or a D-Bus address.
	Bus         string `yaml:"bus" envconfig:"BUS"`
	ReplaceName bool   `yaml:"replace_name" envconfig:"REPLACE_NAME"`

	Dialog   string `yaml:"dialog" envconfig:"DIALOG"`
	TTY      string `yaml:"tty" envconfig:"TTY"`
	LockPath string `yaml:"lock_path" envconfig:"LOCK_PATH"`
	Expanded bool   `yaml:"expanded" envconfig:"EXPANDED"`
	Expert   bool   `yaml:"expert" envconfig:"EXPERT"`

	RetryInterval Duration `yaml:"retry_interval" envconfig:"RETRY_INTERVAL"`
	MaxAttempts   int      `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	HistoryLimit  int      `yaml:"history_limit" envconfig:"HISTORY_LIMIT"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogFile   string `yaml:"log_file" envconfig:"LOG_FILE"`
	AuditLog  string `yaml:"audit_log" envconfig:"AUDIT_LOG"`

	API *bool `yaml:"api" envconfig:"API"`
}

// Config is the top-level configuration file structure.
type Config struct {
	StateDir string      `yaml:"state_dir" envconfig:"STATE_DIR"`
	Listen   string      `yaml:"listen" envconfig:"LISTEN"`
	Serve    ServeConfig `yaml:"serve" envconfig:"SERVE"`
}

// DefaultPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "fw-prompt", "config.yaml")
}

// Load reads and parses a YAML config file, then applies FWPROMPT_*
// environment overrides. A missing file yields a config built from the
// environment alone.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Defaults applied by WithDefaults.
const (
	DefaultListenAddr    = "127.0.0.1:8485"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultBus           = "system"
	DefaultDialog        = "notify"
	DefaultRetryInterval = 20 * time.Millisecond
	DefaultMaxAttempts   = 200
	DefaultHistoryLimit  = 100
)

// DefaultStateDir returns $XDG_STATE_HOME/fw-prompt.
func DefaultStateDir() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "fw-prompt")
}

// WithDefaults returns a copy of c with every unset field filled in.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.StateDir == "" {
		out.StateDir = DefaultStateDir()
	}
	if out.Listen == "" {
		out.Listen = DefaultListenAddr
	}

	s := &out.Serve
	if s.Bus == "" {
		s.Bus = DefaultBus
	}
	if s.Dialog == "" {
		s.Dialog = DefaultDialog
	}
	if s.RetryInterval == 0 {
		s.RetryInterval = Duration(DefaultRetryInterval)
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = DefaultMaxAttempts
	}
	if s.HistoryLimit == 0 {
		s.HistoryLimit = DefaultHistoryLimit
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = DefaultLogFormat
	}
	if s.API == nil {
		enabled := true
		s.API = &enabled
	}
	return &out
}

// APIEnabled reports whether the monitor API should be served.
func (s ServeConfig) APIEnabled() bool {
	return s.API == nil || *s.API
}

// Validate checks the values WithDefaults does not fill in.
func (c *Config) Validate() error {
	s := c.Serve
	switch s.Dialog {
	case "", "notify", "terminal":
	default:
		return fmt.Errorf("serve.dialog must be notify or terminal, got %q", s.Dialog)
	}
	switch s.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("serve.log_format must be text or json, got %q", s.LogFormat)
	}
	if s.RetryInterval < 0 {
		return fmt.Errorf("serve.retry_interval must not be negative")
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("serve.max_attempts must not be negative")
	}
	if s.HistoryLimit < 0 {
		return fmt.Errorf("serve.history_limit must not be negative")
	}
	return nil
}
