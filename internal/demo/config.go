package demo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of every demo command. Each command reads its
// own section.
type Config struct {
	Ticker TickerConfig `yaml:"ticker"`
	Dial   DialConfig   `yaml:"dial"`
}

type TickerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Count    int           `yaml:"count"`
}

type DialConfig struct {
	Addr        string        `yaml:"addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// BackoffStep is added to the wait after every failed attempt, until
	// BackoffMax is reached. The first retry happens immediately.
	BackoffStep time.Duration `yaml:"backoff_step"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	// MaxAttempts bounds consecutive failed attempts; 0 retries forever.
	MaxAttempts int `yaml:"max_attempts"`
	// MaxLines ends the session after that many lines; 0 reads until the
	// peer closes.
	MaxLines int `yaml:"max_lines"`
	// Once stops after the first connection closes instead of reconnecting.
	Once bool `yaml:"once"`
}

var ErrInvalidConfig = errors.New("invalid config")

func DefaultConfig() Config {
	return Config{
		Ticker: TickerConfig{
			Interval: time.Second,
			Count:    5,
		},
		Dial: DialConfig{
			Addr:        "localhost:1234",
			DialTimeout: 5 * time.Second,
			BackoffStep: 10 * time.Second,
			BackoffMax:  100 * time.Second,
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Ticker.Interval <= 0 {
		return fmt.Errorf("%w: ticker.interval must be positive", ErrInvalidConfig)
	}
	if c.Ticker.Count < 0 {
		return fmt.Errorf("%w: ticker.count must not be negative", ErrInvalidConfig)
	}
	if c.Dial.Addr == "" {
		return fmt.Errorf("%w: dial.addr is required", ErrInvalidConfig)
	}
	if c.Dial.BackoffStep < 0 || c.Dial.BackoffMax < 0 {
		return fmt.Errorf("%w: dial backoff must not be negative", ErrInvalidConfig)
	}
	if c.Dial.MaxAttempts < 0 || c.Dial.MaxLines < 0 {
		return fmt.Errorf("%w: dial limits must not be negative", ErrInvalidConfig)
	}
	return nil
}
