package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for shipsbell.
type Config struct {
	Clock         ClockConfig        `yaml:"clock"`
	Notifications NotificationConfig `yaml:"notifications"`
	Dispatcher    DispatcherConfig   `yaml:"dispatcher"`
	Audio         AudioConfig        `yaml:"audio"`
	Location      LocationConfig     `yaml:"location"`
	Log           LogConfig          `yaml:"log"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// ClockConfig controls how the time of day is read.
type ClockConfig struct {
	// Timezone is an IANA name, or "Local".
	Timezone     string   `yaml:"timezone"`
	TickInterval Duration `yaml:"tick_interval"`
}

// NotificationConfig controls deferred delivery while the clock is in
// the background.
type NotificationConfig struct {
	// Horizon is the number of half-hour boundaries scheduled ahead.
	Horizon int `yaml:"horizon"`
	// OnRequest is the decision recorded the first time the capability
	// is sought: granted, denied or undetermined.
	OnRequest string `yaml:"on_request"`
	Database  string `yaml:"database"`
}

// DispatcherConfig controls delivery of deferred bells.
type DispatcherConfig struct {
	// Embedded runs a dispatcher inside `shipsbell run`.
	Embedded bool     `yaml:"embedded"`
	Interval Duration `yaml:"interval"`
	Grace    Duration `yaml:"grace"`
	Batch    int      `yaml:"batch"`
}

// AudioConfig selects how strikes are sounded.
type AudioConfig struct {
	// Player is "terminal" (BEL) or "command".
	Player    string   `yaml:"player"`
	Command   []string `yaml:"command"`
	StrikeGap Duration `yaml:"strike_gap"`
	GroupGap  Duration `yaml:"group_gap"`
}

// LocationConfig controls the proximity monitor.
type LocationConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OnRequest string `yaml:"on_request"`
	// Command prints NMEA sentences. Ignored when File is set.
	Command      []string `yaml:"command"`
	File         string   `yaml:"file"`
	PollInterval Duration `yaml:"poll_interval"`
	ReadTimeout  Duration `yaml:"read_timeout"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is a listen address such as "127.0.0.1:9478". Empty disables.
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML unmarshalling from strings like "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Clock: ClockConfig{
			Timezone:     "Local",
			TickInterval: Duration{time.Second},
		},
		Notifications: NotificationConfig{
			Horizon:   24,
			OnRequest: "granted",
			Database:  filepath.Join(stateDir(), "bells.db"),
		},
		Dispatcher: DispatcherConfig{
			Embedded: true,
			Interval: Duration{time.Second},
			Grace:    Duration{5 * time.Minute},
			Batch:    16,
		},
		Audio: AudioConfig{
			Player:    "terminal",
			StrikeGap: Duration{350 * time.Millisecond},
			GroupGap:  Duration{900 * time.Millisecond},
		},
		Location: LocationConfig{
			Enabled:      true,
			OnRequest:    "undetermined",
			Command:      []string{"gpspipe", "-r", "-n", "8"},
			PollInterval: Duration{30 * time.Second},
			ReadTimeout:  Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(stateDir(), "shipsbell.log"),
		},
	}
}

// Load reads the config file and merges with defaults.
// Missing file is not an error; defaults are used silently.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads config from a specific path.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Defaults(), fmt.Errorf("config validation: %w", err)
	}

	cfg.Notifications.Database = expandHome(cfg.Notifications.Database)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Location.File = expandHome(cfg.Location.File)
	for i, arg := range cfg.Audio.Command {
		cfg.Audio.Command[i] = expandHome(arg)
	}

	return cfg, nil
}

func (c Config) validate() error {
	ti := c.Clock.TickInterval.Duration
	if ti < 100*time.Millisecond || ti > 30*time.Second {
		return fmt.Errorf("tick_interval must be between 100ms and 30s, got %s", ti)
	}

	if h := c.Notifications.Horizon; h < 1 || h > 64 {
		return fmt.Errorf("horizon must be between 1 and 64, got %d", h)
	}
	if err := validGrant("notifications.on_request", c.Notifications.OnRequest); err != nil {
		return err
	}
	if err := validGrant("location.on_request", c.Location.OnRequest); err != nil {
		return err
	}

	di := c.Dispatcher.Interval.Duration
	if di < 100*time.Millisecond || di > time.Minute {
		return fmt.Errorf("dispatcher interval must be between 100ms and 1m, got %s", di)
	}
	if g := c.Dispatcher.Grace.Duration; g < di {
		return fmt.Errorf("grace must be at least the dispatcher interval (%s), got %s", di, g)
	}
	if c.Dispatcher.Batch < 1 {
		return fmt.Errorf("batch must be positive, got %d", c.Dispatcher.Batch)
	}

	switch c.Audio.Player {
	case "terminal":
	case "command":
		if len(c.Audio.Command) == 0 {
			return fmt.Errorf("audio player \"command\" needs a command")
		}
	default:
		return fmt.Errorf("audio player must be terminal or command, got %q", c.Audio.Player)
	}
	if c.Audio.StrikeGap.Duration < 0 || c.Audio.GroupGap.Duration < 0 {
		return fmt.Errorf("strike_gap and group_gap must not be negative")
	}

	pi := c.Location.PollInterval.Duration
	if pi < 5*time.Second || pi > 10*time.Minute {
		return fmt.Errorf("location poll_interval must be between 5s and 10m, got %s", pi)
	}
	rt := c.Location.ReadTimeout.Duration
	if rt < time.Second || rt > pi {
		return fmt.Errorf("read_timeout must be between 1s and poll_interval (%s), got %s", pi, rt)
	}

	return nil
}

func validGrant(field, v string) error {
	switch v {
	case "granted", "denied", "undetermined":
		return nil
	}
	return fmt.Errorf("%s must be granted, denied or undetermined, got %q", field, v)
}

// Path returns the config file location.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "shipsbell", "config.yml")
}

func stateDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "shipsbell")
}

func expandHome(p string) string {
	if p == "~" || len(p) > 1 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
