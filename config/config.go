package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"earthprint/encoder"
)

const EnvPrefix = "EARTHPRINT"

// Config is the effective client configuration.
type Config struct {
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Meter   MeterConfig   `mapstructure:"meter" yaml:"meter"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ServiceConfig points at the analysis service
type ServiceConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AudioConfig contains capture and encoding parameters
type AudioConfig struct {
	Format           string `mapstructure:"format" yaml:"format"`
	SampleRate       int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels         int    `mapstructure:"channels" yaml:"channels"`
	EchoCancellation bool   `mapstructure:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression" yaml:"noise_suppression"`
	Device           string `mapstructure:"device" yaml:"device"` // empty means system default
	Cues             bool   `mapstructure:"cues" yaml:"cues"`
}

type MeterConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	Smoothing float64       `mapstructure:"smoothing" yaml:"smoothing"`
	FFTSize   int           `mapstructure:"fft_size" yaml:"fft_size"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // empty disables the endpoint
}

type LogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.url", "http://localhost:8000")
	v.SetDefault("service.timeout", 60*time.Second)
	v.SetDefault("audio.format", encoder.FormatFLAC)
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.echo_cancellation", true)
	v.SetDefault("audio.noise_suppression", true)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.cues", true)
	v.SetDefault("meter.interval", 50*time.Millisecond)
	v.SetDefault("meter.smoothing", 0.8)
	v.SetDefault("meter.fft_size", 1024)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.path", "")
}

// DefaultPath is $XDG_CONFIG_HOME/earthprint/config.yaml.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "earthprint", "config.yaml")
}

// Load merges defaults, the YAML file and EARTHPRINT_* environment variables,
// in increasing priority. An explicit path must exist; the default path is
// optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if file == "" {
		file = DefaultPath()
		if _, err := os.Stat(file); err != nil {
			file = ""
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Service.Validate(); err != nil {
		return fmt.Errorf("service config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Meter.Validate(); err != nil {
		return fmt.Errorf("meter config: %w", err)
	}
	return nil
}

func (s *ServiceConfig) Validate() error {
	if s.URL == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("url %q: %w", s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", s.URL)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", s.Timeout)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if !slices.Contains(encoder.Formats(), a.Format) {
		return fmt.Errorf("format must be one of %v, got '%s'", encoder.Formats(), a.Format)
	}
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}
	return nil
}

func (m *MeterConfig) Validate() error {
	if m.Interval < 10*time.Millisecond {
		return fmt.Errorf("interval must be at least 10ms, got %s", m.Interval)
	}
	if m.Smoothing < 0 || m.Smoothing >= 1 {
		return fmt.Errorf("smoothing must be in [0, 1), got %f", m.Smoothing)
	}
	if m.FFTSize < 32 || m.FFTSize > 32768 || m.FFTSize&(m.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two between 32 and 32768, got %d", m.FFTSize)
	}
	return nil
}

// Dump renders the configuration as YAML.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
