// Package config loads the daemon configuration: defaults, then a YAML file, then SUBGHZ_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Radio    RadioConfig    `yaml:"radio"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Hopper   HopperConfig   `yaml:"hopper"`
	Notify   NotifyConfig   `yaml:"notify"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

type RadioConfig struct {
	SPIChannel byte   `yaml:"spiChannel"`
	SPISpeed   int    `yaml:"spiSpeed"`
	GDO0Pin    int    `yaml:"gdo0Pin"`
	RFSwitch   int    `yaml:"rfSwitchPin"` // 0 when the board has none
	Region     string `yaml:"region"`
	// Microseconds of slack the transmit refill gets after a half buffer drains.
	RefillDeadlineUs int `yaml:"refillDeadlineUs"`
}

type ReceiverConfig struct {
	Frequency     uint32    `yaml:"frequency"`
	Preset        string    `yaml:"preset"`
	TickMs        int       `yaml:"tickMs"`
	HistoryBudget int       `yaml:"historyBudget"`
	RSSIThreshold float32   `yaml:"rssiThreshold"`
	Decoders      []string  `yaml:"decoders"`
	Fallback      string    `yaml:"fallback"`
	Ignore        []string  `yaml:"ignore"`
	DedupMs       int       `yaml:"dedupMs"`
	Raw           RawConfig `yaml:"raw"`
}

type RawConfig struct {
	GapUs      uint32 `yaml:"gapUs"`
	MinSamples int    `yaml:"minSamples"`
	Horizon    int    `yaml:"horizon"`
}

type HopperConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Frequencies []uint32 `yaml:"frequencies"`
	IdleTicks   int      `yaml:"idleTicks"`
	HoldTicks   int      `yaml:"holdTicks"`
}

type NotifyConfig struct {
	LED   string `yaml:"led"`
	Vibro string `yaml:"vibro"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	Debug      bool   `yaml:"debug"`
}

func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			SPIChannel:       0,
			SPISpeed:         500000,
			GDO0Pin:          24,
			Region:           "unlocked",
			RefillDeadlineUs: 5000,
		},
		Receiver: ReceiverConfig{
			Frequency:     433920000,
			Preset:        "AM650",
			TickMs:        100,
			HistoryBudget: 4096,
			RSSIThreshold: -85,
			Decoders:      []string{"Princeton"},
			Fallback:      "RAW",
			DedupMs:       500,
			Raw: RawConfig{
				GapUs:      10000,
				MinSamples: 24,
				Horizon:    2048,
			},
		},
		Hopper: HopperConfig{
			Frequencies: []uint32{310000000, 315000000, 318000000, 390000000, 433920000, 868350000},
			IdleTicks:   1,
			HoldTicks:   10,
		},
		Storage: StorageConfig{Dir: "keys"},
		Metrics: MetricsConfig{Listen: ":9110"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load returns the defaults overlaid with path, if not empty, and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %v", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if region := os.Getenv("SUBGHZ_REGION"); region != "" {
		cfg.Radio.Region = region
	}
	if preset := os.Getenv("SUBGHZ_PRESET"); preset != "" {
		cfg.Receiver.Preset = preset
	}
	if freq := os.Getenv("SUBGHZ_FREQUENCY"); freq != "" {
		if hz, err := strconv.ParseUint(freq, 10, 32); err == nil {
			cfg.Receiver.Frequency = uint32(hz)
		}
	}
	if hop := os.Getenv("SUBGHZ_HOPPING"); hop != "" {
		if on, err := strconv.ParseBool(hop); err == nil {
			cfg.Hopper.Enabled = on
		}
	}
	if dir := os.Getenv("SUBGHZ_KEY_DIR"); dir != "" {
		cfg.Storage.Dir = dir
	}
	if level := os.Getenv("SUBGHZ_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func (c *Config) Validate() error {
	if c.Radio.GDO0Pin <= 0 {
		return fmt.Errorf("radio.gdo0Pin must be set")
	}
	if c.Radio.SPISpeed <= 0 {
		return fmt.Errorf("radio.spiSpeed must be positive, got %d", c.Radio.SPISpeed)
	}
	if c.Receiver.TickMs <= 0 {
		return fmt.Errorf("receiver.tickMs must be positive, got %d", c.Receiver.TickMs)
	}
	if c.Receiver.HistoryBudget <= 0 {
		return fmt.Errorf("receiver.historyBudget must be positive, got %d", c.Receiver.HistoryBudget)
	}
	if c.Receiver.Preset == "" {
		return fmt.Errorf("receiver.preset must be set")
	}
	if c.Hopper.Enabled && len(c.Hopper.Frequencies) == 0 {
		return fmt.Errorf("hopper.frequencies must not be empty when hopping is enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}

func (c *Config) Tick() time.Duration {
	return time.Duration(c.Receiver.TickMs) * time.Millisecond
}

func (c *Config) RefillDeadline() time.Duration {
	return time.Duration(c.Radio.RefillDeadlineUs) * time.Microsecond
}

func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Receiver.DedupMs) * time.Millisecond
}
