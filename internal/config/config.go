// Package config loads flasher settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bigbag/mcuboot-flasher/internal/framing"
	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// DefaultUSBFilter is the USB id of the MCUboot USB-serial bridge.
const DefaultUSBFilter = "0x15a2:0x0073"

// Config holds the settings shared by all commands. Command-line flags
// override values loaded from the file.
type Config struct {
	Port          string        `yaml:"port,omitempty"`
	Baud          int           `yaml:"baud"`
	Timeout       time.Duration `yaml:"timeout"`
	Family        string        `yaml:"family,omitempty"`
	FamiliesFile  string        `yaml:"families_file,omitempty"`
	LogLevel      string        `yaml:"log_level"`
	FastMode      bool          `yaml:"fast_mode,omitempty"`
	PausePoint    int           `yaml:"pause_point,omitempty"`
	MaxPacketSize int           `yaml:"max_packet_size,omitempty"`
	DataAbort     bool          `yaml:"data_abort,omitempty"`
	USBFilter     string        `yaml:"usb_filter"`
}

// DefaultConfig returns a configuration with defaults for every field.
func DefaultConfig() *Config {
	return &Config{
		Baud:      protocol.DefaultBaudRate,
		Timeout:   protocol.DefaultTimeout,
		LogLevel:  "info",
		USBFilter: DefaultUSBFilter,
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mcuboot-flasher.yaml"
	}
	return filepath.Join(home, ".mcuboot-flasher", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud must be positive, got %d", c.Baud))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.PausePoint < 0 {
		errs = append(errs, fmt.Errorf("pause_point must not be negative, got %d", c.PausePoint))
	}
	if c.MaxPacketSize < 0 || c.MaxPacketSize > framing.MaxPayload {
		errs = append(errs, fmt.Errorf("max_packet_size must be between 0 and %d, got %d", framing.MaxPayload, c.MaxPacketSize))
	}
	if c.USBFilter != "" && !strings.Contains(c.USBFilter, ":") {
		errs = append(errs, fmt.Errorf("usb_filter must be vid:pid, got %q", c.USBFilter))
	}
	return errors.Join(errs...)
}

// FamilyLookup returns the built-in family database, extended with
// families_file when one is configured.
func (c *Config) FamilyLookup() (property.FamilyLookup, error) {
	db := property.DefaultFamilies()
	if c.FamiliesFile == "" {
		return db.Lookup, nil
	}

	f, err := os.Open(c.FamiliesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open families file: %w", err)
	}
	defer f.Close()

	extra, err := property.LoadFamilyDatabase(f)
	if err != nil {
		return nil, err
	}
	return db.Merge(extra).Lookup, nil
}
