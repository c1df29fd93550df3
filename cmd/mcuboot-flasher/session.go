package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/mcuboot-flasher/internal/config"
	"github.com/bigbag/mcuboot-flasher/internal/detect"
	"github.com/bigbag/mcuboot-flasher/internal/logging"
	"github.com/bigbag/mcuboot-flasher/internal/mboot"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/serial"
	"github.com/bigbag/mcuboot-flasher/internal/transport"
)

// loadConfig reads the config file and applies the flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portFlag
	}
	if flags.Changed("baud") {
		cfg.Baud = baudFlag
	}
	if flags.Changed("timeout") {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if flags.Changed("family") {
		cfg.Family = familyFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if flags.Changed("usb") {
		cfg.USBFilter = usbFilterFlag
	}
	if flags.Lookup("fast") != nil && flags.Changed("fast") {
		cfg.FastMode = fastFlag
	}
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.Setup(os.Stderr, cfg.LogLevel)
}

func detectOptions(cfg *config.Config) detect.Options {
	return detect.Options{
		BaudRate:  cfg.Baud,
		Timeout:   time.Second,
		USBFilter: cfg.USBFilter,
		Log:       newLogger(cfg),
	}
}

// resolvePort returns the configured port, or the first port with a bootloader.
func resolvePort(cfg *config.Config) (string, error) {
	if cfg.Port != "" {
		return cfg.Port, nil
	}
	fmt.Println("Detecting device...")
	result, err := detect.DetectDevice(detectOptions(cfg))
	if err != nil {
		return "", fmt.Errorf("device detection failed: %w", err)
	}
	fmt.Printf("Found bootloader on %s (protocol %s)\n", result.Port.Name, result.Version)
	return result.Port.Name, nil
}

// withSession opens a bootloader session for the command and closes it when fn returns.
func withSession(cmd *cobra.Command, fn func(m *mboot.McuBoot, cfg *config.Config) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	portName, err := resolvePort(cfg)
	if err != nil {
		return err
	}

	lookup, err := cfg.FamilyLookup()
	if err != nil {
		return err
	}

	uart := transport.NewUART(func() (transport.Port, error) {
		return serial.Open(portName, cfg.Baud)
	}, cfg.Timeout, log)

	opts := []mboot.Option{
		mboot.WithLogger(log),
		mboot.WithTimeout(cfg.Timeout),
		mboot.WithFamily(cfg.Family),
		mboot.WithFamilyLookup(lookup),
		mboot.WithPausePoint(cfg.PausePoint),
		mboot.WithDataAbort(cfg.DataAbort),
		mboot.WithDefaultMaxPacketSize(cfg.MaxPacketSize),
	}

	log.Debug().Str("port", portName).Int("baud", cfg.Baud).Msg("Connecting to bootloader")
	return mboot.Run(uart, opts, func(m *mboot.McuBoot) error {
		return fn(m, cfg)
	})
}

func newProgress(description string, total int) (*progressbar.ProgressBar, mboot.ProgressCallback) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return bar, func(current, total int) {
		bar.Set(current)
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func parseArgs(args []string) ([]uint32, error) {
	vals := make([]uint32, len(args))
	for i, a := range args {
		v, err := parseUint32(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func memoryID(s string) (protocol.MemoryID, error) {
	if s == "" {
		return protocol.MemInternal, nil
	}
	return protocol.ParseMemoryID(s)
}
