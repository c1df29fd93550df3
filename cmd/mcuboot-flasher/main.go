package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigbag/mcuboot-flasher/internal/config"
	"github.com/bigbag/mcuboot-flasher/internal/detect"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag    string
	portFlag      string
	baudFlag      int
	timeoutFlag   string
	familyFlag    string
	logLevelFlag  string
	usbFilterFlag string
	memIDFlag     string
	fastFlag      bool
	outputFlag    string
	formatFlag    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mcuboot-flasher",
		Short: "Talk to MCUboot ROM bootloaders on NXP devices",
		Long: `mcuboot-flasher drives the MCUboot ROM bootloader of NXP Kinetis, LPC,
i.MX RT and MCX devices over a serial port.

It reads device properties, reads and writes memory, erases flash,
configures external memories and runs the complete flashing workflow
for FlexSPI NOR boot images.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", config.DefaultPath(), "Config file")
	pf.StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	pf.IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "Baud rate")
	pf.StringVarP(&timeoutFlag, "timeout", "t", protocol.DefaultTimeout.String(), "Response timeout")
	pf.StringVarP(&familyFlag, "family", "f", "", "Device family, used to decode properties")
	pf.StringVar(&logLevelFlag, "log-level", "info", "Log level (trace, debug, info, warn, error, disabled)")
	pf.StringVar(&usbFilterFlag, "usb", config.DefaultUSBFilter, "USB vid:pid used when auto-detecting")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mcuboot-flasher %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "Find bootloaders answering on serial ports",
		RunE:  runDetect,
	}

	rootCmd.AddCommand(versionCmd, listCmd, detectCmd)
	rootCmd.AddCommand(deviceCommands()...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ports, err := serial.ListDetailed()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	matching := map[string]bool{}
	for _, p := range serial.FilterUSB(ports, cfg.USBFilter) {
		matching[p.Name] = true
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		mark := " "
		if p.IsUSB && matching[p.Name] {
			mark = "*"
		}
		fmt.Printf(" %s %s\n", mark, p)
	}
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := detectOptions(cfg)

	if cfg.Port != "" {
		result, err := detect.DetectOnPort(cfg.Port, opts)
		if err != nil {
			return fmt.Errorf("no bootloader on %s: %w", cfg.Port, err)
		}
		printDetected(result)
		return nil
	}

	fmt.Println("Scanning for MCUboot devices...")
	devices, err := detect.ListDevices(opts)
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No MCUboot devices found")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("Device %d:\n", i+1)
		printDetected(&d)
		fmt.Println()
	}
	return nil
}

func printDetected(d *detect.Result) {
	fmt.Printf("  Port:     %s\n", d.Port.Name)
	if d.Port.IsUSB {
		fmt.Printf("  USB:      %s:%s %s\n", d.Port.VID, d.Port.PID, d.Port.Product)
	}
	fmt.Printf("  Protocol: %s\n", d.Version)
}
