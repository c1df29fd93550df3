package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigbag/mcuboot-flasher/internal/config"
	"github.com/bigbag/mcuboot-flasher/internal/mboot"
	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/sdp"
	"github.com/bigbag/mcuboot-flasher/internal/serial"
	"github.com/bigbag/mcuboot-flasher/internal/shell"
)

// Flash workflow defaults for FlexSPI NOR boot on i.MX RT.
const (
	defaultConfigAddress = 0x20202000
	defaultFlashOption0  = 0xC0000007
	defaultFlashAddress  = 0x60000000
)

var (
	configAddrFlag string
	option0Flag    string
	flashAddrFlag  string
	skipEraseFlag  bool
	resetFlag      bool
	flashMemFlag   string
)

func deviceCommands() []*cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show all device properties",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
	infoCmd.Flags().StringVar(&formatFlag, "format", "text", "Output format (text, yaml)")

	getCmd := &cobra.Command{
		Use:   "get-property <property> [index]",
		Short: "Show one property, by name or number",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGetProperty,
	}

	readCmd := &cobra.Command{
		Use:   "read <address> <length>",
		Short: "Read memory",
		Args:  cobra.ExactArgs(2),
		RunE:  runRead,
	}
	readCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Save to file instead of printing a hex dump")
	readCmd.Flags().BoolVar(&fastFlag, "fast", false, "Read in a single command on USB transports; serial ports always do")

	writeCmd := &cobra.Command{
		Use:   "write <address> <file>",
		Short: "Write a file to memory",
		Args:  cobra.ExactArgs(2),
		RunE:  runWrite,
	}

	fillCmd := &cobra.Command{
		Use:   "fill <address> <length> <pattern>",
		Short: "Fill memory with a 32-bit pattern",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args)
			if err != nil {
				return err
			}
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return m.FillMemory(vals[0], vals[1], vals[2])
			})
		},
	}

	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase the whole memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			memID, err := memoryID(memIDFlag)
			if err != nil {
				return err
			}
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return m.FlashEraseAll(memID)
			})
		},
	}

	eraseRegionCmd := &cobra.Command{
		Use:   "erase-region <address> <length>",
		Short: "Erase a memory region",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals, err := parseArgs(args)
			if err != nil {
				return err
			}
			memID, err := memoryID(memIDFlag)
			if err != nil {
				return err
			}
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return m.FlashEraseRegion(vals[0], vals[1], memID)
			})
		},
	}

	configureCmd := &cobra.Command{
		Use:   "configure <address>",
		Short: "Configure an external memory from a config block in RAM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseUint32(args[0])
			if err != nil {
				return err
			}
			memID, err := memoryID(memIDFlag)
			if err != nil {
				return err
			}
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return m.ConfigureMemory(addr, memID)
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return m.Reset(false)
			})
		},
	}

	flashCmd := &cobra.Command{
		Use:   "flash <image.bin>",
		Short: "Flash a boot image to external NOR flash",
		Long: `Flash a boot image to FlexSPI NOR flash.

The workflow:
  - Write the FlexSPI NOR config option words to RAM
  - Configure the external memory from them
  - Erase the external memory (unless --skip-erase)
  - Write the image`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().StringVar(&configAddrFlag, "config-address", fmt.Sprintf("0x%08X", defaultConfigAddress), "RAM address of the memory config block")
	flashCmd.Flags().StringVar(&option0Flag, "option0", fmt.Sprintf("0x%08X", defaultFlashOption0), "FlexSPI NOR config option0 word")
	flashCmd.Flags().StringVar(&flashAddrFlag, "address", fmt.Sprintf("0x%08X", defaultFlashAddress), "Image address")
	flashCmd.Flags().BoolVar(&skipEraseFlag, "skip-erase", false, "Do not erase before writing")
	flashCmd.Flags().BoolVar(&resetFlag, "reset", false, "Reset the device when done")

	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive bootloader shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
				return shell.New(m, os.Stdout).Run()
			})
		},
	}

	sdpsCmd := &cobra.Command{
		Use:   "sdps <image.bin>",
		Short: "Download a boot image to a ROM in serial download mode",
		Args:  cobra.ExactArgs(1),
		RunE:  runSDPS,
	}

	for _, c := range []*cobra.Command{readCmd, writeCmd, eraseCmd, eraseRegionCmd, configureCmd} {
		c.Flags().StringVarP(&memIDFlag, "mem-id", "m", "", "Memory id or name (e.g. 9, flexspinor)")
	}
	flashCmd.Flags().StringVarP(&flashMemFlag, "mem-id", "m", "flexspinor", "Memory id or name")

	return []*cobra.Command{
		infoCmd, getCmd, readCmd, writeCmd, fillCmd, eraseCmd, eraseRegionCmd,
		configureCmd, resetCmd, flashCmd, shellCmd, sdpsCmd,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
		props, err := m.GetPropertyList()
		if err != nil {
			return err
		}

		if formatFlag == "yaml" {
			out := make(map[string]string, len(props))
			for _, p := range props {
				out[p.Name()] = p.ValueString()
			}
			data, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		}

		for _, p := range props {
			fmt.Println(p)
		}
		return nil
	})
}

func runGetProperty(cmd *cobra.Command, args []string) error {
	tag, err := property.ParseTag(args[0])
	if err != nil {
		return err
	}
	var index uint32
	if len(args) == 2 {
		if index, err = parseUint32(args[1]); err != nil {
			return err
		}
	}
	return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
		v, err := m.DecodeProperty(tag, index)
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	})
}

func runRead(cmd *cobra.Command, args []string) error {
	vals, err := parseArgs(args)
	if err != nil {
		return err
	}
	memID, err := memoryID(memIDFlag)
	if err != nil {
		return err
	}
	address, length := vals[0], int(vals[1])

	return withSession(cmd, func(m *mboot.McuBoot, cfg *config.Config) error {
		bar, progress := newProgress("Reading", length)
		data, err := m.ReadMemory(address, length,
			mboot.WithMemoryID(memID),
			mboot.WithFastMode(cfg.FastMode),
			mboot.WithProgress(progress))
		bar.Finish()
		if err != nil && len(data) == 0 {
			return err
		}
		if err != nil {
			fmt.Printf("Warning: read %d of %d bytes: %v\n", len(data), length, err)
		}

		if outputFlag == "" {
			fmt.Print(hex.Dump(data))
			return nil
		}
		if err := os.WriteFile(outputFlag, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputFlag, err)
		}
		fmt.Printf("Saved %d bytes to %s\n", len(data), outputFlag)
		return nil
	})
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, err := parseUint32(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	memID, err := memoryID(memIDFlag)
	if err != nil {
		return err
	}

	return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
		fmt.Printf("Writing %s (%d bytes) at 0x%08X\n", args[1], len(data), address)
		bar, progress := newProgress("Writing", len(data))
		err := m.WriteMemory(address, data, mboot.WithMemoryID(memID), mboot.WithProgress(progress))
		bar.Finish()
		if err != nil {
			return err
		}
		fmt.Println("Write complete!")
		return nil
	})
}

func runFlash(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}
	vals, err := parseArgs([]string{configAddrFlag, option0Flag, flashAddrFlag})
	if err != nil {
		return err
	}
	configAddr, option0, flashAddr := vals[0], vals[1], vals[2]
	memID, err := memoryID(flashMemFlag)
	if err != nil {
		return err
	}

	fmt.Printf("Image: %s (%d bytes)\n", args[0], len(image))

	return withSession(cmd, func(m *mboot.McuBoot, _ *config.Config) error {
		fmt.Printf("Configuring %s from 0x%08X...\n", memID, configAddr)
		if err := m.FillMemory(configAddr, 4, option0); err != nil {
			return err
		}
		if err := m.FillMemory(configAddr+4, 4, 0); err != nil {
			return err
		}
		if err := m.ConfigureMemory(configAddr, memID); err != nil {
			return err
		}

		if !skipEraseFlag {
			fmt.Println("Erasing...")
			if err := m.FlashEraseAll(memID); err != nil {
				return err
			}
		}

		fmt.Printf("Flashing at 0x%08X...\n", flashAddr)
		bar, progress := newProgress("Flashing", len(image))
		err := m.WriteMemory(flashAddr, image, mboot.WithProgress(progress))
		bar.Finish()
		if err != nil {
			return err
		}
		fmt.Println("\nFlash complete!")

		if resetFlag {
			fmt.Println("Rebooting device...")
			if err := m.Reset(false); err != nil {
				fmt.Printf("Warning: reset failed: %v\n", err)
			}
		}
		fmt.Println("Done!")
		return nil
	})
}

func runSDPS(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Port == "" {
		return fmt.Errorf("sdps needs --port")
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	port, err := serial.Open(cfg.Port, cfg.Baud)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	fmt.Printf("Port: %s @ %d baud\n", port.PortName(), port.BaudRate())
	d := sdp.NewDownloader(port, sdp.WithLogger(newLogger(cfg)))
	bar, progress := newProgress("Downloading", len(image))
	err = d.WriteFile(image, progress)
	bar.Finish()
	if err != nil {
		return err
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("failed to drain port: %w", err)
	}
	fmt.Println("\nDownload complete!")
	return nil
}
