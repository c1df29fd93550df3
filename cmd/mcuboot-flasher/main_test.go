package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigbag/mcuboot-flasher/internal/config"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

func TestParseUint32(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0x60000000", 0x60000000, false},
		{"4096", 4096, false},
		{"0b101", 5, false},
		{"0x100000000", 0, true},
		{"six", 0, true},
	}

	for _, tt := range tests {
		got, err := parseUint32(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseUint32(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseUint32(%q) = 0x%X, want 0x%X", tt.in, got, tt.want)
		}
	}
}

func TestMemoryID(t *testing.T) {
	tests := []struct {
		in   string
		want protocol.MemoryID
	}{
		{"", protocol.MemInternal},
		{"9", protocol.MemFlexSPINOR},
		{"flexspinor", protocol.MemFlexSPINOR},
		{"0x120", protocol.MemSDCard},
	}

	for _, tt := range tests {
		got, err := memoryID(tt.in)
		if err != nil {
			t.Errorf("memoryID(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("memoryID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "")
	cmd.Flags().IntVarP(&baudFlag, "baud", "b", protocol.DefaultBaudRate, "")
	cmd.Flags().StringVarP(&timeoutFlag, "timeout", "t", "5s", "")
	cmd.Flags().StringVarP(&familyFlag, "family", "f", "", "")

	if err := cmd.ParseFlags([]string{"-p", "COM7", "-t", "250ms"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Family = "kw45b41z8"
	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatalf("applyFlags() error = %v", err)
	}

	if cfg.Port != "COM7" {
		t.Errorf("Port = %q, want %q", cfg.Port, "COM7")
	}
	if cfg.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 250*time.Millisecond)
	}
	if cfg.Baud != protocol.DefaultBaudRate {
		t.Errorf("Baud = %d, want %d", cfg.Baud, protocol.DefaultBaudRate)
	}
	if cfg.Family != "kw45b41z8" {
		t.Errorf("Family = %q, unset flag must keep the file value", cfg.Family)
	}
}

func TestReadFastFlagScopedToUSB(t *testing.T) {
	for _, c := range deviceCommands() {
		if c.Name() != "read" {
			continue
		}
		flag := c.Flags().Lookup("fast")
		if flag == nil {
			t.Fatal("read command has no --fast flag")
		}
		if !strings.Contains(flag.Usage, "USB transports") {
			t.Errorf("--fast usage = %q, want it scoped to USB transports", flag.Usage)
		}
		return
	}
	t.Fatal("read command not found")
}
