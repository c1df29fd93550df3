// Package detect finds MCUboot bootloaders listening on serial ports.
package detect

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/mcuboot-flasher/internal/framing"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
	"github.com/bigbag/mcuboot-flasher/internal/serial"
	"github.com/bigbag/mcuboot-flasher/internal/transport"
)

// ErrNotFound is returned when no port answers the bootloader ping.
var ErrNotFound = errors.New("no MCUboot device found")

// Result represents a detected bootloader.
type Result struct {
	Port    serial.PortInfo
	Version framing.PingResponse
}

func (r Result) String() string {
	return fmt.Sprintf("%s (protocol %s)", r.Port, r.Version)
}

// Options controls how ports are probed.
type Options struct {
	BaudRate int
	Timeout  time.Duration
	// USBFilter limits probing to USB adapters matching "vid:pid".
	USBFilter string
	Log       zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = protocol.DefaultBaudRate
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	return o
}

// Swapped out by tests.
var (
	listPorts = serial.ListDetailed
	openPort  = func(name string, baudRate int) (transport.Port, error) {
		return serial.Open(name, baudRate)
	}
)

// DetectDevice returns the first port with a bootloader that answers a ping.
func DetectDevice(opts Options) (*Result, error) {
	opts = opts.withDefaults()
	ports, err := candidates(opts)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, p := range ports {
		result, err := tryPort(p, opts)
		if err != nil {
			opts.Log.Debug().Str("port", p.Name).Err(err).Msg("No bootloader")
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (last error: %v)", ErrNotFound, lastErr)
	}
	return nil, ErrNotFound
}

// DetectOnPort pings a bootloader on a specific port.
func DetectOnPort(portName string, opts Options) (*Result, error) {
	return tryPort(serial.PortInfo{Name: portName}, opts.withDefaults())
}

// ListDevices scans all ports and returns every bootloader that answers.
func ListDevices(opts Options) ([]Result, error) {
	opts = opts.withDefaults()
	ports, err := candidates(opts)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, p := range ports {
		result, err := tryPort(p, opts)
		if err == nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

func candidates(opts Options) ([]serial.PortInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	ports = serial.FilterUSB(ports, opts.USBFilter)
	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: no matching serial ports", ErrNotFound)
	}
	return ports, nil
}

func tryPort(info serial.PortInfo, opts Options) (*Result, error) {
	uart := transport.NewUART(func() (transport.Port, error) {
		return openPort(info.Name, opts.BaudRate)
	}, opts.Timeout, opts.Log)

	if err := uart.Open(); err != nil {
		return nil, fmt.Errorf("%s: %w", info.Name, err)
	}
	defer uart.Close()

	return &Result{Port: info, Version: uart.Version()}, nil
}
