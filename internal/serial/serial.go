package serial

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// readTimeout is the poll interval of Read; a read that times out returns (0, nil).
const readTimeout = 100 * time.Millisecond

// Port wraps a serial port opened 8N1.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Write writes data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// Read reads data from the serial port.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// Drain waits until all written data has been transmitted.
func (p *Port) Drain() error {
	return p.port.Drain()
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// PortInfo describes a serial port and, for USB adapters, its USB identity.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (i PortInfo) String() string {
	if !i.IsUSB {
		return i.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", i.Name, i.VID, i.PID)
	if i.Product != "" {
		s += " " + i.Product
	}
	if i.SerialNumber != "" {
		s += " SN:" + i.SerialNumber
	}
	return s
}

// ListDetailed returns the available serial ports with USB details.
func ListDetailed() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return infos, nil
}

// FilterUSB keeps the USB ports matching a "vid:pid" filter, e.g. "0x15a2:0x0073".
// Either side may be empty; an empty filter keeps every port.
func FilterUSB(ports []PortInfo, filter string) []PortInfo {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return ports
	}
	vid, pid, _ := strings.Cut(filter, ":")

	var out []PortInfo
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if vid != "" && !sameID(p.VID, vid) {
			continue
		}
		if pid != "" && !sameID(p.PID, pid) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sameID compares USB ids written as hex, with or without a 0x prefix.
func sameID(a, b string) bool {
	x, errA := parseID(a)
	y, errB := parseID(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return x == y
}

func parseID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	return strconv.ParseUint(s, 16, 16)
}
