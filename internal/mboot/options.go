package mboot

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// Option configures a session.
type Option func(*McuBoot)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *McuBoot) { m.log = log }
}

// WithTimeout sets the operation deadline used when retrying an aborted read.
func WithTimeout(d time.Duration) Option {
	return func(m *McuBoot) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithFamily decodes properties with the overrides of a device family.
func WithFamily(family string) Option {
	return func(m *McuBoot) { m.family = family }
}

// WithFamilyLookup replaces the built-in family database.
func WithFamilyLookup(lookup property.FamilyLookup) Option {
	return func(m *McuBoot) { m.lookup = lookup }
}

// WithPauseDelay sets how long a write stalls at the pause point.
func WithPauseDelay(d time.Duration) Option {
	return func(m *McuBoot) { m.pauseDelay = d }
}

// WithPausePoint sets the byte offset after which writes stall once.
func WithPausePoint(offset int) Option {
	return func(m *McuBoot) { m.pausePoint = offset }
}

// WithDataAbort enables abort detection during write data phases.
func WithDataAbort(enable bool) Option {
	return func(m *McuBoot) { m.enableDataAbort = enable }
}

// WithDefaultMaxPacketSize sets the packet size used when the device does not report one.
func WithDefaultMaxPacketSize(n int) Option {
	return func(m *McuBoot) {
		if n > 0 {
			m.defaultMaxPacket = n
		}
	}
}

// WithResetDelay sets how long Reset waits before reopening the transport.
func WithResetDelay(d time.Duration) Option {
	return func(m *McuBoot) { m.resetDelay = d }
}

// ProgressCallback is called to report transfer progress.
type ProgressCallback func(current, total int)

type opConfig struct {
	memID    protocol.MemoryID
	progress ProgressCallback
	fast     bool
}

// OpOption configures a single memory operation.
type OpOption func(*opConfig)

// WithMemoryID selects the memory an operation targets.
func WithMemoryID(id protocol.MemoryID) OpOption {
	return func(c *opConfig) { c.memID = id }
}

// WithProgress reports transfer progress.
func WithProgress(cb ProgressCallback) OpOption {
	return func(c *opConfig) { c.progress = cb }
}

// WithFastMode reads USB memory in one command instead of per-packet chunks.
func WithFastMode(fast bool) OpOption {
	return func(c *opConfig) { c.fast = fast }
}

func newOpConfig(opts []OpOption) opConfig {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c opConfig) report(current, total int) {
	if c.progress != nil {
		c.progress(current, total)
	}
}
