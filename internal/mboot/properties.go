package mboot

import (
	"errors"
	"fmt"

	"github.com/bigbag/mcuboot-flasher/internal/property"
	"github.com/bigbag/mcuboot-flasher/internal/protocol"
)

// GetProperty returns the raw words of a property. index selects the memory
// id for external memory attributes and is 0 otherwise.
func (m *McuBoot) GetProperty(tag property.Tag, index uint32) ([]uint32, error) {
	resp, err := m.command(protocol.CmdGetProperty, protocol.FlagNone, uint32(tag), index)
	if err != nil {
		return nil, err
	}
	gp, ok := resp.(*protocol.GetPropertyResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %s to GetProperty", ErrInvalidResponse, resp)
	}
	return gp.Values, nil
}

// SetProperty writes a single-word property.
func (m *McuBoot) SetProperty(tag property.Tag, value uint32) error {
	m.log.Info().Str("property", tag.String()).Uint32("value", value).Msg("Setting property")
	return m.simple(protocol.CmdSetProperty, uint32(tag), value)
}

// DecodeProperty queries a property and decodes it for the session's family.
func (m *McuBoot) DecodeProperty(tag property.Tag, index uint32) (property.Value, error) {
	values, err := m.GetProperty(tag, index)
	if err != nil {
		return nil, err
	}
	return m.decode(tag, values, protocol.MemoryID(index))
}

func (m *McuBoot) decode(tag property.Tag, values []uint32, memID protocol.MemoryID) (property.Value, error) {
	return property.Decode(tag, values,
		property.WithFamily(m.family),
		property.WithLookup(m.lookup),
		property.WithMemoryID(memID))
}

// GetPropertyList reads and decodes every base property. Properties the
// device rejects or leaves empty are skipped; a decoding error is fatal.
func (m *McuBoot) GetPropertyList() ([]property.Value, error) {
	const op = "GetPropertyList"
	if err := m.checkOpen(op); err != nil {
		return nil, err
	}

	var list []property.Value
	for _, tag := range property.Tags() {
		values, err := m.GetProperty(tag, 0)
		if err != nil {
			var ce *CommandError
			if errors.As(err, &ce) {
				m.log.Debug().Str("property", tag.String()).Str("status", ce.Status.Label()).Msg("Property not available")
				continue
			}
			return list, err
		}
		if len(values) == 0 {
			continue
		}
		v, err := m.decode(tag, values, protocol.MemInternal)
		if err != nil {
			return list, err
		}
		list = append(list, v)
	}

	if len(list) == 0 {
		m.status = protocol.StatusFail
		return nil, &CommandError{Command: op, Status: m.status}
	}
	m.status = protocol.StatusSuccess
	return list, nil
}

// AvailableCommands returns the commands the device supports. The first
// non-empty answer is cached for the session.
func (m *McuBoot) AvailableCommands() ([]protocol.CommandTag, error) {
	if len(m.availableCommands) > 0 {
		return m.availableCommands, nil
	}

	values, err := m.GetProperty(property.TagAvailableCommands, 0)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty AvailableCommands property", ErrInvalidResponse)
	}

	mask := &property.AvailableCommandsValue{Value: values[0]}
	m.availableCommands = mask.Commands()
	return m.availableCommands, nil
}

// IsCommandAvailable reports whether the device supports cmd.
func (m *McuBoot) IsCommandAvailable(cmd protocol.CommandTag) (bool, error) {
	cmds, err := m.AvailableCommands()
	if err != nil {
		return false, err
	}
	for _, c := range cmds {
		if c == cmd {
			return true, nil
		}
	}
	return false, nil
}
