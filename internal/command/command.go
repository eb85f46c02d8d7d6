// Package command builds and encodes the commands understood by ELK-BLEDOM
// light fixtures.
//
// Every command is a 9-byte frame written to characteristic fff3:
//
//	7e 00 <op> <p1> <p2> <p3> <p4> 00 ef
//
// Commands are validated at construction; Encode only fails for a zero or
// otherwise malformed Command value.
package command

import (
	"errors"
	"fmt"
)

// ErrInvalidCommand marks malformed or out-of-range command input.
var ErrInvalidCommand = errors.New("invalid command")

const (
	// ServiceUUID is the fixture's control service.
	ServiceUUID = "fff0"
	// CharacteristicUUID receives every command frame.
	CharacteristicUUID = "fff3"

	frameHeader  = 0x7e
	frameTrailer = 0xef
	// FrameSize is the length of every encoded payload.
	FrameSize = 9
)

// Limits of the ranged commands.
const (
	MinBrightness = 0
	MaxBrightness = 255
	MinSpeed      = 1
	MaxSpeed      = 100
)

// Kind tags the Command variant.
type Kind int

const (
	KindPowerOn Kind = iota + 1
	KindPowerOff
	KindSetColor
	KindSetBrightness
	KindSetMode
	KindSetEffectSpeed
)

func (k Kind) String() string {
	switch k {
	case KindPowerOn:
		return "power_on"
	case KindPowerOff:
		return "power_off"
	case KindSetColor:
		return "set_color"
	case KindSetBrightness:
		return "set_brightness"
	case KindSetMode:
		return "set_mode"
	case KindSetEffectSpeed:
		return "set_effect_speed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is an immutable, validated request for the fixture.
// The zero value is not a valid command.
type Command struct {
	kind  Kind
	color Color
	value int
	mode  Mode
}

// Frame is an encoded command.
type Frame struct {
	Characteristic string
	Payload        []byte
}

// PowerOn turns the fixture on.
func PowerOn() Command { return Command{kind: KindPowerOn} }

// PowerOff turns the fixture off.
func PowerOff() Command { return Command{kind: KindPowerOff} }

// SetColor sets a static RGB color. Channels must be within 0-255.
func SetColor(r, g, b int) (Command, error) {
	c, err := NewColor(r, g, b)
	if err != nil {
		return Command{}, err
	}
	return Command{kind: KindSetColor, color: c}, nil
}

// SetColorValue sets a static color from an already valid Color.
func SetColorValue(c Color) Command {
	return Command{kind: KindSetColor, color: c}
}

// SetBrightness sets brightness within 0-255.
func SetBrightness(v int) (Command, error) {
	if v < MinBrightness || v > MaxBrightness {
		return Command{}, fmt.Errorf("%w: brightness %d out of range %d-%d", ErrInvalidCommand, v, MinBrightness, MaxBrightness)
	}
	return Command{kind: KindSetBrightness, value: v}, nil
}

// SetMode selects a lighting program by name.
func SetMode(name string) (Command, error) {
	m, err := ParseMode(name)
	if err != nil {
		return Command{}, err
	}
	return Command{kind: KindSetMode, mode: m}, nil
}

// SetModeValue selects a lighting program.
func SetModeValue(m Mode) (Command, error) {
	if !m.Valid() {
		return Command{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidCommand, int(m))
	}
	return Command{kind: KindSetMode, mode: m}, nil
}

// SetEffectSpeed sets the effect speed within 1-100.
func SetEffectSpeed(v int) (Command, error) {
	if v < MinSpeed || v > MaxSpeed {
		return Command{}, fmt.Errorf("%w: effect speed %d out of range %d-%d", ErrInvalidCommand, v, MinSpeed, MaxSpeed)
	}
	return Command{kind: KindSetEffectSpeed, value: v}, nil
}

func (c Command) Kind() Kind { return c.kind }

// Color is the color of a SetColor command.
func (c Command) Color() Color { return c.color }

// Value is the brightness or speed of the ranged commands.
func (c Command) Value() int { return c.value }

// Mode is the mode of a SetMode command.
func (c Command) Mode() Mode { return c.mode }

func (c Command) String() string {
	switch c.kind {
	case KindSetColor:
		return fmt.Sprintf("%s(%s)", c.kind, c.color.Hex())
	case KindSetBrightness, KindSetEffectSpeed:
		return fmt.Sprintf("%s(%d)", c.kind, c.value)
	case KindSetMode:
		return fmt.Sprintf("%s(%s)", c.kind, c.mode)
	default:
		return c.kind.String()
	}
}

// Encode maps a command to its frame. It is pure and deterministic.
func Encode(c Command) (Frame, error) {
	var body [6]byte // op p1 p2 p3 p4 00

	switch c.kind {
	case KindPowerOn:
		body = [6]byte{0x04, 0xf0, 0x00, 0x01, 0xff, 0x00}
	case KindPowerOff:
		body = [6]byte{0x04, 0x00, 0x00, 0x00, 0xff, 0x00}
	case KindSetColor:
		body = [6]byte{0x05, 0x03, c.color.R, c.color.G, c.color.B, 0x00}
	case KindSetBrightness:
		if c.value < MinBrightness || c.value > MaxBrightness {
			return Frame{}, fmt.Errorf("%w: brightness %d out of range", ErrInvalidCommand, c.value)
		}
		body = [6]byte{0x01, byte(c.value), 0x00, 0x00, 0x00, 0x00}
	case KindSetMode:
		if !c.mode.Valid() {
			return Frame{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidCommand, int(c.mode))
		}
		body = [6]byte{0x03, c.mode.Code(), 0x03, 0x00, 0x00, 0x00}
	case KindSetEffectSpeed:
		if c.value < MinSpeed || c.value > MaxSpeed {
			return Frame{}, fmt.Errorf("%w: effect speed %d out of range", ErrInvalidCommand, c.value)
		}
		body = [6]byte{0x02, byte(c.value), 0x00, 0x00, 0x00, 0x00}
	default:
		return Frame{}, fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}

	payload := make([]byte, 0, FrameSize)
	payload = append(payload, frameHeader, 0x00)
	payload = append(payload, body[:]...)
	payload = append(payload, frameTrailer)

	return Frame{Characteristic: CharacteristicUUID, Payload: payload}, nil
}
