package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// Hex renders c as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string { return c.Hex() }

// NewColor validates channels given as ints.
func NewColor(r, g, b int) (Color, error) {
	for _, ch := range []struct {
		name string
		v    int
	}{{"red", r}, {"green", g}, {"blue", b}} {
		if ch.v < 0 || ch.v > 255 {
			return Color{}, fmt.Errorf("%w: %s channel %d out of range 0-255", ErrInvalidCommand, ch.name, ch.v)
		}
	}
	return Color{R: uint8(r), G: uint8(g), B: uint8(b)}, nil
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalidCommand, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalidCommand, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseColor accepts a single hex argument or three decimal channels.
func ParseColor(args ...string) (Color, error) {
	switch len(args) {
	case 1:
		return ParseHex(args[0])
	case 3:
		var ch [3]int
		for i, a := range args {
			v, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return Color{}, fmt.Errorf("%w: channel %q is not a number", ErrInvalidCommand, a)
			}
			ch[i] = v
		}
		return NewColor(ch[0], ch[1], ch[2])
	default:
		return Color{}, fmt.Errorf("%w: expected #rrggbb or three channels, got %d values", ErrInvalidCommand, len(args))
	}
}
