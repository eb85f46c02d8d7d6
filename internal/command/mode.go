package command

import (
	"fmt"
	"strings"
)

// Mode is one of the fixture's built-in lighting programs.
type Mode int

const (
	ModeStatic Mode = iota + 1
	ModeFade
	ModeBlink
	ModeRainbow
	ModeStrobe
	ModeWave
)

var modeNames = [...]string{
	ModeStatic:  "Static",
	ModeFade:    "Fade",
	ModeBlink:   "Blink",
	ModeRainbow: "Rainbow",
	ModeStrobe:  "Strobe",
	ModeWave:    "Wave",
}

// wire codes of the SetMode frame
var modeCodes = [...]byte{
	ModeStatic:  0x80,
	ModeFade:    0x8a,
	ModeBlink:   0x95,
	ModeRainbow: 0x8c,
	ModeStrobe:  0x96,
	ModeWave:    0x88,
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	return []Mode{ModeStatic, ModeFade, ModeBlink, ModeRainbow, ModeStrobe, ModeWave}
}

// Valid reports whether m is one of the six known modes.
func (m Mode) Valid() bool {
	return m >= ModeStatic && m <= ModeWave
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Code returns the wire code of the mode.
func (m Mode) Code() byte {
	if !m.Valid() {
		return 0
	}
	return modeCodes[m]
}

// ParseMode resolves a mode name case-insensitively.
func ParseMode(name string) (Mode, error) {
	n := strings.TrimSpace(name)
	for _, m := range Modes() {
		if strings.EqualFold(n, modeNames[m]) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q (must be one of %s)", ErrInvalidCommand, name, strings.Join(ModeNames(), ", "))
}

// ModeNames returns the canonical names of every mode.
func ModeNames() []string {
	names := make([]string, 0, len(modeNames)-1)
	for _, m := range Modes() {
		names = append(names, m.String())
	}
	return names
}
