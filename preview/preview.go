// Package preview derives the cosmetic color cycle shown for a lighting mode.
// It never talks to the device.
package preview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/command"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Interval is the tick period front-ends drive Tick with.
const Interval = 300 * time.Millisecond

var (
	// Unknown is shown for an unrecognized mode.
	Unknown = command.Color{R: 0x11, G: 0x11, B: 0x11}
	// Idle is what front-ends show while no session is connected.
	Idle = command.Color{R: 0x22, G: 0x22, B: 0x22}
)

// palettes in mode declaration order. Static is empty: it shows the current color.
var palettes = func() *orderedmap.OrderedMap[command.Mode, []command.Color] {
	om := orderedmap.New[command.Mode, []command.Color]()
	om.Set(command.ModeStatic, nil)
	om.Set(command.ModeFade, swatches("#ff0000", "#00ff00", "#0000ff"))
	om.Set(command.ModeBlink, swatches("#ffffff", "#000000"))
	om.Set(command.ModeRainbow, swatches("#ff0000", "#ff7f00", "#ffff00", "#00ff00", "#0000ff", "#4b0082", "#8f00ff"))
	om.Set(command.ModeStrobe, swatches("#ffffff", "#000000"))
	om.Set(command.ModeWave, swatches("#00ffff", "#0000ff", "#ff00ff"))
	return om
}()

func swatches(hex ...string) []command.Color {
	out := make([]command.Color, 0, len(hex))
	for _, h := range hex {
		c, err := command.ParseHex(h)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}

// Palette returns the swatch cycle for a mode name. The result is never empty.
func Palette(mode string, current command.Color) []command.Color {
	m, err := command.ParseMode(mode)
	if err != nil {
		return []command.Color{Unknown}
	}
	return paletteOf(m, current)
}

func paletteOf(m command.Mode, current command.Color) []command.Color {
	p, ok := palettes.Get(m)
	if !ok {
		return []command.Color{Unknown}
	}
	if len(p) == 0 {
		return []command.Color{current}
	}
	return append([]command.Color(nil), p...)
}

// Each calls fn for every mode in declaration order with its cycle.
func Each(current command.Color, fn func(m command.Mode, cycle []command.Color)) {
	for pair := palettes.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, paletteOf(pair.Key, current))
	}
}

// Synchronizer mirrors the selected mode as an endless swatch cycle. It keeps
// cycling whatever the state of the device session.
type Synchronizer struct {
	mu    sync.Mutex
	mode  string
	color command.Color
	cycle []command.Color
	pos   int
}

// New creates a synchronizer for mode and color.
func New(mode string, color command.Color) *Synchronizer {
	s := &Synchronizer{mode: mode, color: color}
	s.cycle = Palette(mode, color)
	return s
}

// Tick returns the next swatch.
func (s *Synchronizer) Tick() command.Color {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.cycle[s.pos%len(s.cycle)]
	s.pos = (s.pos + 1) % len(s.cycle)
	return c
}

// SetMode switches the cycle and restarts it from the first swatch.
func (s *Synchronizer) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	s.cycle = Palette(mode, s.color)
	s.pos = 0
}

// SetColor records the current color; in Static mode the cycle restarts with it.
func (s *Synchronizer) SetColor(c command.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.color = c
	if strings.EqualFold(strings.TrimSpace(s.mode), command.ModeStatic.String()) {
		s.cycle = []command.Color{c}
		s.pos = 0
	}
}

// Mode returns the mode name being mirrored.
func (s *Synchronizer) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Cycle returns a copy of the current swatch cycle.
func (s *Synchronizer) Cycle() []command.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command.Color(nil), s.cycle...)
}

// Run calls fn with a new swatch every interval until ctx ends. A panicking
// fn is logged and does not stop the loop.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration, fn func(command.Color), logger *logrus.Logger) {
	if interval <= 0 {
		interval = Interval
	}
	if logger == nil {
		logger = logrus.New()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deliver(fn, s.Tick(), logger)
		}
	}
}

func (s *Synchronizer) deliver(fn func(command.Color), c command.Color, logger *logrus.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Preview callback panicked")
		}
	}()
	fn(c)
}
