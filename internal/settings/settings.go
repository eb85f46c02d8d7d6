// Package settings persists the last-used fixture settings as a small JSON file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/command"
)

// ErrInvalidSettings is returned by Save for out-of-range values.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the values restored on the next start.
type Settings struct {
	Color       command.Color
	Brightness  int          `default:"128"`
	Mode        command.Mode `default:"1"` // Static
	EffectSpeed int          `default:"50"`
}

// Defaults returns {color (0,255,0), brightness 128, mode Static, speed 50}.
func Defaults() Settings {
	s := Settings{}
	defaults.SetDefaults(&s)
	s.Color = command.Color{R: 0, G: 255, B: 0}
	return s
}

// Validate checks every field against the command ranges.
func (s Settings) Validate() error {
	switch {
	case s.Brightness < command.MinBrightness || s.Brightness > command.MaxBrightness:
		return fmt.Errorf("%w: brightness %d", ErrInvalidSettings, s.Brightness)
	case s.EffectSpeed < command.MinSpeed || s.EffectSpeed > command.MaxSpeed:
		return fmt.Errorf("%w: effect speed %d", ErrInvalidSettings, s.EffectSpeed)
	case !s.Mode.Valid():
		return fmt.Errorf("%w: mode %d", ErrInvalidSettings, int(s.Mode))
	}
	return nil
}

// Apply returns s updated with the value carried by cmd. Power commands
// carry nothing persistent.
func (s Settings) Apply(cmd command.Command) Settings {
	switch cmd.Kind() {
	case command.KindSetColor:
		s.Color = cmd.Color()
	case command.KindSetBrightness:
		s.Brightness = cmd.Value()
	case command.KindSetMode:
		s.Mode = cmd.Mode()
	case command.KindSetEffectSpeed:
		s.EffectSpeed = cmd.Value()
	}
	return s
}

// fileFormat is the on-disk layout.
type fileFormat struct {
	Color       [3]int `json:"color"`
	Brightness  int    `json:"brightness"`
	Mode        string `json:"mode"`
	EffectSpeed int    `json:"effect_speed"`
}

// MarshalJSON writes the on-disk layout.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(fileFormat{
		Color:       [3]int{int(s.Color.R), int(s.Color.G), int(s.Color.B)},
		Brightness:  s.Brightness,
		Mode:        s.Mode.String(),
		EffectSpeed: s.EffectSpeed,
	})
}

// UnmarshalJSON decodes leniently: every absent or invalid field keeps its
// default. Only malformed JSON is an error.
func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Defaults()
	if v, ok := raw["color"]; ok {
		var ch []float64
		if json.Unmarshal(v, &ch) == nil && len(ch) == 3 {
			r, okR := integral(ch[0], 0, 255)
			g, okG := integral(ch[1], 0, 255)
			b, okB := integral(ch[2], 0, 255)
			if okR && okG && okB {
				out.Color = command.Color{R: uint8(r), G: uint8(g), B: uint8(b)}
			}
		}
	}
	if v, ok := raw["brightness"]; ok {
		if n, ok := decodeInt(v, command.MinBrightness, command.MaxBrightness); ok {
			out.Brightness = n
		}
	}
	if v, ok := raw["mode"]; ok {
		var name string
		if json.Unmarshal(v, &name) == nil {
			if m, err := command.ParseMode(name); err == nil {
				out.Mode = m
			}
		}
	}
	if v, ok := raw["effect_speed"]; ok {
		if n, ok := decodeInt(v, command.MinSpeed, command.MaxSpeed); ok {
			out.EffectSpeed = n
		}
	}

	*s = out
	return nil
}

// decodeInt accepts integers and integral floats (50.0) within [lo, hi].
func decodeInt(v json.RawMessage, lo, hi int) (int, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return integral(f, lo, hi)
}

func integral(f float64, lo, hi int) (int, bool) {
	if f != math.Trunc(f) || f < float64(lo) || f > float64(hi) {
		return 0, false
	}
	return int(f), true
}

// Store is a file-backed settings store.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *logrus.Logger
}

// DefaultPath returns <user config dir>/lotus/settings.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, "lotus", "settings.json"), nil
}

// NewStore creates a store backed by path.
func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted settings. It never fails: a missing, unreadable
// or corrupt file yields Defaults().
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).WithField("path", s.path).Warn("Failed to read settings, using defaults")
		}
		return Defaults()
	}

	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Corrupt settings file, using defaults")
		return Defaults()
	}

	s.logger.WithFields(logrus.Fields{
		"path":       s.path,
		"color":      out.Color.Hex(),
		"brightness": out.Brightness,
		"mode":       out.Mode.String(),
		"speed":      out.EffectSpeed,
	}).Debug("Settings loaded")
	return out
}

// Save validates and atomically replaces the settings file: a temp file in
// the same directory is written, synced and renamed over the target.
func (s *Store) Save(v Settings) error {
	if err := v.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	tmpName = ""

	s.logger.WithField("path", s.path).Debug("Settings saved")
	return nil
}
