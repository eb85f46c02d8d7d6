package controller

import (
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/session"
)

func commandState(s settings.Settings) session.CommandState {
	return session.CommandState{
		Color:       s.Color,
		Brightness:  s.Brightness,
		Mode:        s.Mode,
		EffectSpeed: s.EffectSpeed,
	}
}

// mergeCached takes the session's cached values, keeping s for anything the
// cache does not hold a valid value for.
func mergeCached(s settings.Settings, cs session.CommandState) settings.Settings {
	s.Color = cs.Color
	if cs.Brightness >= command.MinBrightness && cs.Brightness <= command.MaxBrightness {
		s.Brightness = cs.Brightness
	}
	if cs.Mode.Valid() {
		s.Mode = cs.Mode
	}
	if cs.EffectSpeed >= command.MinSpeed && cs.EffectSpeed <= command.MaxSpeed {
		s.EffectSpeed = cs.EffectSpeed
	}
	return s
}
