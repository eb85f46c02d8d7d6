package session

import (
	"fmt"

	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
)

// State is the connection state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PowerState is the last power command sent.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	default:
		return "unknown"
	}
}

// CommandState is the last-sent value of every command, cached per session.
type CommandState struct {
	Power       PowerState
	Color       command.Color
	Brightness  int
	Mode        command.Mode
	EffectSpeed int
}

// Apply returns the state after cmd has been delivered.
func (cs CommandState) Apply(cmd command.Command) CommandState {
	switch cmd.Kind() {
	case command.KindPowerOn:
		cs.Power = PowerOn
	case command.KindPowerOff:
		cs.Power = PowerOff
	case command.KindSetColor:
		cs.Color = cmd.Color()
	case command.KindSetBrightness:
		cs.Brightness = cmd.Value()
	case command.KindSetMode:
		cs.Mode = cmd.Mode()
	case command.KindSetEffectSpeed:
		cs.EffectSpeed = cmd.Value()
	}
	return cs
}

// StateChange describes one transition. Cached is the command state at the
// moment of the transition.
type StateChange struct {
	From      State
	To        State
	Reason    string
	SessionID string
	Device    device.Descriptor
	Cached    CommandState
}

// Observer is notified synchronously on the goroutine performing a transition.
type Observer func(StateChange)
