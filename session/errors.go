package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
)

// Re-exported so callers only need this package for matching.
var (
	ErrNotConnected     = device.ErrNotConnected
	ErrAlreadyConnected = device.ErrAlreadyConnected
)

// ConnectReason classifies a failed connection attempt.
type ConnectReason string

const (
	ReasonTimeout      ConnectReason = "timeout"
	ReasonRadio        ConnectReason = "radio"
	ReasonProtocol     ConnectReason = "protocol"
	ReasonBluetoothOff ConnectReason = "bluetooth-off"
	ReasonCancelled    ConnectReason = "cancelled"
)

// ConnectError is returned when Connect fails after reaching the transport.
type ConnectError struct {
	Reason  ConnectReason
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s failed (%s): %v", e.Address, e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func newConnectError(address string, err error) *ConnectError {
	var notFound *device.NotFoundError

	reason := ReasonRadio
	switch {
	case errors.Is(err, context.Canceled):
		reason = ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		reason = ReasonTimeout
	case errors.Is(err, device.ErrBluetoothOff):
		reason = ReasonBluetoothOff
	case errors.As(err, &notFound):
		reason = ReasonProtocol
	}
	return &ConnectError{Reason: reason, Address: address, Err: err}
}

// SendError is returned when a connected write fails. Err always matches
// device.ErrTransport.
type SendError struct {
	Command command.Command
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s failed: %v", e.Command, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func newSendError(cmd command.Command, err error) *SendError {
	if !errors.Is(err, device.ErrTransport) {
		err = fmt.Errorf("%w: %w", device.ErrTransport, err)
	}
	return &SendError{Command: cmd, Err: err}
}
