package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/lotus/controller"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/runner"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
)

// FormatUserError turns an error chain into one sentence for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var (
		connErr  *session.ConnectError
		sendErr  *session.SendError
		notFound *device.NotFoundError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; turn it on and try again"
	case errors.As(err, &connErr):
		switch connErr.Reason {
		case session.ReasonTimeout:
			return fmt.Sprintf("timed out connecting to %s; is the fixture powered and in range?", connErr.Address)
		case session.ReasonProtocol:
			return fmt.Sprintf("%s does not look like a supported light fixture (%v)", connErr.Address, connErr.Err)
		case session.ReasonCancelled:
			return "connection cancelled"
		default:
			return fmt.Sprintf("failed to connect to %s: %v", connErr.Address, connErr.Err)
		}
	case errors.As(err, &sendErr):
		return fmt.Sprintf("the fixture did not accept %s: %v", sendErr.Command, sendErr.Err)
	case errors.Is(err, session.ErrNotConnected):
		return "not connected to a fixture"
	case errors.Is(err, session.ErrAlreadyConnected):
		return "already connected to a fixture"
	case errors.Is(err, scanner.ErrUnknownDevice):
		return fmt.Sprintf("%v; run 'lotus scan' to list nearby fixtures", err)
	case errors.Is(err, runner.ErrNoTarget):
		return "no fixture given; use --address or --name"
	case errors.Is(err, controller.ErrBusy):
		return "too many pending requests; try again"
	case errors.Is(err, command.ErrInvalidCommand):
		return err.Error()
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		return "operation timed out"
	default:
		return err.Error()
	}
}
