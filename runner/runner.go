package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
)

// ErrNoTarget is returned when neither an address nor a name was given.
var ErrNoTarget = errors.New("no device address or name given")

// ProgressCallback is called when the run phase changes
type ProgressCallback func(phase string)

// Options defines how the target is found and connected
type Options struct {
	// Address connects directly; otherwise the first device whose name
	// starts with Name is used.
	Address     string
	Name        string
	ScanTimeout time.Duration
	ServiceUUID string
	Session     *session.Options
	Initial     session.CommandState
}

// Callback works with a connected session and produces output of type R
type Callback[R any] func(context.Context, *session.Session) (R, error)

// Run resolves the target, connects, executes callback with the connected
// session and disconnects afterwards.
func Run[R any](ctx context.Context, transport device.Transport, opts *Options, logger *logrus.Logger, progressCallback ProgressCallback, callback Callback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	desc, err := resolve(ctx, transport, opts, logger, progressCallback)
	if err != nil {
		progressCallback("Failed")
		return zero, err
	}

	progressCallback("Connecting")

	sess := session.New(transport, opts.Session, logger)
	if err := sess.Connect(ctx, desc, opts.Initial); err != nil {
		progressCallback("Failed")
		return zero, err
	}

	progressCallback("Connected")
	defer sess.Disconnect()

	return callback(ctx, sess)
}

// resolve turns Options into a descriptor, scanning by name when no address is set.
func resolve(ctx context.Context, transport device.Transport, opts *Options, logger *logrus.Logger, progressCallback ProgressCallback) (device.Descriptor, error) {
	if addr := strings.TrimSpace(opts.Address); addr != "" {
		return device.Descriptor{Address: addr}, nil
	}
	if strings.TrimSpace(opts.Name) == "" {
		return device.Descriptor{}, ErrNoTarget
	}

	progressCallback("Scanning")

	scanOpts := scanner.DefaultOptions()
	if opts.ScanTimeout > 0 {
		scanOpts.Duration = opts.ScanTimeout
	}
	scanOpts.NamePrefix = opts.Name
	if opts.ServiceUUID != "" {
		scanOpts.ServiceUUIDs = []string{opts.ServiceUUID}
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := scanner.NewScanner(transport, logger).StartScan(scanCtx, scanOpts)
	for ev := range scan.Events() {
		switch ev.Type {
		case scanner.EventDiscovered:
			logger.WithFields(logrus.Fields{
				"name":    ev.Device.Name,
				"address": ev.Device.Address,
			}).Info("Found matching device")
			scan.Cancel()
			return ev.Device, nil
		case scanner.EventFinished:
			if ev.Err != nil {
				return device.Descriptor{}, ev.Err
			}
			if ev.Status == scanner.StatusCancelled {
				if err := ctx.Err(); err != nil {
					return device.Descriptor{}, err
				}
			}
		}
	}
	return device.Descriptor{}, fmt.Errorf("%w: no device named %q", scanner.ErrUnknownDevice, opts.Name)
}
