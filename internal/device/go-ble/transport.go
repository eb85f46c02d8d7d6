package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/device"
)

// radio is the part of ble.Device the transport uses.
type radio interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
}

// Options configures the go-ble transport.
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// ServiceUUID is required to be present in the GATT profile of every dialed
	// peripheral. Empty disables the check.
	ServiceUUID string
}

// DefaultOptions returns options for ELK-BLEDOM fixtures.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 15 * time.Second,
		WriteTimeout:   5 * time.Second,
		ServiceUUID:    "fff0",
	}
}

// Transport implements device.Transport on top of go-ble.
// The host device is created on first use through DeviceFactory.
type Transport struct {
	opts   Options
	logger *logrus.Logger

	mu  sync.Mutex
	dev radio
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a go-ble transport.
func NewTransport(opts Options, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{opts: opts, logger: logger}
}

func (t *Transport) radio() (radio, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	t.dev = dev
	return dev, nil
}

// Scan streams advertisements until ctx is done.
func (t *Transport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	dev, err := t.radio()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return NormalizeError(err)
}

// Dial connects to address, discovers the GATT profile and returns a live link.
func (t *Transport) Dial(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := t.radio()
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if t.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.opts.ConnectTimeout)
		defer cancel()
	}

	t.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": t.opts.ConnectTimeout,
	}).Debug("Dialing BLE device...")

	client, err := dev.Dial(dialCtx, ble.NewAddr(address))
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.ErrTimeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	return newLink(address, client, t.opts, t.logger)
}
