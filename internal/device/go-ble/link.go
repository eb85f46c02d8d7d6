package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/bledb"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/groutine"
)

// gattClient is the part of ble.Client a link uses.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// Link is a live connection to one peripheral.
type Link struct {
	address      string
	client       gattClient
	logger       *logrus.Logger
	writeTimeout time.Duration

	chars map[string]*ble.Characteristic // normalized uuid -> characteristic

	writeSlot chan struct{} // held until the radio call returns
	closeOnce sync.Once
	closed    chan struct{}
	dropped   chan struct{}
	dropOnce  sync.Once
}

var _ device.Link = (*Link)(nil)

func newLink(address string, client gattClient, opts Options, logger *logrus.Logger) (*Link, error) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	l := &Link{
		address:      address,
		client:       client,
		logger:       logger,
		writeTimeout: opts.WriteTimeout,
		chars:        make(map[string]*ble.Characteristic),
		writeSlot:    make(chan struct{}, 1),
		closed:       make(chan struct{}),
		dropped:      make(chan struct{}),
	}

	foundService := opts.ServiceUUID == ""
	for _, svc := range profile.Services {
		svcUUID := device.NormalizeUUID(svc.UUID.String())
		if svcUUID == device.NormalizeUUID(opts.ServiceUUID) {
			foundService = true
		}
		for _, c := range svc.Characteristics {
			charUUID := device.NormalizeUUID(c.UUID.String())
			if _, dup := l.chars[charUUID]; !dup {
				l.chars[charUUID] = c
			}
			logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
				"char_name":    bledb.LookupCharacteristic(charUUID),
			}).Debug("Found characteristic")
		}
	}

	if !foundService {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after profile check")
		}
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{opts.ServiceUUID}}
	}

	l.monitor(client)

	logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(l.chars),
	}).Info("BLE device connected successfully")
	return l, nil
}

// monitor watches the go-ble client's Disconnected() channel, when the
// platform provides one, and propagates peripheral-initiated drops.
func (l *Link) monitor(client gattClient) {
	notifier, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		l.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
		select {
		case <-notifier.Disconnected():
			l.logger.WithField("address", l.address).Warn("Peripheral reported disconnection")
			l.markDropped()
		case <-l.closed:
		}
	})
}

func (l *Link) markDropped() {
	l.dropOnce.Do(func() { close(l.dropped) })
}

func (l *Link) Address() string { return l.address }

// Disconnected is closed on a peripheral drop or after Close.
func (l *Link) Disconnected() <-chan struct{} { return l.dropped }

// Write sends data to the characteristic. Writes are serialized per link and
// bounded by the write timeout as well as ctx. A write that times out keeps
// the link busy until the radio returns, so later writes wait for it or fail
// with ErrTimeout.
func (l *Link) Write(ctx context.Context, characteristic string, data []byte) error {
	select {
	case <-l.dropped:
		return device.ErrNotConnected
	default:
	}

	char, ok := l.chars[device.NormalizeUUID(characteristic)]
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{characteristic}}
	}

	if l.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.writeTimeout)
		defer cancel()
	}

	select {
	case l.writeSlot <- struct{}{}:
	case <-l.dropped:
		return device.ErrNotConnected
	case <-ctx.Done():
		return fmt.Errorf("write to characteristic %s: previous write still in flight: %w", characteristic, device.ErrTimeout)
	}

	noRsp := char.Property&ble.CharWriteNR != 0
	payload := append([]byte(nil), data...)

	result := make(chan error, 1)
	groutine.Go(context.Background(), "ble-link-write", func(context.Context) {
		defer func() { <-l.writeSlot }()
		result <- l.client.WriteCharacteristic(char, payload, noRsp)
	})

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to write to characteristic %s: %w", characteristic, NormalizeError(err))
		}
		l.logger.WithFields(logrus.Fields{
			"uuid":   characteristic,
			"bytes":  len(payload),
			"no_rsp": noRsp,
		}).Debug("Wrote characteristic")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("write to characteristic %s: %w", characteristic, device.ErrTimeout)
	}
}

// Close cancels the connection. Only the first call reaches the radio.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.markDropped()

		err = l.client.CancelConnection()
		if err != nil {
			l.logger.WithError(err).Warn("BLE device disconnected with errors")
			return
		}
		l.logger.WithField("address", l.address).Info("BLE device disconnected successfully")
	})
	return err
}
