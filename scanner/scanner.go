package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/groutine"
	"github.com/srg/lotus/internal/ringchan"
)

// ErrUnknownDevice is returned by Select for a device that is not part of the
// most recent scan.
var ErrUnknownDevice = errors.New("unknown device")

// Status is the lifecycle state of a scan.
type Status int

const (
	StatusScanning Status = iota
	StatusCompleted
	StatusNoDevices
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusScanning:
		return "Scanning"
	case StatusCompleted:
		return "Completed"
	case StatusNoDevices:
		return "NoDevices"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal reports whether the scan has finished.
func (s Status) Terminal() bool { return s != StatusScanning }

// EventType marks if the device was newly discovered, updated, or the scan ended.
type EventType int

const (
	EventDiscovered EventType = iota
	EventUpdated
	EventFinished
)

// Event is delivered on Scan.Events. Device is set for Discovered/Updated;
// Status and Err for Finished.
type Event struct {
	Type   EventType
	Device device.Descriptor
	Status Status
	Err    error
}

// Options configures scanning behavior
type Options struct {
	// Duration bounds the scan; zero scans until cancelled.
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
	NamePrefix      string
}

// DefaultOptions returns default scanning options
func DefaultOptions() *Options {
	return &Options{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Snapshot is a point-in-time copy of a scan.
type Snapshot struct {
	Status  Status
	Devices []device.Descriptor
	Err     error
}

const eventBuffer = 64

// Scanner runs at most one discovery at a time over a transport.
type Scanner struct {
	transport device.Transport
	logger    *logrus.Logger

	mu      sync.Mutex
	current *Scan
}

// NewScanner creates a scanner over transport.
func NewScanner(transport device.Transport, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{transport: transport, logger: logger}
}

// StartScan begins a fresh discovery in the background and returns at once.
// A scan already in flight is cancelled first; its stream ends with
// StatusCancelled.
func (s *Scanner) StartScan(ctx context.Context, opts *Options) *Scan {
	if opts == nil {
		opts = DefaultOptions()
	}

	scanCtx, cancel := context.WithCancel(ctx)
	scan := &Scan{
		opts:    normalizeOptions(opts),
		devices: hashmap.New[string, device.Descriptor](),
		events:  ringchan.New[Event](eventBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  s.logger,
	}

	s.mu.Lock()
	prev := s.current
	s.current = scan
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	groutine.Go(scanCtx, "scan", func(ctx context.Context) {
		defer close(scan.done)
		scan.run(ctx, s.transport)
	})
	return scan
}

// Current returns the most recent scan, or nil.
func (s *Scanner) Current() *Scan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Select validates that desc was found by the most recent scan and returns the
// latest descriptor recorded for it.
func (s *Scanner) Select(desc device.Descriptor) (device.Descriptor, error) {
	scan := s.Current()
	if scan == nil {
		return device.Descriptor{}, fmt.Errorf("%w: %s (no scan)", ErrUnknownDevice, desc.Address)
	}
	found, ok := scan.devices.Get(addressKey(desc.Address))
	if !ok {
		return device.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownDevice, desc.Address)
	}
	return found.Clone(), nil
}

// Scan is one discovery run.
type Scan struct {
	opts    *Options
	devices *hashmap.Map[string, device.Descriptor]
	events  *ringchan.RingChannel[Event]
	cancel  context.CancelFunc
	done    chan struct{}
	logger  *logrus.Logger

	mu     sync.Mutex
	order  []string
	status Status
	err    error
}

// Events returns the scan's event stream. The stream carries exactly one
// EventFinished and is closed after it. The oldest events are dropped when
// the consumer falls behind.
func (sc *Scan) Events() <-chan Event { return sc.events.C() }

// Done is closed once the scan has finished.
func (sc *Scan) Done() <-chan struct{} { return sc.done }

// Cancel stops the scan. Safe to call at any time.
func (sc *Scan) Cancel() { sc.cancel() }

// Wait blocks until the scan finishes or ctx ends, then returns the snapshot.
func (sc *Scan) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-sc.done:
		return sc.Snapshot(), nil
	case <-ctx.Done():
		return sc.Snapshot(), ctx.Err()
	}
}

// Snapshot returns the status and the results in discovery order.
func (sc *Scan) Snapshot() Snapshot {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	devs := make([]device.Descriptor, 0, len(sc.order))
	for _, key := range sc.order {
		if d, ok := sc.devices.Get(key); ok {
			devs = append(devs, d.Clone())
		}
	}
	return Snapshot{Status: sc.status, Devices: devs, Err: sc.err}
}

func (sc *Scan) run(ctx context.Context, transport device.Transport) {
	// ctx is the caller-cancellable context; the duration bound lives in runCtx
	runCtx := ctx
	if sc.opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, sc.opts.Duration)
		defer cancel()
	}
	defer sc.cancel()

	sc.logger.WithFields(logrus.Fields{
		"duration": sc.opts.Duration,
		"services": sc.opts.ServiceUUIDs,
		"prefix":   sc.opts.NamePrefix,
	}).Info("Starting BLE scan...")

	err := transport.Scan(runCtx, !sc.opts.DuplicateFilter, sc.handleAdvertisement)

	status, err := sc.classify(ctx, err)

	sc.mu.Lock()
	sc.status = status
	sc.err = err
	count := len(sc.order)
	sc.mu.Unlock()

	entry := sc.logger.WithFields(logrus.Fields{
		"status":       status.String(),
		"device_count": count,
	})
	if err != nil {
		entry.WithError(err).Error("BLE scan failed")
	} else {
		entry.Info("BLE scan finished")
	}

	sc.events.ForceSend(Event{Type: EventFinished, Status: status, Err: err})
	sc.events.Close()

	if m := sc.events.GetMetrics(); m.Overwritten > 0 {
		sc.logger.WithFields(logrus.Fields{
			"written":     m.Written,
			"overwritten": m.Overwritten,
		}).Warn("Scan consumer fell behind; oldest events were dropped")
	}
}

func (sc *Scan) classify(ctx context.Context, err error) (Status, error) {
	if ctx.Err() != nil {
		return StatusCancelled, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return StatusFailed, err
	}

	sc.mu.Lock()
	empty := len(sc.order) == 0
	sc.mu.Unlock()
	if empty {
		return StatusNoDevices, nil
	}
	return StatusCompleted, nil
}

// handleAdvertisement updates existing or adds a new device
func (sc *Scan) handleAdvertisement(adv device.Advertisement) {
	desc := device.NewDescriptor(adv)
	key := addressKey(desc.Address)

	sc.mu.Lock()
	if sc.status.Terminal() {
		sc.mu.Unlock()
		return
	}

	prev, existing := sc.devices.Get(key)
	if existing {
		// refresh, keep first-seen position and the best known name
		if desc.Name == "" {
			desc.Name = prev.Name
		}
		if len(desc.Services) == 0 {
			desc.Services = prev.Services
		}
		sc.devices.Set(key, desc)
		sc.mu.Unlock()
		sc.events.ForceSend(Event{Type: EventUpdated, Device: desc.Clone()})
		return
	}

	if !sc.include(desc) {
		sc.mu.Unlock()
		return
	}
	sc.devices.Set(key, desc)
	sc.order = append(sc.order, key)
	sc.mu.Unlock()

	sc.logger.WithFields(logrus.Fields{
		"device":  desc.DisplayName(),
		"address": desc.Address,
		"rssi":    desc.RSSI,
	}).Info("Discovered new device")

	sc.events.ForceSend(Event{Type: EventDiscovered, Device: desc.Clone()})
}

// include applies the allow/block/service/name filters
func (sc *Scan) include(desc device.Descriptor) bool {
	key := addressKey(desc.Address)
	opts := sc.opts

	for _, blocked := range opts.BlockList {
		if key == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if key == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			if desc.HasService(required) {
				hasRequired = true
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	if opts.NamePrefix != "" && !strings.HasPrefix(strings.ToLower(desc.Name), opts.NamePrefix) {
		return false
	}

	return true
}

// normalizeOptions returns a copy with addresses, UUIDs and the prefix in
// comparison form.
func normalizeOptions(opts *Options) *Options {
	out := *opts
	out.AllowList = make([]string, 0, len(opts.AllowList))
	for _, a := range opts.AllowList {
		out.AllowList = append(out.AllowList, addressKey(a))
	}
	out.BlockList = make([]string, 0, len(opts.BlockList))
	for _, b := range opts.BlockList {
		out.BlockList = append(out.BlockList, addressKey(b))
	}
	out.ServiceUUIDs = make([]string, 0, len(opts.ServiceUUIDs))
	for _, u := range opts.ServiceUUIDs {
		out.ServiceUUIDs = append(out.ServiceUUIDs, device.NormalizeUUID(u))
	}
	out.NamePrefix = strings.ToLower(strings.TrimSpace(opts.NamePrefix))
	return &out
}

func addressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
