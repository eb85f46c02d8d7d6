// Package session owns the single live connection to a light fixture.
//
// Connect, Send and Disconnect are serialized: a call issued while another
// one is in flight waits its turn in submission order. Commands are only
// written while the session is Connected.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/groutine"
	"golang.org/x/time/rate"
)

// Options configures a Session.
type Options struct {
	// WriteRate is the sustained writes per second; zero disables pacing.
	WriteRate  float64
	WriteBurst int
	Observers  []Observer
}

// DefaultOptions returns the default pacing of 20 writes/s with a burst of 4.
func DefaultOptions() *Options {
	return &Options{WriteRate: 20, WriteBurst: 4}
}

// Session is the device session state machine:
//
//	Idle -> Connecting -> Connected -> Disconnecting -> Idle
//
// plus Connected -> Idle when the peripheral drops the link.
type Session struct {
	transport device.Transport
	logger    *logrus.Logger
	limiter   *rate.Limiter
	observers []Observer

	// one-slot semaphore; blocked senders are served in arrival order
	turn chan struct{}

	mu          sync.Mutex
	state       State
	link        device.Link
	id          string
	desc        device.Descriptor
	cached      CommandState
	stopMonitor chan struct{}
}

// New creates an idle session over transport.
func New(transport device.Transport, opts *Options, logger *logrus.Logger) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	burst := opts.WriteBurst
	if opts.WriteRate > 0 {
		limit = rate.Limit(opts.WriteRate)
	}
	if burst < 1 {
		burst = 1
	}

	return &Session{
		transport: transport,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
		observers: append([]Observer(nil), opts.Observers...),
		turn:      make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the id of the live session, or "" when idle.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Device returns the descriptor of the connected peripheral.
func (s *Session) Device() (device.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return device.Descriptor{}, false
	}
	return s.desc.Clone(), true
}

// Cached returns the last-sent command state of the live session.
func (s *Session) Cached() (CommandState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return CommandState{}, false
	}
	return s.cached, true
}

// Connect dials desc and, on success, seeds the cached command state with
// initial. A failed attempt leaves the session Idle and returns *ConnectError.
func (s *Session) Connect(ctx context.Context, desc device.Descriptor, initial CommandState) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.desc = desc.Clone()
	change := s.transitionLocked(StateConnecting, "connect")
	s.mu.Unlock()
	s.notify(change)

	logger := s.logger.WithFields(logrus.Fields{
		"address": desc.Address,
		"name":    desc.Name,
	})
	logger.Info("Connecting to device...")

	link, err := s.transport.Dial(ctx, desc.Address)
	if err != nil {
		cerr := newConnectError(desc.Address, err)

		s.mu.Lock()
		change := s.transitionLocked(StateIdle, "connect failed: "+string(cerr.Reason))
		s.desc = device.Descriptor{}
		s.mu.Unlock()
		s.notify(change)

		logger.WithError(err).WithField("reason", cerr.Reason).Error("Connection failed")
		return cerr
	}

	stop := make(chan struct{})

	s.mu.Lock()
	s.link = link
	s.id = uuid.NewString()
	s.cached = initial
	s.stopMonitor = stop
	change = s.transitionLocked(StateConnected, "connected")
	id := s.id
	s.mu.Unlock()

	logger.WithField("session", id).Info("Connected")
	s.notify(change)

	// a drop before this point is still seen: Disconnected() stays closed
	groutine.Go(context.Background(), "session-monitor", func(context.Context) {
		s.monitor(link, stop)
	})
	return nil
}

// Send encodes cmd and writes it to the live connection exactly once.
// Invalid commands fail with command.ErrInvalidCommand before touching the
// transport. A failed write returns *SendError and leaves the session
// Connected.
func (s *Session) Send(ctx context.Context, cmd command.Command) error {
	frame, err := command.Encode(cmd)
	if err != nil {
		return err
	}

	if s.State() != StateConnected {
		return ErrNotConnected
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	link := s.link
	id := s.id
	s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"session": id,
		"command": cmd.String(),
	})
	logger.WithField("payload", frame.Payload).Debug("Writing command")

	if err := link.Write(ctx, frame.Characteristic, frame.Payload); err != nil {
		logger.WithError(err).Error("Command write failed")
		return newSendError(cmd, err)
	}

	s.mu.Lock()
	if s.link == link {
		s.cached = s.cached.Apply(cmd)
	}
	s.mu.Unlock()
	return nil
}

// Disconnect closes the live connection and returns to Idle. Calling it
// when not connected is a no-op.
func (s *Session) Disconnect() {
	// Disconnect is never abandoned; it waits for the in-flight operation
	_ = s.acquire(context.Background())
	defer s.release()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	link := s.link
	close(s.stopMonitor)
	s.stopMonitor = nil
	change := s.transitionLocked(StateDisconnecting, "disconnect")
	s.mu.Unlock()
	s.notify(change)

	if err := link.Close(); err != nil {
		s.logger.WithError(err).WithField("session", change.SessionID).Warn("Failed to close connection")
	}

	s.mu.Lock()
	change = s.transitionLocked(StateIdle, "disconnected")
	s.clearLocked()
	s.mu.Unlock()

	s.logger.WithField("session", change.SessionID).Info("Disconnected")
	s.notify(change)
}

// monitor moves the session to Idle when the peripheral drops the link.
func (s *Session) monitor(link device.Link, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-link.Disconnected():
	}

	s.mu.Lock()
	if s.link != link || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	close(s.stopMonitor)
	s.stopMonitor = nil
	change := s.transitionLocked(StateIdle, "peripheral disconnected")
	s.clearLocked()
	s.mu.Unlock()

	// release the handle; the link is already gone
	_ = link.Close()

	s.logger.WithFields(logrus.Fields{
		"session": change.SessionID,
		"address": change.Device.Address,
	}).Warn("Device disconnected")
	s.notify(change)
}

func (s *Session) transitionLocked(to State, reason string) StateChange {
	change := StateChange{
		From:      s.state,
		To:        to,
		Reason:    reason,
		SessionID: s.id,
		Device:    s.desc.Clone(),
		Cached:    s.cached,
	}
	s.state = to
	return change
}

func (s *Session) clearLocked() {
	s.link = nil
	s.id = ""
	s.desc = device.Descriptor{}
	s.cached = CommandState{}
}

func (s *Session) notify(change StateChange) {
	for _, obs := range s.observers {
		obs(change)
	}
}

func (s *Session) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	// cancelled while queued
	if err := ctx.Err(); err != nil {
		s.release()
		return err
	}
	return nil
}

func (s *Session) release() { <-s.turn }
