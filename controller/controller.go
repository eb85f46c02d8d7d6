// Package controller is the boundary between a front-end that must never
// block and the single background worker that owns the device session.
//
// Every intent method returns a request id at once; the outcome arrives later
// on Events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/groutine"
	"github.com/srg/lotus/internal/ringchan"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
)

var (
	// ErrBusy is reported when the intent queue is full.
	ErrBusy = errors.New("controller busy")
	// ErrClosed is reported for intents submitted after Close.
	ErrClosed = errors.New("controller closed")
)

// Store persists settings between runs.
type Store interface {
	Load() settings.Settings
	Save(settings.Settings) error
}

// IntentKind names the request an event answers.
type IntentKind int

const (
	IntentScan IntentKind = iota + 1
	IntentConnect
	IntentDisconnect
	IntentSend
)

func (k IntentKind) String() string {
	switch k {
	case IntentScan:
		return "scan"
	case IntentConnect:
		return "connect"
	case IntentDisconnect:
		return "disconnect"
	case IntentSend:
		return "send"
	default:
		return fmt.Sprintf("IntentKind(%d)", int(k))
	}
}

// EventType tells which payload of an Event is set.
type EventType int

const (
	// EventScan carries a scanner event in Scan.
	EventScan EventType = iota + 1
	// EventState carries a session transition in State.
	EventState
	// EventResult reports the outcome of a connect, disconnect or send; Err is
	// nil on success.
	EventResult
)

// Event is delivered on the controller's event stream.
type Event struct {
	Type      EventType
	RequestID string
	Intent    IntentKind
	Command   command.Command
	Err       error
	Scan      scanner.Event
	State     session.StateChange
}

// Succeeded reports whether a result event carries no error.
func (e Event) Succeeded() bool { return e.Type == EventResult && e.Err == nil }

// Options configures a Controller.
type Options struct {
	QueueSize   int
	EventBuffer int
	Session     *session.Options
}

// DefaultOptions returns a queue of 16 intents and a 128-event buffer.
func DefaultOptions() *Options {
	return &Options{QueueSize: 16, EventBuffer: 128, Session: session.DefaultOptions()}
}

type intent struct {
	id   string
	kind IntentKind
	desc device.Descriptor
	cmd  command.Command
}

// Controller owns the session, the scanner and the settings store.
type Controller struct {
	logger  *logrus.Logger
	store   Store
	session *session.Session
	scanner *scanner.Scanner

	intents chan intent
	events  *ringchan.RingChannel[Event]

	ctx    context.Context
	cancel context.CancelFunc
	done   <-chan struct{}
	closed atomic.Bool
	once   sync.Once

	mu       sync.Mutex
	settings settings.Settings
}

// New creates a controller over transport. The last saved settings are
// loaded from store and become the initial state of every connection.
func New(transport device.Transport, store Store, opts *Options, logger *logrus.Logger) *Controller {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	queue := opts.QueueSize
	if queue < 1 {
		queue = 1
	}
	buffer := opts.EventBuffer
	if buffer < 1 {
		buffer = 128
	}

	c := &Controller{
		logger:   logger,
		store:    store,
		scanner:  scanner.NewScanner(transport, logger),
		intents:  make(chan intent, queue),
		events:   ringchan.New[Event](buffer),
		settings: store.Load(),
	}

	sessOpts := session.DefaultOptions()
	if opts.Session != nil {
		cp := *opts.Session
		sessOpts = &cp
	}
	sessOpts.Observers = append(append([]session.Observer(nil), sessOpts.Observers...), c.onStateChange)
	c.session = session.New(transport, sessOpts, logger)

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start launches the worker. Intents submitted before Start wait in the queue.
func (c *Controller) Start(ctx context.Context) {
	c.once.Do(func() {
		stop := context.AfterFunc(ctx, c.cancel)
		c.done = groutine.Go(c.ctx, "controller-worker", func(ctx context.Context) {
			defer stop()
			c.work(ctx)
		})
	})
}

// Close stops the worker, disconnects (flushing settings) and closes Events.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	if c.done != nil {
		<-c.done
	}
	if scan := c.scanner.Current(); scan != nil {
		scan.Cancel()
	}
	c.session.Disconnect()
	c.events.Close()

	m := c.events.GetMetrics()
	c.logger.WithFields(logrus.Fields{
		"events":      m.Written,
		"overwritten": m.Overwritten,
	}).Debug("Controller closed")
}

// Events returns the outcome stream. The oldest events are dropped when the
// consumer falls behind.
func (c *Controller) Events() <-chan Event { return c.events.C() }

// Settings returns the last-known values shown by the front-end.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// State returns the session state.
func (c *Controller) State() session.State { return c.session.State() }

// Session exposes the owned session for read-only inspection.
func (c *Controller) Session() *session.Session { return c.session }

// StartScan starts a new discovery, cancelling the previous one. Scanner
// events are forwarded under the returned id.
func (c *Controller) StartScan(opts *scanner.Options) string {
	id := newRequestID()
	if c.closed.Load() {
		c.emit(Event{Type: EventResult, RequestID: id, Intent: IntentScan, Err: ErrClosed})
		return id
	}

	scan := c.scanner.StartScan(c.ctx, opts)
	groutine.Go(c.ctx, "scan-forwarder", func(context.Context) {
		for ev := range scan.Events() {
			c.emit(Event{Type: EventScan, RequestID: id, Intent: IntentScan, Scan: ev})
		}
	})
	return id
}

// Connect asks the worker to connect to a device of the latest scan.
func (c *Controller) Connect(desc device.Descriptor) string {
	return c.submit(intent{kind: IntentConnect, desc: desc})
}

// Disconnect asks the worker to end the session.
func (c *Controller) Disconnect() string {
	return c.submit(intent{kind: IntentDisconnect})
}

// Send asks the worker to deliver cmd.
func (c *Controller) Send(cmd command.Command) string {
	return c.submit(intent{kind: IntentSend, cmd: cmd})
}

// SetPower sends PowerOn or PowerOff.
func (c *Controller) SetPower(on bool) string {
	if on {
		return c.Send(command.PowerOn())
	}
	return c.Send(command.PowerOff())
}

// SetColor sends a color command.
func (c *Controller) SetColor(col command.Color) string {
	return c.Send(command.SetColorValue(col))
}

// SetBrightness validates v and sends it.
func (c *Controller) SetBrightness(v int) string {
	cmd, err := command.SetBrightness(v)
	return c.sendOrReject(cmd, err)
}

// SetMode validates the mode name and sends it.
func (c *Controller) SetMode(name string) string {
	cmd, err := command.SetMode(name)
	return c.sendOrReject(cmd, err)
}

// SetEffectSpeed validates v and sends it.
func (c *Controller) SetEffectSpeed(v int) string {
	cmd, err := command.SetEffectSpeed(v)
	return c.sendOrReject(cmd, err)
}

// sendOrReject reports construction errors without involving the worker.
func (c *Controller) sendOrReject(cmd command.Command, err error) string {
	if err != nil {
		id := newRequestID()
		c.emit(Event{Type: EventResult, RequestID: id, Intent: IntentSend, Err: err})
		return id
	}
	return c.Send(cmd)
}

func (c *Controller) submit(in intent) string {
	in.id = newRequestID()

	if c.closed.Load() {
		c.emit(Event{Type: EventResult, RequestID: in.id, Intent: in.kind, Command: in.cmd, Err: ErrClosed})
		return in.id
	}

	select {
	case c.intents <- in:
	default:
		c.logger.WithFields(logrus.Fields{
			"request": in.id,
			"intent":  in.kind.String(),
		}).Warn("Intent queue full")
		c.emit(Event{Type: EventResult, RequestID: in.id, Intent: in.kind, Command: in.cmd, Err: ErrBusy})
	}
	return in.id
}

func (c *Controller) work(ctx context.Context) {
	entry := c.logger.WithField("goroutine", groutine.GetName(ctx))
	entry.Debug("Controller worker started")
	defer entry.Debug("Controller worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case in := <-c.intents:
			c.handle(ctx, in)
		}
	}
}

func (c *Controller) handle(ctx context.Context, in intent) {
	ev := Event{Type: EventResult, RequestID: in.id, Intent: in.kind, Command: in.cmd}

	switch in.kind {
	case IntentConnect:
		desc, err := c.scanner.Select(in.desc)
		if err == nil {
			err = c.session.Connect(ctx, desc, commandState(c.Settings()))
		}
		ev.Err = err
	case IntentDisconnect:
		c.session.Disconnect()
	case IntentSend:
		err := c.session.Send(ctx, in.cmd)
		if err == nil {
			c.mu.Lock()
			c.settings = c.settings.Apply(in.cmd)
			c.mu.Unlock()
		}
		ev.Err = err
	}

	entry := c.logger.WithFields(logrus.Fields{
		"request": in.id,
		"intent":  in.kind.String(),
	})
	if ev.Err != nil {
		entry.WithError(ev.Err).Debug("Intent failed")
	} else {
		entry.Debug("Intent done")
	}
	c.emit(ev)
}

// onStateChange forwards transitions and flushes settings whenever a live
// session ends.
func (c *Controller) onStateChange(change session.StateChange) {
	c.emit(Event{Type: EventState, State: change})

	if change.To != session.StateIdle {
		return
	}
	if change.From != session.StateConnected && change.From != session.StateDisconnecting {
		return
	}

	c.mu.Lock()
	snapshot := mergeCached(c.settings, change.Cached)
	c.settings = snapshot
	c.mu.Unlock()

	if err := c.store.Save(snapshot); err != nil {
		c.logger.WithError(err).Error("Failed to save settings")
		return
	}
	c.logger.WithField("session", change.SessionID).Debug("Settings flushed")
}

func (c *Controller) emit(ev Event) {
	c.events.ForceSend(ev)
}

func newRequestID() string {
	return ulid.Make().String()
}
