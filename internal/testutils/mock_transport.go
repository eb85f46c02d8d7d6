package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/srg/lotus/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport.
//
// Scan expectations may return either an error or a func(context.Context) error;
// the latter is invoked with the scan context, which lets a test keep a scan
// running until it is cancelled:
//
//	tr.On("Scan", mock.Anything, mock.Anything, mock.Anything).
//	    Return(testutils.BlockUntilCancelled)
type MockTransport struct {
	mock.Mock
}

// BlockUntilCancelled is a Scan return value that blocks until the scan context ends.
func BlockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockTransport) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	args := m.Called(ctx, allowDup, handler)
	if fn, ok := args.Get(0).(func(context.Context) error); ok {
		return fn(ctx)
	}
	return args.Error(0)
}

func (m *MockTransport) Dial(ctx context.Context, address string) (device.Link, error) {
	args := m.Called(ctx, address)
	link, _ := args.Get(0).(device.Link)
	return link, args.Error(1)
}

// ExpectScan makes the next Scan deliver advs to the handler and return err.
func (m *MockTransport) ExpectScan(advs []device.Advertisement, err error) *mock.Call {
	return m.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(func(device.Advertisement))
			for _, adv := range advs {
				handler(adv)
			}
		}).
		Return(err).
		Once()
}

// ExpectDial makes the next Dial to address return link (or err when link is nil).
func (m *MockTransport) ExpectDial(address string, link device.Link, err error) *mock.Call {
	if link == nil {
		return m.On("Dial", mock.Anything, address).Return(nil, err).Once()
	}
	return m.On("Dial", mock.Anything, address).Return(link, err).Once()
}

// MockLink is a testify mock of device.Link. Write is mocked; Close and the
// disconnect notification are real so tests can drop the peripheral with Drop.
type MockLink struct {
	mock.Mock

	address    string
	once       sync.Once
	dropped    chan struct{}
	closeCalls atomic.Int32

	// CloseErr is returned by every Close call.
	CloseErr error
	// CloseGate, when set, holds every Close call until it is closed.
	CloseGate chan struct{}
}

// NewMockLink creates a connected link to address.
func NewMockLink(address string) *MockLink {
	return &MockLink{
		address: address,
		dropped: make(chan struct{}),
	}
}

func (l *MockLink) Address() string { return l.address }

func (l *MockLink) Write(ctx context.Context, characteristic string, data []byte) error {
	args := l.Called(ctx, characteristic, data)
	return args.Error(0)
}

func (l *MockLink) Disconnected() <-chan struct{} { return l.dropped }

func (l *MockLink) Close() error {
	l.closeCalls.Add(1)
	if l.CloseGate != nil {
		<-l.CloseGate
	}
	l.once.Do(func() { close(l.dropped) })
	return l.CloseErr
}

// Drop simulates a peripheral-initiated disconnection.
func (l *MockLink) Drop() {
	l.once.Do(func() { close(l.dropped) })
}

// CloseCalls returns how many times Close was called.
func (l *MockLink) CloseCalls() int {
	return int(l.closeCalls.Load())
}

// ExpectWrite expects one write of payload to characteristic, returning err.
func (l *MockLink) ExpectWrite(characteristic string, payload []byte, err error) *mock.Call {
	return l.On("Write", mock.Anything, characteristic, payload).Return(err).Once()
}
