package goble

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type mockGattClient struct {
	mock.Mock
	disconnected chan struct{}
}

func (m *mockGattClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockGattClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c.UUID.String(), value, noRsp)
	return args.Error(0)
}

func (m *mockGattClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockGattClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

func bledomProfile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{
		{
			UUID: ble.MustParse("1800"),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.MustParse("2a00"), Property: ble.CharRead},
			},
		},
		{
			UUID: ble.MustParse("0000fff0-0000-1000-8000-00805f9b34fb"),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.MustParse("fff3"), Property: ble.CharWriteNR},
				{UUID: ble.MustParse("fff4"), Property: ble.CharNotify | ble.CharWrite},
			},
		},
	}}
}

type LinkTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	client *mockGattClient
}

func (s *LinkTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.client = &mockGattClient{disconnected: make(chan struct{})}
}

func (s *LinkTestSuite) TearDownTest() {
	s.client.AssertExpectations(s.T())
}

func (s *LinkTestSuite) connect() *Link {
	s.client.On("DiscoverProfile", true).Return(bledomProfile(), nil).Once()
	l, err := newLink(testutils.DefaultAddress, s.client, DefaultOptions(), s.helper.Logger)
	s.Require().NoError(err)
	return l
}

func (s *LinkTestSuite) TestWrite() {
	s.Run("writes without response when the characteristic supports it", func() {
		l := s.connect()
		payload := []byte{0x7e, 0x00, 0x01, 0xc8, 0x00, 0x00, 0x00, 0x00, 0xef}
		s.client.On("WriteCharacteristic", "fff3", payload, true).Return(nil).Once()

		s.NoError(l.Write(context.Background(), "0000fff3-0000-1000-8000-00805f9b34fb", payload))
	})

	s.Run("writes with response otherwise", func() {
		l := s.connect()
		s.client.On("WriteCharacteristic", "fff4", []byte{1}, false).Return(nil).Once()

		s.NoError(l.Write(context.Background(), "fff4", []byte{1}))
	})

	s.Run("unknown characteristic", func() {
		l := s.connect()

		err := l.Write(context.Background(), "ffd9", []byte{1})

		var nf *device.NotFoundError
		s.ErrorAs(err, &nf)
		s.Equal("characteristic", nf.Resource)
	})

	s.Run("radio error is normalized", func() {
		l := s.connect()
		s.client.On("WriteCharacteristic", "fff3", []byte{1}, true).Return(errors.New("device not connected")).Once()

		err := l.Write(context.Background(), "fff3", []byte{1})

		s.ErrorIs(err, device.ErrNotConnected)
	})
}

func (s *LinkTestSuite) TestWriteTimeout() {
	s.client.On("DiscoverProfile", true).Return(bledomProfile(), nil).Once()
	opts := DefaultOptions()
	opts.WriteTimeout = 20 * time.Millisecond
	l, err := newLink(testutils.DefaultAddress, s.client, opts, s.helper.Logger)
	s.Require().NoError(err)

	s.client.On("WriteCharacteristic", "fff3", []byte{1}, true).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(nil).Once()

	err = l.Write(context.Background(), "fff3", []byte{1})

	// GOAL: a stalled radio write MUST surface as a timeout instead of blocking
	s.ErrorIs(err, device.ErrTimeout)
	time.Sleep(250 * time.Millisecond) // let the stalled write finish before AssertExpectations
}

func (s *LinkTestSuite) TestWriteAfterTimeoutWaitsForRadio() {
	s.client.On("DiscoverProfile", true).Return(bledomProfile(), nil).Once()
	opts := DefaultOptions()
	opts.WriteTimeout = 20 * time.Millisecond
	l, err := newLink(testutils.DefaultAddress, s.client, opts, s.helper.Logger)
	s.Require().NoError(err)

	var inFlight, maxInFlight atomic.Int32
	track := func(hold time.Duration) func(mock.Arguments) {
		return func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(hold)
			inFlight.Add(-1)
		}
	}
	s.client.On("WriteCharacteristic", "fff3", []byte{1}, true).Run(track(200 * time.Millisecond)).Return(nil).Once()
	s.client.On("WriteCharacteristic", "fff3", []byte{3}, true).Run(track(0)).Return(nil).Once()

	s.ErrorIs(l.Write(context.Background(), "fff3", []byte{1}), device.ErrTimeout)

	err = l.Write(context.Background(), "fff3", []byte{2})
	// GOAL: a write issued while a timed-out write is still on the radio MUST NOT reach the client
	s.ErrorIs(err, device.ErrTimeout)
	s.Contains(err.Error(), "still in flight")

	time.Sleep(250 * time.Millisecond)
	s.NoError(l.Write(context.Background(), "fff3", []byte{3}), "link MUST accept writes once the stalled one returns")
	s.Equal(int32(1), maxInFlight.Load(), "radio MUST never see overlapping writes")
}

func (s *LinkTestSuite) TestConnectFailures() {
	s.Run("profile discovery failure cancels the connection", func() {
		client := &mockGattClient{disconnected: make(chan struct{})}
		client.On("DiscoverProfile", true).Return(nil, errors.New("att: timed out")).Once()
		client.On("CancelConnection").Return(nil).Once()

		_, err := newLink(testutils.DefaultAddress, client, DefaultOptions(), s.helper.Logger)

		s.ErrorIs(err, device.ErrTimeout)
		client.AssertExpectations(s.T())
	})

	s.Run("missing control service", func() {
		client := &mockGattClient{disconnected: make(chan struct{})}
		client.On("DiscoverProfile", true).Return(&ble.Profile{}, nil).Once()
		client.On("CancelConnection").Return(nil).Once()

		_, err := newLink(testutils.DefaultAddress, client, DefaultOptions(), s.helper.Logger)

		var nf *device.NotFoundError
		s.ErrorAs(err, &nf)
		s.Equal([]string{"fff0"}, nf.UUIDs)
		client.AssertExpectations(s.T())
	})
}

func (s *LinkTestSuite) TestDisconnect() {
	s.Run("peripheral drop closes Disconnected and blocks writes", func() {
		l := s.connect()

		close(s.client.disconnected)

		select {
		case <-l.Disconnected():
		case <-time.After(time.Second):
			s.FailNow("Disconnected MUST be closed after a peripheral drop")
		}
		s.ErrorIs(l.Write(context.Background(), "fff3", []byte{1}), device.ErrNotConnected)
	})

	s.Run("Close cancels once", func() {
		s.client = &mockGattClient{disconnected: make(chan struct{})}
		l := s.connect()
		s.client.On("CancelConnection").Return(nil).Once()

		s.NoError(l.Close())
		s.NoError(l.Close())

		_, open := <-l.Disconnected()
		s.False(open)
	})
}

func TestLinkTestSuite(t *testing.T) {
	suite.Run(t, new(LinkTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bluetooth off (darwin)", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"bluetooth off (linux)", errors.New("can't init hci: no devices available"), device.ErrBluetoothOff},
		{"not connected", errors.New("device not connected"), device.ErrNotConnected},
		{"already connected", errors.New("device already connected"), device.ErrAlreadyConnected},
		{"deadline", context.DeadlineExceeded, device.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, NormalizeError(tt.err), tt.want)
		})
	}

	require.NoError(t, NormalizeError(nil))
	other := errors.New("something else")
	require.Equal(t, other, NormalizeError(other))
}
