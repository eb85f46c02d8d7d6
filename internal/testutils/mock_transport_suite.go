package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockTransportSuite provides a reusable test suite with a mocked BLE transport.
//
// Basic usage:
//
//	type SessionSuite struct {
//	    testutils.MockTransportSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
//	func (s *SessionSuite) TestSomething() {
//	    s.Transport.ExpectDial(Addr, s.Link, nil)
//	    ...
//	}
//
// Every test gets a fresh Transport and Link; expectations are asserted in
// TearDownTest.
type MockTransportSuite struct {
	suite.Suite

	// Core test utilities
	Helper *TestHelper
	Logger *logrus.Logger

	Transport *MockTransport
	Link      *MockLink

	// TestTimeout bounds waits on asynchronous results.
	TestTimeout time.Duration
}

// DefaultAddress is the address of the peripheral behind Link.
const DefaultAddress = "AA:BB:CC:DD:EE:FF"

// SetupSuite initializes shared helpers. Called once before all tests in the suite.
func (s *MockTransportSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
}

// SetupTest creates fresh transport mocks before each test.
func (s *MockTransportSuite) SetupTest() {
	s.Transport = &MockTransport{}
	s.Link = NewMockLink(DefaultAddress)
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest verifies mock expectations after each test.
func (s *MockTransportSuite) TearDownTest() {
	s.Transport.AssertExpectations(s.T())
	s.Link.AssertExpectations(s.T())
}

// WaitFor waits for cond within TestTimeout.
func (s *MockTransportSuite) WaitFor(cond func() bool, msg string) {
	s.Require().Eventually(cond, s.TestTimeout, 5*time.Millisecond, msg)
}
