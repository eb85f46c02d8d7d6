package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/srg/lotus/controller"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/internal/testutils"
	"github.com/srg/lotus/preview"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type UITestSuite struct {
	testutils.MockTransportSuite

	ctrl    *controller.Controller
	fixture device.Descriptor
}

func TestUITestSuite(t *testing.T) {
	suite.Run(t, new(UITestSuite))
}

func (suite *UITestSuite) SetupTest() {
	suite.MockTransportSuite.SetupTest()

	store := settings.NewStore(suite.Helper.TempSettingsPath(), suite.Logger)
	suite.ctrl = controller.New(suite.Transport, store, nil, suite.Logger)
	suite.fixture = testutils.NewAdvertisementBuilder().
		WithAddress(testutils.DefaultAddress).
		WithName("ELK-BLEDOM").
		WithServices("fff0").
		BuildDescriptor()
}

func (suite *UITestSuite) TearDownTest() {
	suite.ctrl.Close()
	suite.MockTransportSuite.TearDownTest()
}

func (suite *UITestSuite) newModel() uiModel {
	return newUIModel(suite.ctrl, &scanner.Options{Duration: time.Second, DuplicateFilter: true}, 10*time.Millisecond)
}

func update(m uiModel, msg tea.Msg) (uiModel, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(uiModel), cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// pump feeds controller events into m until done reports true.
func (suite *UITestSuite) pump(m uiModel, done func(controller.Event) bool) uiModel {
	timeout := time.After(suite.TestTimeout)
	for {
		select {
		case ev, ok := <-suite.ctrl.Events():
			suite.Require().True(ok, "event stream MUST stay open")
			m, _ = update(m, eventMsg(ev))
			if done(ev) {
				return m
			}
		case <-timeout:
			suite.FailNow("timed out waiting for controller event")
			return m
		}
	}
}

func (suite *UITestSuite) TestScanEvents() {
	// GOAL: Verify scan events build the device list and the final status
	//
	// TEST SCENARIO: discovered ×2, updated, finished → ordered list, refreshed RSSI, "Found 2 device(s)"

	m := suite.newModel()
	m.scanID = "scan-1"
	m.scanning = true

	other := testutils.CreateMockAdvertisement("Thermometer", "11:22:33:44:55:66", -70).BuildDescriptor()
	refreshed := suite.fixture
	refreshed.RSSI = -40

	for _, ev := range []scanner.Event{
		{Type: scanner.EventDiscovered, Device: suite.fixture},
		{Type: scanner.EventDiscovered, Device: other},
		{Type: scanner.EventUpdated, Device: refreshed},
		{Type: scanner.EventFinished, Status: scanner.StatusCompleted},
	} {
		m, _ = update(m, eventMsg(controller.Event{Type: controller.EventScan, RequestID: "scan-1", Scan: ev}))
	}

	suite.Require().Len(m.devices, 2, "both devices MUST be listed")
	suite.Equal("ELK-BLEDOM", m.devices[0].Name, "discovery order MUST be kept")
	suite.Equal(-40, m.devices[0].RSSI, "update MUST refresh the entry in place")
	suite.False(m.scanning)
	suite.Equal("Found 2 device(s)", m.status)
}

func (suite *UITestSuite) TestScanEvents_NoDevicesAndStale() {
	m := suite.newModel()
	m.scanID = "current"

	m, _ = update(m, eventMsg(controller.Event{
		Type:      controller.EventScan,
		RequestID: "previous",
		Scan:      scanner.Event{Type: scanner.EventDiscovered, Device: suite.fixture},
	}))
	suite.Empty(m.devices, "events of a superseded scan MUST be ignored")

	m, _ = update(m, eventMsg(controller.Event{
		Type:      controller.EventScan,
		RequestID: "current",
		Scan:      scanner.Event{Type: scanner.EventFinished, Status: scanner.StatusNoDevices},
	}))
	suite.Equal("No Devices Found", m.status, "an empty scan MUST NOT leave Scanning... on screen")
}

func (suite *UITestSuite) TestStateChanges() {
	// GOAL: Verify session transitions drive the status line; the swatch is idle only while disconnected

	m := suite.newModel()

	m, _ = update(m, eventMsg(controller.Event{Type: controller.EventState, State: session.StateChange{
		From:   session.StateConnecting,
		To:     session.StateConnected,
		Device: suite.fixture,
		Cached: session.CommandState{Power: session.PowerOn},
	}}))
	suite.Equal("Connected to ELK-BLEDOM", m.status)
	suite.Equal(session.PowerOn, m.power)
	m, _ = update(m, previewTickMsg(time.Now()))
	suite.NotEqual(preview.Idle, m.swatch, "connected preview MUST show the mode cycle")

	m, _ = update(m, eventMsg(controller.Event{Type: controller.EventState, State: session.StateChange{
		From:   session.StateConnected,
		To:     session.StateIdle,
		Reason: "peripheral disconnected",
	}}))
	suite.Equal("Disconnected (peripheral disconnected)", m.status)
	suite.True(m.statusErr, "an unexpected drop MUST be shown as an error")
	cycleBefore := m.sync.Cycle()
	m, _ = update(m, previewTickMsg(time.Now()))
	suite.Equal(preview.Idle, m.swatch, "disconnected preview MUST show the idle swatch")
	suite.Equal(cycleBefore, m.sync.Cycle(), "a drop MUST NOT alter the preview cycle")
}

func (suite *UITestSuite) TestResults() {
	// GOAL: Verify results update the status line without steering the preview

	m := suite.newModel()

	mode, _ := command.SetMode("Rainbow")
	m, _ = update(m, eventMsg(controller.Event{Type: controller.EventResult, Intent: controller.IntentSend, Command: mode}))
	suite.Equal("Mode set to Rainbow", m.status, "mode change MUST be confirmed")
	suite.Equal(settings.Defaults().Mode.String(), m.sync.Mode(), "preview MUST follow the selection, not send results")

	m, _ = update(m, eventMsg(controller.Event{Type: controller.EventResult, Intent: controller.IntentSend, Command: command.PowerOff()}))
	suite.Equal(session.PowerOff, m.power)

	m, _ = update(m, eventMsg(controller.Event{
		Type:   controller.EventResult,
		Intent: controller.IntentConnect,
		Err:    &session.ConnectError{Reason: session.ReasonRadio, Address: "AA", Err: errors.New("abort")},
	}))
	suite.Equal("Connection failed: failed to connect to AA: abort", m.status)
	suite.True(m.statusErr)
}

func (suite *UITestSuite) TestKeys() {
	m := suite.newModel()

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	suite.Equal("No device selected", m.status, "connect without devices MUST be refused")

	m.devices = []device.Descriptor{suite.fixture, {Address: "11:22:33:44:55:66"}}
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
	suite.Equal(1, m.cursor, "cursor MUST stop at the last device")
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	suite.Equal(0, m.cursor, "cursor MUST stop at the first device")

	_, cmd := update(m, keyRunes("q"))
	suite.Require().NotNil(cmd)
	suite.IsType(tea.QuitMsg{}, cmd(), "q MUST quit")
}

func (suite *UITestSuite) TestModeSelectionWhileDisconnected() {
	// GOAL: Verify mode and color keys drive the preview even when every send fails
	//
	// TEST SCENARIO: no session → m twice → c once → preview mirrors the selection; sends report not connected

	suite.ctrl.Start(suite.T().Context())
	m := suite.newModel()
	first := nextMode(settings.Defaults().Mode)
	second := nextMode(first)

	m, _ = update(m, keyRunes("m"))
	suite.Equal(first.String(), m.sync.Mode(), "a mode key MUST switch the preview immediately")
	m, _ = update(m, keyRunes("m"))
	suite.Equal(second.String(), m.sync.Mode(), "repeated mode keys MUST keep advancing without a session")
	suite.Equal(preview.Palette(second.String(), m.selColor), m.sync.Cycle())

	m, _ = update(m, keyRunes("c"))
	suite.Equal(nextColor(settings.Defaults().Color), m.selColor)

	m = suite.pump(m, func(ev controller.Event) bool {
		return ev.Type == controller.EventResult && ev.Intent == controller.IntentSend && ev.Err != nil
	})
	suite.True(m.statusErr, "a failed send MUST be reported")
	suite.Equal(second.String(), m.sync.Mode(), "a failed send MUST NOT alter the preview")

	m, _ = update(m, previewTickMsg(time.Now()))
	suite.Equal(preview.Idle, m.swatch, "the swatch MUST stay idle while disconnected")
}

func (suite *UITestSuite) TestPreviewTick() {
	m := suite.newModel()

	m, cmd := update(m, previewTickMsg(time.Now()))
	suite.Equal(preview.Idle, m.swatch, "idle swatch MUST show while disconnected")
	suite.NotNil(cmd, "tick MUST schedule the next tick")
}

func (suite *UITestSuite) TestScanConnectAndAdjust() {
	// GOAL: Verify the full key flow against a running controller
	//
	// TEST SCENARIO: s → scan finds fixture → enter connects → + raises brightness by one step

	suite.ctrl.Start(suite.T().Context())
	suite.Transport.ExpectScan(testutils.Advertisements(testutils.NewAdvertisementBuilder().
		WithAddress(testutils.DefaultAddress).
		WithName("ELK-BLEDOM").
		WithServices("fff0").
		Build()), nil)

	m := suite.newModel()
	m, _ = update(m, keyRunes("s"))
	suite.Equal("Scanning...", m.status)
	m = suite.pump(m, func(ev controller.Event) bool {
		return ev.Type == controller.EventScan && ev.Scan.Type == scanner.EventFinished
	})
	suite.Require().Len(m.devices, 1, "scan MUST list the fixture")

	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	suite.Equal("Connecting to ELK-BLEDOM...", m.status)
	m = suite.pump(m, func(ev controller.Event) bool {
		return ev.Type == controller.EventResult && ev.Intent == controller.IntentConnect
	})
	suite.Equal(session.StateConnected, m.state)

	brightness, _ := command.SetBrightness(settings.Defaults().Brightness + brightnessStep)
	frame, _ := command.Encode(brightness)
	suite.Link.On("Write", mock.Anything, command.CharacteristicUUID, frame.Payload).Return(nil).Once()

	m, _ = update(m, keyRunes("+"))
	m = suite.pump(m, func(ev controller.Event) bool {
		return ev.Type == controller.EventResult && ev.Intent == controller.IntentSend
	})
	suite.Equal(settings.Defaults().Brightness+brightnessStep, m.settings.Brightness, "brightness MUST follow the confirmed send")
	suite.Equal("Brightness set to 144", m.status)

	view := m.View()
	suite.True(strings.Contains(view, "ELK-BLEDOM"), "view MUST list the fixture")
	suite.True(strings.Contains(view, "144"), "view MUST show the brightness")
}
