package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/internal/testutils"
	"github.com/srg/lotus/runner"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}

func (suite *CommandsTestSuite) payload(c command.Command) []byte {
	frame, err := command.Encode(c)
	suite.Require().NoError(err, "encoding MUST succeed")
	return frame.Payload
}

func (suite *CommandsTestSuite) savedSettings() settings.Settings {
	return settings.NewStore(suite.settingsPath, suite.Logger).Load()
}

func (suite *CommandsTestSuite) fixtureAdvertisement() *testutils.FakeAdvertisement {
	return testutils.NewAdvertisementBuilder().
		WithAddress(testutils.DefaultAddress).
		WithName("ELK-BLEDOM").
		WithServices("fff0").
		Build()
}

// --- control commands ---

func (suite *CommandsTestSuite) TestBrightness_ByAddress() {
	// GOAL: Verify a control command connects, writes one frame, disconnects and remembers the value
	//
	// TEST SCENARIO: brightness 200 --address → dial, write, close → settings brightness 200

	brightness, _ := command.SetBrightness(200)
	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	suite.Link.ExpectWrite(command.CharacteristicUUID, suite.payload(brightness), nil)

	out, _, err := suite.ExecuteCommand("brightness", "200", "--address", testutils.DefaultAddress)
	suite.Require().NoError(err, "brightness MUST succeed")

	suite.Contains(out, "OK: set_brightness(200) sent to "+testutils.DefaultAddress, "output MUST confirm the command")
	suite.Equal(1, suite.Link.CloseCalls(), "link MUST be closed after the command")
	suite.Equal(200, suite.savedSettings().Brightness, "settings MUST record the new brightness")
}

func (suite *CommandsTestSuite) TestColor_ByName() {
	// GOAL: Verify --name scans for the first matching fixture before connecting
	//
	// TEST SCENARIO: color '#ff8800' --name elk → scan finds ELK-BLEDOM → write color frame

	c, err := command.SetColor(0xff, 0x88, 0x00)
	suite.Require().NoError(err)
	suite.Transport.ExpectScan(testutils.Advertisements(suite.fixtureAdvertisement()), nil)
	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	suite.Link.ExpectWrite(command.CharacteristicUUID, suite.payload(c), nil)

	out, _, err := suite.ExecuteCommand("color", "#ff8800", "--name", "elk")
	suite.Require().NoError(err, "color MUST succeed")

	suite.Contains(out, "sent to ELK-BLEDOM", "output MUST name the fixture")
	suite.Equal(command.Color{R: 0xff, G: 0x88, B: 0x00}, suite.savedSettings().Color, "settings MUST record the new color")
}

func (suite *CommandsTestSuite) TestColor_ThreeChannels() {
	c, err := command.SetColor(1, 2, 3)
	suite.Require().NoError(err)
	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	suite.Link.ExpectWrite(command.CharacteristicUUID, suite.payload(c), nil)

	_, _, err = suite.ExecuteCommand("color", "1", "2", "3", "-a", testutils.DefaultAddress)
	suite.Require().NoError(err, "color with three channels MUST succeed")
}

func (suite *CommandsTestSuite) TestPowerAndMode() {
	// GOAL: Verify power and mode commands encode their frames; power does not touch settings
	//
	// TEST SCENARIO: power off, then mode rainbow → two sessions → mode persisted

	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	suite.Link.ExpectWrite(command.CharacteristicUUID, suite.payload(command.PowerOff()), nil)

	_, _, err := suite.ExecuteCommand("power", "off", "-a", testutils.DefaultAddress)
	suite.Require().NoError(err, "power off MUST succeed")
	suite.Equal(settings.Defaults(), suite.savedSettings(), "power MUST NOT change persisted values")

	mode, _ := command.SetMode("rainbow")
	link := testutils.NewMockLink(testutils.DefaultAddress)
	suite.Transport.ExpectDial(testutils.DefaultAddress, link, nil)
	link.ExpectWrite(command.CharacteristicUUID, suite.payload(mode), nil)

	_, _, err = suite.ExecuteCommand("mode", "rainbow", "-a", testutils.DefaultAddress)
	suite.Require().NoError(err, "mode MUST succeed")
	suite.Equal(command.ModeRainbow, suite.savedSettings().Mode, "settings MUST record the new mode")
	link.AssertExpectations(suite.T())
}

func (suite *CommandsTestSuite) TestControl_WriteFailure() {
	// GOAL: Verify a rejected write surfaces as a send error and leaves settings untouched

	speed, _ := command.SetEffectSpeed(70)
	suite.Transport.ExpectDial(testutils.DefaultAddress, suite.Link, nil)
	suite.Link.ExpectWrite(command.CharacteristicUUID, suite.payload(speed), errors.New("gatt write failed"))

	_, _, err := suite.ExecuteCommand("speed", "70", "-a", testutils.DefaultAddress)
	suite.Require().Error(err, "speed MUST fail when the write fails")

	var sendErr *session.SendError
	suite.ErrorAs(err, &sendErr, "error MUST be a send error")
	suite.Contains(FormatUserError(err), "did not accept", "user message MUST explain the failure")
	suite.Equal(settings.Defaults().EffectSpeed, suite.savedSettings().EffectSpeed, "settings MUST NOT change on failure")
}

func (suite *CommandsTestSuite) TestControl_InvalidArguments() {
	// GOAL: Verify invalid values are rejected before any radio activity

	tests := []struct {
		name string
		args []string
	}{
		{"brightness out of range", []string{"brightness", "300", "-a", testutils.DefaultAddress}},
		{"brightness not a number", []string{"brightness", "bright", "-a", testutils.DefaultAddress}},
		{"speed zero", []string{"speed", "0", "-a", testutils.DefaultAddress}},
		{"unknown mode", []string{"mode", "disco", "-a", testutils.DefaultAddress}},
		{"bad color", []string{"color", "#12345", "-a", testutils.DefaultAddress}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, _, err := suite.ExecuteCommand(tt.args...)
			suite.ErrorIs(err, command.ErrInvalidCommand, "invalid value MUST be rejected")
		})
	}
	suite.Transport.AssertNotCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
}

func (suite *CommandsTestSuite) TestControl_NoTarget() {
	_, _, err := suite.ExecuteCommand("power", "on")
	suite.ErrorIs(err, runner.ErrNoTarget, "a target MUST be required")
}

func (suite *CommandsTestSuite) TestControl_NameNotFound() {
	suite.Transport.ExpectScan(nil, nil)

	_, _, err := suite.ExecuteCommand("power", "on", "--name", "nothing")
	suite.ErrorIs(err, scanner.ErrUnknownDevice, "a missing fixture MUST be reported as unknown")
}

// --- scan ---

func (suite *CommandsTestSuite) TestScan_JSON() {
	// GOAL: Verify scan prints devices in discovery order as JSON

	other := testutils.CreateMockAdvertisement("Thermometer", "11:22:33:44:55:66", -70).Build()
	suite.Transport.ExpectScan(testutils.Advertisements(suite.fixtureAdvertisement(), other), nil)

	out, _, err := suite.ExecuteCommand("scan", "--format", "json", "--duration", "1s")
	suite.Require().NoError(err, "scan MUST succeed")

	testutils.NewJSONAsserter(suite.T()).Assert(out, `[
		{"address": "AA:BB:CC:DD:EE:FF", "name": "ELK-BLEDOM", "rssi": -50, "connectable": true, "services": ["fff0"]},
		{"address": "11:22:33:44:55:66", "name": "Thermometer", "rssi": -70, "connectable": true, "services": []}
	]`)
}

func (suite *CommandsTestSuite) TestScan_TableNoDevices() {
	suite.Transport.ExpectScan(nil, nil)

	out, _, err := suite.ExecuteCommand("scan", "--duration", "1s")
	suite.Require().NoError(err, "an empty scan MUST NOT be an error")
	suite.Contains(out, "No devices found")
}

func (suite *CommandsTestSuite) TestScan_Table() {
	suite.Transport.ExpectScan(testutils.Advertisements(suite.fixtureAdvertisement()), nil)

	out, _, err := suite.ExecuteCommand("scan", "--duration", "1s", "--name", "elk")
	suite.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	suite.Require().Len(lines, 3, "table MUST have header, rule and one row")
	suite.Equal([]string{"ELK-BLEDOM", testutils.DefaultAddress, "-50", "dBm", "fff0"}, strings.Fields(lines[2]))
}

func (suite *CommandsTestSuite) TestScan_Failure() {
	suite.Transport.ExpectScan(nil, errors.New("adapter busy"))

	_, _, err := suite.ExecuteCommand("scan", "--duration", "1s")
	suite.Require().Error(err)
	suite.Contains(err.Error(), "adapter busy")
}

func (suite *CommandsTestSuite) TestScan_InvalidFlags() {
	_, _, err := suite.ExecuteCommand("scan", "--format", "xml")
	suite.ErrorContains(err, "invalid format")

	_, _, err = suite.ExecuteCommand("scan", "--services", "not-a-uuid")
	suite.ErrorContains(err, "invalid service UUID")
}

// --- modes, preview, settings ---

func (suite *CommandsTestSuite) TestModes() {
	// GOAL: Verify every mode is listed with its wire code and preview colors, current mode marked

	out, _, err := suite.ExecuteCommand("modes")
	suite.Require().NoError(err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	suite.Require().Len(lines, 6, "all six modes MUST be listed")

	suite.Equal([]string{"*", "Static", "0x80", "#00ff00"}, strings.Fields(lines[0]), "Static MUST show the current color")
	suite.Equal([]string{"Fade", "0x8a", "#ff0000", "#00ff00", "#0000ff"}, strings.Fields(lines[1]))
	suite.Equal([]string{"Blink", "0x95", "#ffffff", "#000000"}, strings.Fields(lines[2]))
	suite.Equal([]string{"Rainbow", "0x8c", "#ff0000", "#ff7f00", "#ffff00", "#00ff00", "#0000ff", "#4b0082", "#8f00ff"}, strings.Fields(lines[3]))
	suite.Equal([]string{"Strobe", "0x96", "#ffffff", "#000000"}, strings.Fields(lines[4]))
	suite.Equal([]string{"Wave", "0x88", "#00ffff", "#0000ff", "#ff00ff"}, strings.Fields(lines[5]))
}

func (suite *CommandsTestSuite) TestPreview_PlainList() {
	// GOAL: Verify preview prints the cycle once when stdout is not a terminal

	out, _, err := suite.ExecuteCommand("preview", "wave")
	suite.Require().NoError(err)

	testutils.NewTextAsserter(suite.T()).WithOptions(testutils.WithIgnoreTrailingWhitespace(true)).Assert(
		strings.Join(fieldsPerLine(out), "\n"),
		"Wave (0x88)\n1 #00ffff\n2 #0000ff\n3 #ff00ff",
	)

	_, _, err = suite.ExecuteCommand("preview", "disco")
	suite.ErrorIs(err, command.ErrInvalidCommand, "unknown mode MUST be rejected")
}

func (suite *CommandsTestSuite) TestSettings_ShowAndReset() {
	// GOAL: Verify settings prints the persisted values and --reset restores defaults

	custom := settings.Defaults()
	custom.Brightness = 42
	custom.Mode = command.ModeBlink
	suite.Require().NoError(settings.NewStore(suite.settingsPath, suite.Logger).Save(custom))

	out, _, err := suite.ExecuteCommand("settings")
	suite.Require().NoError(err)
	suite.True(strings.HasPrefix(out, "# "+suite.settingsPath+"\n"), "output MUST start with the file path")
	testutils.NewJSONAsserter(suite.T()).Assert(jsonBody(out),
		`{"color": [0, 255, 0], "brightness": 42, "mode": "Blink", "effect_speed": 50}`)

	_, _, err = suite.ExecuteCommand("settings", "--reset")
	suite.Require().NoError(err)
	suite.Equal(settings.Defaults(), suite.savedSettings(), "reset MUST save the defaults")
}

func fieldsPerLine(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return out
}

func jsonBody(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
