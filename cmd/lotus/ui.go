package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/srg/lotus/controller"
	"github.com/srg/lotus/internal/command"
	"github.com/srg/lotus/internal/device"
	"github.com/srg/lotus/internal/settings"
	"github.com/srg/lotus/preview"
	"github.com/srg/lotus/scanner"
	"github.com/srg/lotus/session"
)

var uiLogFile string

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive fixture control",
	Long: `Open an interactive terminal UI: scan, pick a fixture, connect and change
power, color, brightness, mode and effect speed with single keys.

Logs are discarded unless --log-file is given, since the terminal belongs to the UI.`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	uiCmd.Flags().StringVar(&uiLogFile, "log-file", "", "Write logs to this file")
	uiCmd.Flags().StringP("name", "n", "", "Only list fixtures whose name starts with this prefix")
}

func runUI(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	logs, err := routeLogs(a.logger, uiLogFile, a.cfg.Level())
	if err != nil {
		return err
	}
	defer logs.Close()

	cmd.SilenceUsage = true

	scanOpts := &scanner.Options{
		Duration:        a.cfg.ScanTimeout,
		DuplicateFilter: true,
		NamePrefix:      a.cfg.NamePrefix,
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		scanOpts.NamePrefix = name
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := controller.New(a.transport(), a.store, &controller.Options{
		QueueSize:   16,
		EventBuffer: 128,
		Session:     a.sessionOptions(),
	}, a.logger)
	ctrl.Start(ctx)
	defer ctrl.Close()

	m := newUIModel(ctrl, scanOpts, a.cfg.PreviewInterval)
	m = m.startScan()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	_, err = p.Run()
	return err
}

//////////////////////////////////////////////////////////////
// Keys
//////////////////////////////////////////////////////////////

type uiKeyMap struct {
	Scan       key.Binding
	Up         key.Binding
	Down       key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	PowerOn    key.Binding
	PowerOff   key.Binding
	Brighter   key.Binding
	Dimmer     key.Binding
	Faster     key.Binding
	Slower     key.Binding
	Mode       key.Binding
	Color      key.Binding
	Quit       key.Binding
}

func defaultKeyMap() uiKeyMap {
	return uiKeyMap{
		Scan:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "scan")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Connect:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
		Disconnect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
		PowerOn:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "on")),
		PowerOff:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "off")),
		Brighter:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "brightness")),
		Dimmer:     key.NewBinding(key.WithKeys("-", "_")),
		Faster:     key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "speed")),
		Slower:     key.NewBinding(key.WithKeys("[")),
		Mode:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mode")),
		Color:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "color")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k uiKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.Connect, k.Disconnect, k.PowerOn, k.PowerOff, k.Brighter, k.Faster, k.Mode, k.Color, k.Quit}
}

const (
	brightnessStep = 16
	speedStep      = 10
)

// colors cycled by the color key
var uiColors = []command.Color{
	{R: 255, G: 0, B: 0},
	{R: 255, G: 127, B: 0},
	{R: 255, G: 255, B: 0},
	{R: 0, G: 255, B: 0},
	{R: 0, G: 255, B: 255},
	{R: 0, G: 0, B: 255},
	{R: 143, G: 0, B: 255},
	{R: 255, G: 255, B: 255},
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type eventMsg controller.Event

type eventsClosedMsg struct{}

type previewTickMsg time.Time

// waitForEvent blocks in a tea command, never in Update.
func waitForEvent(events <-chan controller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func previewTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return previewTickMsg(t)
	})
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type uiModel struct {
	ctrl     *controller.Controller
	scanOpts *scanner.Options
	interval time.Duration

	keys    uiKeyMap
	help    help.Model
	spinner spinner.Model
	sync    *preview.Synchronizer

	devices  []device.Descriptor
	cursor   int
	scanID   string
	scanning bool

	state     session.State
	connected device.Descriptor
	power     session.PowerState
	settings  settings.Settings
	swatch    command.Color

	// selection mirrored by the preview, independent of send results
	selMode  command.Mode
	selColor command.Color

	status    string
	statusErr bool
	width     int
}

func newUIModel(ctrl *controller.Controller, scanOpts *scanner.Options, interval time.Duration) uiModel {
	if interval <= 0 {
		interval = preview.Interval
	}
	current := ctrl.Settings()
	return uiModel{
		ctrl:     ctrl,
		scanOpts: scanOpts,
		interval: interval,
		keys:     defaultKeyMap(),
		help:     help.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		sync:     preview.New(current.Mode.String(), current.Color),
		state:    ctrl.State(),
		settings: current,
		swatch:   preview.Idle,
		selMode:  current.Mode,
		selColor: current.Color,
		width:    80,
	}
}

func (m uiModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.ctrl.Events()),
		previewTick(m.interval),
		m.spinner.Tick,
	)
}

func (m uiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case eventMsg:
		m = m.handleEvent(controller.Event(msg))
		return m, waitForEvent(m.ctrl.Events())

	case eventsClosedMsg:
		return m, tea.Quit

	case previewTickMsg:
		m.swatch = m.sync.Tick()
		if m.state != session.StateConnected {
			m.swatch = preview.Idle
		}
		return m, previewTick(m.interval)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m uiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Scan):
		m = m.startScan()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Connect):
		if len(m.devices) == 0 {
			m = m.setStatus("No device selected", true)
			break
		}
		target := m.devices[m.cursor]
		m.ctrl.Connect(target)
		m = m.setStatus(fmt.Sprintf("Connecting to %s...", target.DisplayName()), false)

	case key.Matches(msg, m.keys.Disconnect):
		m.ctrl.Disconnect()

	case key.Matches(msg, m.keys.PowerOn):
		m.ctrl.SetPower(true)

	case key.Matches(msg, m.keys.PowerOff):
		m.ctrl.SetPower(false)

	case key.Matches(msg, m.keys.Brighter):
		m.ctrl.SetBrightness(clamp(m.settings.Brightness+brightnessStep, command.MinBrightness, command.MaxBrightness))

	case key.Matches(msg, m.keys.Dimmer):
		m.ctrl.SetBrightness(clamp(m.settings.Brightness-brightnessStep, command.MinBrightness, command.MaxBrightness))

	case key.Matches(msg, m.keys.Faster):
		m.ctrl.SetEffectSpeed(clamp(m.settings.EffectSpeed+speedStep, command.MinSpeed, command.MaxSpeed))

	case key.Matches(msg, m.keys.Slower):
		m.ctrl.SetEffectSpeed(clamp(m.settings.EffectSpeed-speedStep, command.MinSpeed, command.MaxSpeed))

	case key.Matches(msg, m.keys.Mode):
		m.selMode = nextMode(m.selMode)
		m.sync.SetMode(m.selMode.String())
		m.ctrl.SetMode(m.selMode.String())

	case key.Matches(msg, m.keys.Color):
		m.selColor = nextColor(m.selColor)
		m.sync.SetColor(m.selColor)
		m.ctrl.SetColor(m.selColor)
	}
	return m, nil
}

func (m uiModel) startScan() uiModel {
	m.scanID = m.ctrl.StartScan(m.scanOpts)
	m.scanning = true
	m.devices = nil
	m.cursor = 0
	return m.setStatus("Scanning...", false)
}

func (m uiModel) handleEvent(ev controller.Event) uiModel {
	switch ev.Type {
	case controller.EventScan:
		if ev.RequestID != m.scanID {
			// a superseded scan
			return m
		}
		return m.handleScan(ev.Scan)

	case controller.EventState:
		return m.handleState(ev.State)

	case controller.EventResult:
		return m.handleResult(ev)
	}
	return m
}

func (m uiModel) handleScan(ev scanner.Event) uiModel {
	switch ev.Type {
	case scanner.EventDiscovered:
		m.devices = append(m.devices, ev.Device)
	case scanner.EventUpdated:
		for i := range m.devices {
			if strings.EqualFold(m.devices[i].Address, ev.Device.Address) {
				m.devices[i] = ev.Device
				break
			}
		}
	case scanner.EventFinished:
		m.scanning = false
		switch ev.Status {
		case scanner.StatusNoDevices:
			m = m.setStatus("No Devices Found", false)
		case scanner.StatusFailed:
			m = m.setStatus("Scan failed: "+FormatUserError(ev.Err), true)
		case scanner.StatusCompleted:
			m = m.setStatus(fmt.Sprintf("Found %d device(s)", len(m.devices)), false)
		case scanner.StatusCancelled:
			m = m.setStatus("Scan cancelled", false)
		}
	}
	return m
}

func (m uiModel) handleState(change session.StateChange) uiModel {
	m.state = change.To

	switch change.To {
	case session.StateConnected:
		m.connected = change.Device
		m.power = change.Cached.Power
		m = m.setStatus("Connected to "+change.Device.DisplayName(), false)
	case session.StateIdle:
		if change.From == session.StateConnecting {
			// the connect result carries the reason
			break
		}
		m.connected = device.Descriptor{}
		m.power = session.PowerUnknown
		m.settings = m.ctrl.Settings()
		m = m.setStatus("Disconnected ("+change.Reason+")", change.Reason == "peripheral disconnected")
	}
	return m
}

func (m uiModel) handleResult(ev controller.Event) uiModel {
	if ev.Err != nil {
		switch ev.Intent {
		case controller.IntentConnect:
			return m.setStatus("Connection failed: "+FormatUserError(ev.Err), true)
		default:
			return m.setStatus(FormatUserError(ev.Err), true)
		}
	}
	if ev.Intent != controller.IntentSend {
		return m
	}

	m.settings = m.ctrl.Settings()
	cmd := ev.Command
	switch cmd.Kind() {
	case command.KindPowerOn:
		m.power = session.PowerOn
		m = m.setStatus("Power on", false)
	case command.KindPowerOff:
		m.power = session.PowerOff
		m = m.setStatus("Power off", false)
	case command.KindSetColor:
		m = m.setStatus("Color set to "+cmd.Color().Hex(), false)
	case command.KindSetBrightness:
		m = m.setStatus(fmt.Sprintf("Brightness set to %d", cmd.Value()), false)
	case command.KindSetMode:
		m = m.setStatus("Mode set to "+cmd.Mode().String(), false)
	case command.KindSetEffectSpeed:
		m = m.setStatus(fmt.Sprintf("Effect speed set to %d", cmd.Value()), false)
	}
	return m
}

func (m uiModel) setStatus(s string, isErr bool) uiModel {
	m.status = s
	m.statusErr = isErr
	return m
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(12)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func (m uiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lotus"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Width(42).Render(m.deviceList()),
		" ",
		panelStyle.Width(30).Render(m.fixturePanel()),
	))
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	b.WriteString("\n")
	return b.String()
}

func (m uiModel) statusLine() string {
	prefix := ""
	if m.scanning || m.state == session.StateConnecting {
		prefix = m.spinner.View() + " "
	}
	if m.statusErr {
		return prefix + errorStyle.Render(m.status)
	}
	return prefix + statusStyle.Render(m.status)
}

func (m uiModel) deviceList() string {
	var b strings.Builder
	b.WriteString("Devices\n")
	if len(m.devices) == 0 {
		b.WriteString(dimStyle.Render("(none)"))
		return b.String()
	}
	for i, d := range m.devices {
		line := fmt.Sprintf("%-20s %4d dBm", truncate(d.DisplayName(), 20), d.RSSI)
		connected := m.state == session.StateConnected && strings.EqualFold(d.Address, m.connected.Address)
		if connected {
			line += " ●"
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		if i < len(m.devices)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m uiModel) fixturePanel() string {
	sw := lipgloss.NewStyle().
		Background(lipgloss.Color(m.swatch.Hex())).
		Width(26).
		Height(2).
		Render("")

	rows := []string{
		sw,
		row("State", m.state.String()),
		row("Power", m.power.String()),
		row("Mode", m.sync.Mode()),
		row("Color", m.settings.Color.Hex()),
		row("Brightness", fmt.Sprintf("%d", m.settings.Brightness)),
		row("Speed", fmt.Sprintf("%d", m.settings.EffectSpeed)),
	}
	return strings.Join(rows, "\n")
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nextMode(current command.Mode) command.Mode {
	modes := command.Modes()
	for i, m := range modes {
		if m == current {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

func nextColor(current command.Color) command.Color {
	for i, c := range uiColors {
		if c == current {
			return uiColors[(i+1)%len(uiColors)]
		}
	}
	return uiColors[0]
}
