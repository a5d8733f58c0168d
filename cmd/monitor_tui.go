// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/gait/internal/device"
	"github.com/Thermoquad/gait/pkg/mission"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	refreshInterval = 250 * time.Millisecond
	commandTimeout  = 5 * time.Second
	maxLogEntries   = 100
)

// Focus states
const (
	focusDeviceList = iota
	focusNameInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line of the event log.
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// slotItem is a device in the list.
type slotItem struct {
	index int
	snap  device.Snapshot
}

func (s slotItem) Title() string {
	if s.snap.Name != "" {
		return fmt.Sprintf("[%d] %s", s.index, s.snap.Name)
	}
	return fmt.Sprintf("[%d] %s", s.index, s.snap.Label)
}

func (s slotItem) Description() string {
	if !s.snap.Connected {
		return "disconnected"
	}
	if s.snap.BatteryLevel != nil {
		return fmt.Sprintf("%s %d%%", s.snap.Type, *s.snap.BatteryLevel)
	}
	return s.snap.Type
}

func (s slotItem) FilterValue() string { return s.snap.Name }

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	ctx      context.Context
	connInfo string

	devices     []*device.Device
	snapshots   []device.Snapshot
	connectedAt map[int]time.Time
	progress    map[int]float64
	deviceList  list.Model

	eventLog []logEntry

	nameInput    textinput.Model
	focusedField int
	bar          progress.Model

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type devicesMsg struct {
	devices []*device.Device
}

type deviceEventMsg struct {
	index int
	event device.Event
}

type commandResultMsg struct {
	message string
	err     error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(ctx context.Context, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "new name"
	ti.CharLimit = mission.MaxNameLength
	ti.Width = mission.MaxNameLength

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return monitorModel{
		ctx:         ctx,
		connInfo:    connInfo,
		connectedAt: make(map[int]time.Time),
		progress:    make(map[int]float64),
		deviceList:  deviceList,
		eventLog:    make([]logEntry, 0),
		nameInput:   ti,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		width:       80,
		height:      24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.refresh()
		return m, monitorTickCmd()

	case devicesMsg:
		m.setDevices(msg.devices)
		m.addLogEntry(fmt.Sprintf("%d device(s)", len(msg.devices)), false)

	case deviceEventMsg:
		m.handleDeviceEvent(msg)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(msg.err.Error(), true)
		} else {
			m.addLogEntry(msg.message, false)
		}
		m.refresh()
	}

	var cmd tea.Cmd
	if m.focusedField == focusDeviceList {
		m.deviceList, cmd = m.deviceList.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		if m.focusedField == focusDeviceList && m.selectedDevice() != nil {
			m.focusedField = focusNameInput
			return m, m.nameInput.Focus()
		}
		m.focusedField = focusDeviceList
		m.nameInput.Blur()
		return m, nil

	case "enter":
		if m.focusedField == focusNameInput {
			return m.rename()
		}
	}

	if m.focusedField == focusNameInput {
		var cmd tea.Cmd
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "b":
		return m, m.queryBattery()
	}

	var cmd tea.Cmd
	m.deviceList, cmd = m.deviceList.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("GAIT MONITOR"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=rename b=battery", m.connInfo)))
	s.WriteString("\n\n")

	if len(m.devices) == 0 {
		s.WriteString(warningStyle.Render("Waiting for devices..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))
		return s.String()
	}

	leftWidth := 30
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusDeviceList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())
	statusPanel := boxStyle.Width(rightWidth).Render(m.renderStatusPanel(labelStyle, valueStyle, headerStyle, warningStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", statusPanel))
	s.WriteString("\n\n")

	if snap, ok := m.selectedSnapshot(); ok {
		s.WriteString(m.renderStatisticsBar(snap, labelStyle, valueStyle, boxStyle))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, boxStyle))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderStatusPanel(labelStyle, valueStyle, headerStyle, warningStyle lipgloss.Style) string {
	snap, ok := m.selectedSnapshot()
	if !ok {
		return headerStyle.Render("No device selected")
	}
	idx := m.deviceList.Index()

	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value)))
	}

	if !snap.Connected {
		s.WriteString(warningStyle.Render("RECONNECTING..."))
		s.WriteString("\n")
	}
	row("Type:", snap.Type)
	if snap.Name != "" {
		row("Name:", snap.Name)
	}
	row("Generation:", snap.Generation)
	if snap.BatteryLevel != nil {
		row("Battery:", fmt.Sprintf("%d%%", *snap.BatteryLevel))
	}
	if snap.FirmwareVersion != "" {
		row("Firmware:", snap.FirmwareVersion)
	}
	if at, ok := m.connectedAt[idx]; ok && snap.Connected {
		row("Connected:", formatUptime(time.Since(at)))
	}
	if c := snap.Calibration; c != nil {
		parts := make([]string, 0, len(c.Values))
		for i, v := range c.Values {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Names[i], v))
		}
		row("Calibration:", strings.Join(parts, " "))
	}

	q := snap.Motion.Euler
	row("Orientation:", fmt.Sprintf("(%.1f, %.1f, %.1f) deg", degrees(q.X), degrees(q.Y), degrees(q.Z)))
	a := snap.Motion.LinearAcceleration
	row("Linear accel:", fmt.Sprintf("(%.2f, %.2f, %.2f)", a.X, a.Y, a.Z))

	if p := snap.Pressure; p != nil {
		row("Mass:", fmt.Sprintf("%.3f", p.Mass))
		row("Center:", fmt.Sprintf("(%.3f, %.3f)", p.CenterOfMass.X, p.CenterOfMass.Y))
		row("Heel-to-toe:", fmt.Sprintf("%.3f", p.HeelToToe))
	}
	if snap.Weight != 0 {
		row("Weight:", fmt.Sprintf("%.2f", snap.Weight))
	}

	if snap.Transfer != device.TransferIdle.String() {
		s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(snap.Transfer+":"), m.bar.ViewAs(m.progress[idx])))
	}

	s.WriteString("\n")
	s.WriteString(labelStyle.Render("Rename: "))
	if m.focusedField == focusNameInput {
		s.WriteString(m.nameInput.View())
	} else {
		s.WriteString(headerStyle.Render("[Tab]"))
	}
	return s.String()
}

func (m monitorModel) renderStatisticsBar(snap device.Snapshot, labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	st := snap.Stats
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", st.Frames)),
		labelStyle.Render("Messages:"), valueStyle.Render(fmt.Sprintf("%d", st.Messages)),
		labelStyle.Render("Errors:"), func() string {
			if st.DecodeErrors > 0 {
				return errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors))
			}
			return valueStyle.Render("0")
		}(),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
	)
	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog[startIdx:] {
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) setDevices(devices []*device.Device) {
	m.devices = devices
	m.refresh()
}

// refresh reads fresh snapshots and rebuilds the list.
func (m *monitorModel) refresh() {
	m.snapshots = make([]device.Snapshot, 0, len(m.devices))
	items := make([]list.Item, len(m.devices))
	for i, d := range m.devices {
		snap := d.Snapshot()
		m.snapshots = append(m.snapshots, snap)
		items[i] = slotItem{index: i, snap: snap}
		if _, ok := m.connectedAt[i]; !ok && snap.Connected {
			m.connectedAt[i] = time.Now()
		}
	}
	m.deviceList.SetItems(items)
}

func (m *monitorModel) handleDeviceEvent(msg deviceEventMsg) {
	e := msg.event
	switch e.Kind {
	case device.EventConnected:
		m.connectedAt[msg.index] = time.Now()
	case device.EventDisconnected:
		delete(m.connectedAt, msg.index)
		delete(m.progress, msg.index)
	case device.EventFileTransferProgress, device.EventFirmwareUpdateProgress:
		m.progress[msg.index] = e.Progress
		return
	case device.EventFileTransferComplete, device.EventFirmwareUpdateComplete,
		device.EventFileTransferFailed, device.EventFirmwareUpdateFailed:
		delete(m.progress, msg.index)
	}

	isError := e.Kind == device.EventDecodeError || e.Err != nil
	m.addLogEntry(fmt.Sprintf("[%d] %s", msg.index, describeEvent(e)), isError)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m monitorModel) rename() (tea.Model, tea.Cmd) {
	d := m.selectedDevice()
	name := strings.TrimSpace(m.nameInput.Value())
	if d == nil || name == "" {
		return m, nil
	}
	m.nameInput.SetValue("")
	m.nameInput.Blur()
	m.focusedField = focusDeviceList

	ctx := m.ctx
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		got, err := d.SetName(ctx, name)
		if err != nil {
			return commandResultMsg{err: fmt.Errorf("rename failed: %w", err)}
		}
		return commandResultMsg{message: fmt.Sprintf("Renamed to %q", got)}
	}
}

func (m monitorModel) queryBattery() tea.Cmd {
	d := m.selectedDevice()
	if d == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		level, err := d.GetBatteryLevel(ctx)
		if err != nil {
			return commandResultMsg{err: fmt.Errorf("battery query failed: %w", err)}
		}
		return commandResultMsg{message: fmt.Sprintf("Battery %d%%", level)}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m monitorModel) selectedDevice() *device.Device {
	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.devices) {
		return nil
	}
	return m.devices[idx]
}

func (m monitorModel) selectedSnapshot() (device.Snapshot, bool) {
	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.snapshots) {
		return device.Snapshot{}, false
	}
	return m.snapshots[idx], true
}

func (m *monitorModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}
