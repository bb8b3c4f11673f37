package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"craftdeck/internal/config"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type View int

const (
	ViewNone View = iota
	ViewConsole
	ViewFiles
	ViewBackups
)

// Navigation is what the dashboard asks its caller to show next.
type Navigation struct {
	View     View
	ServerID string
}

type model struct {
	client    *sdk.Client
	bridge    *eventBridge
	table     table.Model
	servers   []sdk.Server
	perf      *events.PerformanceProgress
	connected bool
	err       error
	width     int
	height    int
	isLoading bool
	message   string

	confirmDelete string
	wizard        *WizardModel
	nav           Navigation
}

type serverDataMsg []sdk.Server
type actionDoneMsg struct {
	message string
	err     error
}
type clearMessageMsg struct{}
type errMsg error

func newDashboardModel(client *sdk.Client, bridge *eventBridge) model {
	columns := []table.Column{
		{Title: "Sts", Width: 3},
		{Title: "Name", Width: 20},
		{Title: "State", Width: 9},
		{Title: "Type", Width: 10},
		{Title: "CPU", Width: 8},
		{Title: "RAM", Width: 15},
		{Title: "Directory", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return model{
		client:    client,
		bridge:    bridge,
		table:     t,
		connected: bridge != nil,
		isLoading: true,
	}
}

func RunDashboard(client *sdk.Client, p config.Profile) Navigation {
	s := openSession(client, p)
	defer s.Close()
	bridge := s.connect(s.bridge().servers())
	defer bridge.Close()

	program := tea.NewProgram(newDashboardModel(client, bridge), tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running dashboard: %v", err)
		os.Exit(1)
	}
	if m, ok := finalModel.(model); ok {
		return m.nav
	}
	return Navigation{}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		fetchDataCmd(m.client),
		tickCmd(),
		m.bridge.wait(),
	)
}

func (m model) selected() *sdk.Server {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.servers) {
		return nil
	}
	return &m.servers[i]
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.wizard != nil {
		switch msg := msg.(type) {
		case WizardDoneMsg:
			m.wizard = nil
			m.message = fmt.Sprintf("Server %s created", msg.Server.DisplayName())
			return m, tea.Batch(fetchDataCmd(m.client), clearMessageCmd())
		case WizardCancelMsg:
			m.wizard = nil
			return m, nil
		case *events.ServerChangeStateEvent, *events.PerformanceProgress, connectedMsg,
			serverDataMsg, tickMsg, actionDoneMsg, clearMessageMsg, errMsg:
			// the table keeps tracking servers while the wizard is open
		default:
			if ws, ok := msg.(tea.WindowSizeMsg); ok {
				m.width, m.height = ws.Width, ws.Height
				m.table.SetWidth(ws.Width - 10)
				m.table.SetHeight(ws.Height - 12)
			}
			w, cmd := m.wizard.Update(msg)
			if wm, ok := w.(WizardModel); ok {
				m.wizard = &wm
			}
			return m, cmd
		}
	}

	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmDelete != "" {
			id := m.confirmDelete
			m.confirmDelete = ""
			if msg.String() == "y" {
				m.message = "Deleting server..."
				return m, removeServerCmd(m.client, id)
			}
			m.message = ""
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "n":
			w := NewWizardModel(m.client, m.width, m.height)
			m.wizard = &w
			return m, w.Init()
		case "s", "x", "r", "k", "D", "enter", "f", "b":
			srv := m.selected()
			if srv == nil {
				return m, nil
			}
			return m.serverKey(msg.String(), *srv)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 10)
		m.table.SetHeight(msg.Height - 12)
	case serverDataMsg:
		m.isLoading = false
		m.err = nil
		m.servers = msg
		m.updateTable()
		return m, nil
	case *events.ServerChangeStateEvent:
		for i := range m.servers {
			if m.servers[i].ID == msg.ServerID {
				m.servers[i].State = msg.NewState
			}
		}
		m.updateTable()
		return m, m.bridge.wait()
	case *events.PerformanceProgress:
		m.perf = msg
		m.updateTable()
		return m, m.bridge.wait()
	case connectedMsg:
		m.connected = bool(msg)
		if m.connected {
			return m, tea.Batch(fetchDataCmd(m.client), m.bridge.wait())
		}
		return m, m.bridge.wait()
	case actionDoneMsg:
		m.message = msg.message
		if msg.err != nil {
			m.message = "Error: " + sdk.Message(msg.err)
		}
		return m, tea.Batch(fetchDataCmd(m.client), clearMessageCmd())
	case clearMessageMsg:
		m.message = ""
		return m, nil
	case tickMsg:
		return m, tea.Batch(fetchDataCmd(m.client), tickCmd())
	case errMsg:
		m.err = msg
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) serverKey(key string, srv sdk.Server) (tea.Model, tea.Cmd) {
	running := srv.State.IsRunning() || srv.State == events.StateStarting
	switch key {
	case "s":
		if running {
			m.message = fmt.Sprintf("Server %s is already %s", srv.DisplayName(), srv.State)
			return m, clearMessageCmd()
		}
		m.message = fmt.Sprintf("Starting server %s...", srv.DisplayName())
		return m, serverActionCmd(m.client.StartServer, srv.ID, "Start command sent")
	case "x":
		if !running {
			m.message = fmt.Sprintf("Server %s is not running (State: %s)", srv.DisplayName(), srv.State)
			return m, clearMessageCmd()
		}
		m.message = fmt.Sprintf("Stopping server %s...", srv.DisplayName())
		return m, serverActionCmd(m.client.StopServer, srv.ID, "Stop command sent")
	case "r":
		m.message = fmt.Sprintf("Restarting server %s...", srv.DisplayName())
		return m, serverActionCmd(m.client.RestartServer, srv.ID, "Restart command sent")
	case "k":
		m.message = fmt.Sprintf("Killing server %s...", srv.DisplayName())
		return m, serverActionCmd(m.client.KillServer, srv.ID, "Server killed")
	case "D":
		if srv.State != events.StateStopped {
			m.message = "Stop the server before deleting it"
			return m, clearMessageCmd()
		}
		m.confirmDelete = srv.ID
		m.message = fmt.Sprintf("Delete %s? (y/n)", srv.DisplayName())
		return m, nil
	case "enter":
		m.nav = Navigation{View: ViewConsole, ServerID: srv.ID}
	case "f":
		m.nav = Navigation{View: ViewFiles, ServerID: srv.ID}
	case "b":
		m.nav = Navigation{View: ViewBackups, ServerID: srv.ID}
	}
	return m, tea.Quit
}

func stateIcon(state events.ServerState) string {
	switch state {
	case events.StateRunning, events.StateStarted:
		return "🟢"
	case events.StateStarting:
		return "🟡"
	case events.StateStopping:
		return "🟠"
	case events.StateBuild:
		return "🔵"
	}
	return "🔴"
}

func (m *model) updateTable() {
	rows := []table.Row{}
	for _, s := range m.servers {
		cpu := "-"
		ram := "-"
		if m.perf != nil && s.State.IsRunning() {
			if p := m.perf.Server(s.ID); p != nil && p.JVM != nil {
				cpu = fmt.Sprintf("%.1f%%", p.JVM.CPUUsage)
				ram = fmt.Sprintf("%s / %s", formatBytesShort(p.JVM.MemUsed), formatBytesShort(p.JVM.MemTotal))
			}
		}

		rows = append(rows, table.Row{
			stateIcon(s.State),
			s.DisplayName(),
			string(s.State),
			s.Type,
			cpu,
			ram,
			s.Directory,
		})
	}
	m.table.SetRows(rows)
}

func (m model) View() string {
	if m.wizard != nil {
		return m.wizard.View()
	}
	if m.width == 0 {
		return "Loading..."
	}

	title := headerStyle.Render("CRAFTDECK")
	clock := subHeaderStyle.Render(time.Now().Format("Mon Jan 2 15:04:05"))

	link := "live"
	if !m.connected {
		link = "polling"
	}
	hostInfo := fmt.Sprintf("Backend: %s (%s)  |  Servers: %d", m.client.BaseURL(), link, len(m.servers))
	if m.perf != nil {
		sys := m.perf.System
		hostInfo += fmt.Sprintf("  |  CPU %.1f%% x%d  |  RAM %s / %s", sys.CPUUsage, sys.CPUCount,
			formatBytesShort(sys.MemTotal-sys.MemAvailable), formatBytesShort(sys.MemTotal))
	}
	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, clock, " ", hostInfo))

	body := m.table.View()
	if m.isLoading {
		body = "Loading servers..."
	}
	if m.err != nil {
		body = errorStyle.Render("Error: "+sdk.Message(m.err)) + "\n\n" + body
	}
	tableContainer := baseStyle.
		Width(m.width - 4).
		Height(m.height - 12).
		Render(body)

	footerText := lipgloss.NewStyle().
		MarginLeft(2).
		Render(helpLine("s", "start", "x", "stop", "r", "restart", "k", "kill", "enter", "console",
			"f", "files", "b", "backups", "n", "new", "D", "delete", "q", "quit"))

	if m.message != "" {
		footerText = fmt.Sprintf("%s\n%s", messageStyle.Render(m.message), footerText)
	}

	return lipgloss.JoinVertical(lipgloss.Center,
		headerBox,
		tableContainer,
		footerText,
	)
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func clearMessageCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearMessageMsg{}
	})
}

func fetchDataCmd(client *sdk.Client) tea.Cmd {
	return func() tea.Msg {
		servers, err := client.ListServers(context.Background())
		if err != nil {
			return errMsg(err)
		}
		return serverDataMsg(servers)
	}
}

func serverActionCmd(call func(context.Context, string) (bool, error), id, done string) tea.Cmd {
	return func() tea.Msg {
		ok, err := call(context.Background(), id)
		if err == nil && !ok {
			done = "The backend refused the request"
		}
		return actionDoneMsg{message: done, err: err}
	}
}

func removeServerCmd(client *sdk.Client, id string) tea.Cmd {
	return func() tea.Msg {
		_, err := client.RemoveServer(context.Background(), id, false)
		return actionDoneMsg{message: "Server deleted", err: err}
	}
}
