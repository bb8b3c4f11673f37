package ui

import (
	"context"
	"fmt"
	"strings"

	"craftdeck/internal/config"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// maxConsoleBytes caps the scrollback kept by the console view.
const maxConsoleBytes = 256 << 10

type logModel struct {
	bridge    *eventBridge
	ec        *events.Client
	viewport  viewport.Model
	textInput textinput.Model
	err       error
	ready     bool
	serverID  string
	server    *sdk.Server
	content   strings.Builder
	quitting  bool
	back      bool
	client    *sdk.Client
	width     int
	height    int
}

type serverDetailsMsg *sdk.Server

func initialLogModel(id string, ec *events.Client, bridge *eventBridge, client *sdk.Client) *logModel {
	ti := textinput.New()
	ti.Placeholder = "Type a command..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 40

	return &logModel{
		bridge:    bridge,
		ec:        ec,
		textInput: ti,
		serverID:  id,
		client:    client,
	}
}

func (m *logModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.bridge.wait(),
		getServerDetails(m.client, m.serverID),
		tickCmd(),
	)
}

func getServerDetails(client *sdk.Client, id string) tea.Cmd {
	return func() tea.Msg {
		srv, err := client.GetServer(context.Background(), id)
		if err != nil {
			return errMsg(err)
		}
		return serverDetailsMsg(srv)
	}
}

// appendOutput keeps at most maxConsoleBytes of the newest output.
func (m *logModel) appendOutput(data string) {
	m.content.WriteString(data)
	if m.content.Len() > maxConsoleBytes {
		s := m.content.String()
		s = s[len(s)-maxConsoleBytes:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		m.content.Reset()
		m.content.WriteString(s)
	}
}

// send writes the line over the event stream, falling back to REST when the
// stream is down.
func (m *logModel) send(line string) tea.Cmd {
	if m.ec != nil && m.ec.Connected() {
		if err := m.ec.SendLine(m.serverID, line+"\n"); err == nil {
			return nil
		}
	}
	client, id := m.client, m.serverID
	return func() tea.Msg {
		if _, err := client.SendLine(context.Background(), id, line); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

func (m *logModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			m.back = true
			return m, tea.Quit
		case tea.KeyEnter:
			if line := m.textInput.Value(); line != "" {
				m.textInput.SetValue("")
				return m, m.send(line)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 12
		contentWidth := msg.Width - 6

		if !m.ready {
			m.viewport = viewport.New(contentWidth, msg.Height-headerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = msg.Height - headerHeight
		}
		m.viewport.SetContent(m.content.String())
		if m.ec != nil {
			_ = m.ec.SetTermSize(m.serverID, contentWidth, msg.Height-headerHeight)
		}

	case *events.ServerProcessReadEvent:
		m.appendOutput(msg.Data)
		if m.ready {
			m.viewport.SetContent(m.content.String())
			m.viewport.GotoBottom()
		}
		return m, m.bridge.wait()

	case *events.ServerChangeStateEvent:
		if m.server != nil {
			m.server.State = msg.NewState
		}
		return m, m.bridge.wait()

	case connectedMsg:
		return m, m.bridge.wait()

	case serverDetailsMsg:
		m.server = msg
		m.err = nil

	case errMsg:
		m.err = msg
		return m, nil

	case tickMsg:
		return m, tea.Batch(getServerDetails(m.client, m.serverID), tickCmd())
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *logModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	title := headerStyle.Width(m.width).Render("SERVER CONSOLE")

	serverInfoContent := "Loading server details..."
	if m.server != nil {
		statusColor := "160"
		if m.server.State.IsRunning() {
			statusColor = "42"
		} else if m.server.State == events.StateStarting {
			statusColor = "220"
		}
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(statusColor))

		serverInfoContent = fmt.Sprintf(
			"Server: %s %s  •  State: %s\nDirectory: %s",
			stateIcon(m.server.State),
			statusStyle.Render(m.server.DisplayName()),
			m.server.State,
			m.server.Directory,
		)
	}
	if m.bridge == nil {
		serverInfoContent += "\n" + errorStyle.Render("Event stream unavailable, console output is not shown")
	}
	if m.err != nil {
		serverInfoContent += "\n" + errorStyle.Render("Error: "+sdk.Message(m.err))
	}

	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(serverInfoContent)

	console := baseStyle.
		Width(m.width - 4).
		Render(m.viewport.View())

	inputLine := fmt.Sprintf("→ %s", m.textInput.View())

	helpText := lipgloss.NewStyle().
		Width(m.width - 6).
		Align(lipgloss.Center).
		Render(helpLine("enter", "send", "esc", "back", "ctrl+c", "quit"))

	footerBox := footerStyle.
		Width(m.width - 4).
		Align(lipgloss.Left).
		Render(lipgloss.JoinVertical(lipgloss.Left, inputLine, helpText))

	return lipgloss.JoinVertical(lipgloss.Center,
		title,
		headerBox,
		console,
		footerBox,
	)
}

// RunLogs attaches to a server console. It reports whether the user asked
// to go back rather than quit.
func RunLogs(client *sdk.Client, id string, p config.Profile) bool {
	s := openSession(client, p)
	defer s.Close()
	bridge := s.connect(s.bridge().console(id))
	defer bridge.Close()

	prog := tea.NewProgram(
		initialLogModel(id, s.ec, bridge, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	m, err := prog.Run()
	if err != nil {
		log.Error().Err(err).Msg("Error running console UI")
		return true
	}
	if lm, ok := m.(*logModel); ok {
		return lm.back
	}
	return false
}
