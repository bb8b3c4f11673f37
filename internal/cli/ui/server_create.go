package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"craftdeck/pkg/sdk"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

type WizardStep int

const (
	StepName WizardStep = iota
	StepLauncher
	StepLaunch
	StepHeap
	StepConfirm
)

const (
	launcherJava    = "Java launcher"
	launcherCommand = "Custom command"
)

type WizardModel struct {
	client       *sdk.Client
	step         WizardStep
	nameInput    textinput.Model
	launchInput  textinput.Model
	heapInput    textinput.Model
	launcherList list.Model
	launcher     string
	width        int
	height       int
	err          error
	creating     bool
	spinner      spinner.Model
}

type WizardDoneMsg struct {
	Server *sdk.Server
}
type WizardCancelMsg struct{}

type serverCreateResultMsg struct {
	server *sdk.Server
	err    error
}

func NewWizardModel(client *sdk.Client, width, height int) WizardModel {
	tiName := textinput.New()
	tiName.Placeholder = "My Awesome Server"
	tiName.Focus()
	tiName.CharLimit = 32
	tiName.Width = 30

	tiLaunch := textinput.New()
	tiLaunch.CharLimit = 256
	tiLaunch.Width = 50

	tiHeap := textinput.New()
	tiHeap.Placeholder = "2048"
	tiHeap.CharLimit = 6
	tiHeap.Width = 10

	l := list.New([]list.Item{item(launcherJava), item(launcherCommand)}, list.NewDefaultDelegate(), 30, 10)
	l.Title = "Select Launcher"
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return WizardModel{
		client:       client,
		step:         StepName,
		nameInput:    tiName,
		launchInput:  tiLaunch,
		heapInput:    tiHeap,
		launcherList: l,
		width:        width,
		height:       height,
		spinner:      s,
	}
}

func (m WizardModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// directoryFor derives a directory name from the display name.
func directoryFor(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "server"
	}
	return b.String()
}

func (m WizardModel) request() sdk.CreateServerRequest {
	req := sdk.CreateServerRequest{
		Name:      m.nameInput.Value(),
		Directory: directoryFor(m.nameInput.Value()),
		Type:      "custom",
	}
	if m.launcher == launcherCommand {
		req.EnableLaunchCommand = true
		req.LaunchCommand = m.launchInput.Value()
		return req
	}
	req.LaunchOption.JarFile = m.launchInput.Value()
	if heap, err := strconv.Atoi(m.heapInput.Value()); err == nil && heap > 0 {
		req.LaunchOption.MaxHeapMemory = &heap
	}
	return req
}

func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.launcherList.SetSize(msg.Width-8, msg.Height-14)
		return m, nil
	case serverCreateResultMsg:
		m.creating = false
		if msg.err != nil {
			m.err = errors.New(sdk.Message(msg.err))
			return m, nil
		}
		srv := msg.server
		return m, func() tea.Msg { return WizardDoneMsg{Server: srv} }
	}

	if m.creating {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			if m.step > StepName {
				m.step = m.previous()
				m.err = nil
				return m, nil
			}
			return m, func() tea.Msg { return WizardCancelMsg{} }
		case "ctrl+c":
			return m, tea.Quit
		}
	}

	switch m.step {
	case StepName:
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
			if strings.TrimSpace(m.nameInput.Value()) == "" {
				m.err = errors.New("name cannot be empty")
				return m, nil
			}
			m.err = nil
			m.step = StepLauncher
			return m, nil
		}
		m.nameInput, cmd = m.nameInput.Update(msg)
		return m, cmd

	case StepLauncher:
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
			if i, ok := m.launcherList.SelectedItem().(item); ok {
				m.launcher = string(i)
				m.launchInput.SetValue("")
				if m.launcher == launcherJava {
					m.launchInput.Placeholder = "server.jar"
				} else {
					m.launchInput.Placeholder = "./start.sh"
				}
				m.launchInput.Focus()
				m.step = StepLaunch
				return m, textinput.Blink
			}
		}
		m.launcherList, cmd = m.launcherList.Update(msg)
		return m, cmd

	case StepLaunch:
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
			if m.launchInput.Value() == "" && m.launcher == launcherJava {
				m.launchInput.SetValue("server.jar")
			}
			if m.launchInput.Value() == "" {
				m.err = errors.New("launch command cannot be empty")
				return m, nil
			}
			m.err = nil
			if m.launcher == launcherCommand {
				m.step = StepConfirm
				return m, nil
			}
			m.heapInput.Focus()
			m.step = StepHeap
			return m, textinput.Blink
		}
		m.launchInput, cmd = m.launchInput.Update(msg)
		return m, cmd

	case StepHeap:
		if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
			if v := m.heapInput.Value(); v != "" {
				if heap, err := strconv.Atoi(v); err != nil || heap <= 0 {
					m.err = errors.New("invalid heap size")
					return m, nil
				}
			}
			m.err = nil
			m.step = StepConfirm
			return m, nil
		}
		m.heapInput, cmd = m.heapInput.Update(msg)
		return m, cmd

	case StepConfirm:
		if key, ok := msg.(tea.KeyMsg); ok {
			switch {
			case key.String() == "y" || key.Type == tea.KeyEnter:
				m.creating = true
				m.err = nil
				return m, tea.Batch(m.spinner.Tick, createServerCmd(m.client, m.request()))
			case key.String() == "n":
				return m, func() tea.Msg { return WizardCancelMsg{} }
			}
		}
	}

	return m, nil
}

func (m WizardModel) previous() WizardStep {
	if m.step == StepConfirm && m.launcher == launcherCommand {
		return StepLaunch
	}
	return m.step - 1
}

func createServerCmd(client *sdk.Client, req sdk.CreateServerRequest) tea.Cmd {
	return func() tea.Msg {
		srv, err := client.CreateServer(context.Background(), req)
		return serverCreateResultMsg{server: srv, err: err}
	}
}

func (m WizardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := headerStyle.Width(m.width).Render("CREATE NEW SERVER")

	stepTitle := ""
	content := ""

	if m.err != nil {
		content += errorStyle.Render(fmt.Sprintf("Error: %v\n\n", m.err))
	}

	switch m.step {
	case StepName:
		stepTitle = "Enter Server Name"
		content += fmt.Sprintf("\n%s", m.nameInput.View())
	case StepLauncher:
		stepTitle = "Select Launcher"
		content += "\n" + m.launcherList.View()
	case StepLaunch:
		stepTitle = "Enter Jar File"
		if m.launcher == launcherCommand {
			stepTitle = "Enter Launch Command"
		}
		content += fmt.Sprintf("\n%s", m.launchInput.View())
	case StepHeap:
		stepTitle = "Enter Max Heap (MB, blank for default)"
		content += fmt.Sprintf("\n%s", m.heapInput.View())
	case StepConfirm:
		stepTitle = "Confirm Creation"
		req := m.request()
		launch := req.LaunchCommand
		if !req.EnableLaunchCommand {
			launch = "java -jar " + req.LaunchOption.JarFile
			if req.LaunchOption.MaxHeapMemory != nil {
				launch += fmt.Sprintf(" (heap %d MB)", *req.LaunchOption.MaxHeapMemory)
			}
		}
		content += fmt.Sprintf("\nName: %s\nDirectory: %s\nLaunch: %s\n\n(y/n)", req.Name, req.Directory, launch)
	}

	if m.creating {
		content = fmt.Sprintf("\n\n%s Creating server '%s'...\n", m.spinner.View(), m.nameInput.Value())
	}

	headerBox := baseStyle.
		Width(m.width - 4).
		Align(lipgloss.Center).
		Padding(1).
		Render(titleStyle.Render(stepTitle))

	mainContainer := baseStyle.
		Width(m.width - 4).
		Height(m.height - 12).
		Align(lipgloss.Center).
		Render(content)

	footerBox := footerStyle.
		Width(m.width - 4).
		Render(helpLine("esc", "back/cancel", "enter", "next"))

	return lipgloss.JoinVertical(lipgloss.Center,
		title,
		headerBox,
		mainContainer,
		footerBox,
	)
}

type item string

func (i item) FilterValue() string { return string(i) }
func (i item) Title() string       { return string(i) }
func (i item) Description() string { return "" }
