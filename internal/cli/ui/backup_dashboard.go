package ui

import (
	"context"
	"fmt"
	"os"
	"sort"

	"craftdeck/internal/config"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type BackupDashboardMode int

const (
	BackupViewList BackupDashboardMode = iota
	BackupViewCreate
	BackupViewRestoreConfirm
	BackupViewDeleteConfirm
)

type BackupDashboardModel struct {
	client   *sdk.Client
	waiter   *sdk.TaskWaiter
	serverID string
	mode     BackupDashboardMode
	list     list.Model
	comments textinput.Model
	spinner  spinner.Model
	backups  []sdk.Backup
	target   *sdk.Backup
	working  bool
	width    int
	height   int
	err      error
	message  string

	isLoading bool
	back      bool
}

type backupListItem struct {
	backup sdk.Backup
}

func (i backupListItem) FilterValue() string { return i.backup.ID }
func (i backupListItem) Title() string {
	return fmt.Sprintf("📦 %s", i.backup.Created.Local().Format("2006-01-02 15:04:05"))
}
func (i backupListItem) Description() string {
	size := i.backup.TotalFilesSize
	if i.backup.FinalSize != nil {
		size = *i.backup.FinalSize
	}
	desc := fmt.Sprintf("%s  •  %d files", FormatBytes(size), i.backup.TotalFiles)
	if i.backup.Comments != nil && *i.backup.Comments != "" {
		desc += "  •  " + *i.backup.Comments
	}
	return desc
}

type backupDataMsg []sdk.Backup
type backupTaskDoneMsg struct {
	message string
	err     error
}

func newBackupDashboard(client *sdk.Client, serverID string, waiter *sdk.TaskWaiter) BackupDashboardModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Backups"
	l.SetShowStatusBar(false)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	l.Styles.HelpStyle = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)

	ti := textinput.New()
	ti.Placeholder = "Comments (optional)"
	ti.CharLimit = 128
	ti.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return BackupDashboardModel{
		client:    client,
		waiter:    waiter,
		serverID:  serverID,
		mode:      BackupViewList,
		list:      l,
		comments:  ti,
		spinner:   s,
		isLoading: true,
	}
}

// RunBackups manages one server's backups. It reports whether the user
// asked to go back rather than quit.
func RunBackups(client *sdk.Client, serverID string, p config.Profile) bool {
	s := openSession(client, p)
	defer s.Close()
	s.connect(nil)

	prog := tea.NewProgram(newBackupDashboard(client, serverID, s.waiter), tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	m, err := prog.Run()
	if err != nil {
		fmt.Printf("Error running backup dashboard: %v", err)
		return true
	}
	if bm, ok := m.(BackupDashboardModel); ok {
		return bm.back
	}
	return false
}

func (m BackupDashboardModel) Init() tea.Cmd {
	return tea.Batch(fetchBackups(m.client, m.serverID), m.spinner.Tick)
}

func fetchBackups(client *sdk.Client, serverID string) tea.Cmd {
	return func() tea.Msg {
		backups, err := client.ListServerBackups(context.Background(), serverID)
		if err != nil {
			return errMsg(err)
		}
		return backupDataMsg(backups)
	}
}

// backupTaskCmd starts a backup task and waits for it to end.
func backupTaskCmd(waiter *sdk.TaskWaiter, done string, start func(context.Context) (*sdk.BackupTask, error)) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		task, err := start(ctx)
		if err != nil {
			return backupTaskDoneMsg{err: err}
		}
		ev, err := waiter.Wait(ctx, task.ID)
		if err != nil {
			return backupTaskDoneMsg{err: err}
		}
		switch ev.Result {
		case events.ResultFailed:
			return backupTaskDoneMsg{message: "Backup task failed"}
		case events.ResultSuccess:
			return backupTaskDoneMsg{message: done}
		}
		return backupTaskDoneMsg{message: "Backup task ended, outcome unknown"}
	}
}

func (m BackupDashboardModel) selected() *sdk.Backup {
	if it, ok := m.list.SelectedItem().(backupListItem); ok {
		b := it.backup
		return &b
	}
	return nil
}

func (m BackupDashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.working {
			return m, nil
		}
		switch m.mode {
		case BackupViewCreate:
			return m.updateCreate(msg)
		case BackupViewRestoreConfirm, BackupViewDeleteConfirm:
			return m.updateConfirm(msg)
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc":
			m.back = true
			return m, tea.Quit
		case "c":
			m.mode = BackupViewCreate
			m.comments.SetValue("")
			m.comments.Focus()
			return m, textinput.Blink
		case "r", "d":
			b := m.selected()
			if b == nil {
				return m, nil
			}
			m.target = b
			m.mode = BackupViewDeleteConfirm
			if msg.String() == "r" {
				m.mode = BackupViewRestoreConfirm
			}
			return m, nil
		case "g":
			return m, fetchBackups(m.client, m.serverID)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetWidth(msg.Width - 4)
		m.list.SetHeight(msg.Height - 12)
		return m, nil
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case backupDataMsg:
		m.isLoading = false
		m.err = nil
		sorted := append([]sdk.Backup(nil), msg...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Created.After(sorted[j].Created) })
		items := make([]list.Item, 0, len(sorted))
		for _, b := range sorted {
			items = append(items, backupListItem{backup: b})
		}
		m.list.SetItems(items)
		m.backups = sorted
		return m, nil
	case backupTaskDoneMsg:
		m.working = false
		m.message = msg.message
		if msg.err != nil {
			m.message = "Error: " + sdk.Message(msg.err)
		}
		return m, tea.Batch(fetchBackups(m.client, m.serverID), clearMessageCmd())
	case clearMessageMsg:
		m.message = ""
		return m, nil
	case errMsg:
		m.isLoading = false
		m.err = msg
		return m, nil
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m BackupDashboardModel) updateCreate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = BackupViewList
		m.comments.Blur()
		return m, nil
	case tea.KeyEnter:
		m.mode = BackupViewList
		m.comments.Blur()
		m.working = true
		m.message = "Creating backup..."
		client, id, comments := m.client, m.serverID, m.comments.Value()
		return m, backupTaskCmd(m.waiter, "Backup created successfully", func(ctx context.Context) (*sdk.BackupTask, error) {
			return client.CreateBackup(ctx, id, comments, false)
		})
	}
	var cmd tea.Cmd
	m.comments, cmd = m.comments.Update(msg)
	return m, cmd
}

func (m BackupDashboardModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := m.mode
	m.mode = BackupViewList
	if msg.String() != "y" || m.target == nil {
		return m, nil
	}
	client, serverID, b := m.client, m.serverID, *m.target
	if mode == BackupViewDeleteConfirm {
		return m, func() tea.Msg {
			err := client.RemoveBackup(context.Background(), b.ID)
			return backupTaskDoneMsg{message: "Backup deleted", err: err}
		}
	}
	m.working = true
	m.message = "Restoring backup..."
	return m, backupTaskCmd(m.waiter, "Backup restored successfully", func(ctx context.Context) (*sdk.BackupTask, error) {
		return client.RestoreBackup(ctx, serverID, b.ID)
	})
}

func (m BackupDashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := headerStyle.Width(m.width).Render("BACKUPS • " + m.serverID)

	body := m.list.View()
	switch {
	case m.isLoading:
		body = "Loading backups..."
	case m.mode == BackupViewCreate:
		body = titleStyle.Render("New Backup") + "\n\n" + m.comments.View()
	case m.mode == BackupViewRestoreConfirm:
		body = fmt.Sprintf("Restore the backup from %s?\nThe server's files will be replaced. (y/n)",
			m.target.Created.Local().Format("2006-01-02 15:04:05"))
	case m.mode == BackupViewDeleteConfirm:
		body = fmt.Sprintf("Delete the backup from %s? (y/n)", m.target.Created.Local().Format("2006-01-02 15:04:05"))
	}
	if m.err != nil {
		body = errorStyle.Render("Error: "+sdk.Message(m.err)) + "\n\n" + body
	}

	main := baseStyle.
		Width(m.width - 4).
		Height(m.height - 8).
		Render(body)

	status := ""
	if m.working {
		status = m.spinner.View() + " "
	}
	if m.message != "" {
		status += messageStyle.Render(m.message)
	}

	footer := footerStyle.
		Width(m.width - 4).
		Render(helpLine("c", "create", "r", "restore", "d", "delete", "g", "refresh", "esc", "back", "q", "quit"))

	return lipgloss.JoinVertical(lipgloss.Center, title, main, status, footer)
}
