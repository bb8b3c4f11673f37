package ui

import (
	"context"
	"fmt"
	"os"
	"path"
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

type filesMode int

const (
	filesBrowse filesMode = iota
	filesRename
	filesMkdir
	filesConfirmDelete
)

type entryItem struct {
	entry sdk.Entry
}

func (i entryItem) FilterValue() string { return i.entry.Meta().Name }
func (i entryItem) Title() string {
	if _, ok := i.entry.(*sdk.Directory); ok {
		return "📁 " + i.entry.Meta().Name + "/"
	}
	return "📄 " + i.entry.Meta().Name
}
func (i entryItem) Description() string {
	n := i.entry.Meta()
	modified := "-"
	if n.ModifiedAt != nil {
		modified = n.ModifiedAt.Local().Format("2006-01-02 15:04")
	}
	if f, ok := i.entry.(*sdk.File); ok {
		return fmt.Sprintf("%s  •  %s  •  %s", FormatBytes(f.Size), f.Type, modified)
	}
	return modified
}

type filesModel struct {
	client   *sdk.Client
	fm       *sdk.FileManager
	waiter   *sdk.TaskWaiter
	bridge   *eventBridge
	serverID string
	cwd      string

	list    list.Model
	input   textinput.Model
	spinner spinner.Model
	mode    filesMode
	target  sdk.Entry

	// running holds tasks of this server announced on the event stream.
	running map[int]string
	busy    int

	message string
	err     error
	width   int
	height  int
	back    bool
}

type dirMsg struct {
	dir      string
	children sdk.FileList
}
type opDoneMsg struct {
	message string
	err     error
}

func newFilesModel(client *sdk.Client, serverID string, waiter *sdk.TaskWaiter, bridge *eventBridge) filesModel {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "/"
	l.SetShowStatusBar(false)
	l.Styles.Title = titleStyle

	ti := textinput.New()
	ti.CharLimit = 128
	ti.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return filesModel{
		client:   client,
		fm:       client.Files(),
		waiter:   waiter,
		bridge:   bridge,
		serverID: serverID,
		cwd:      "/",
		list:     l,
		input:    ti,
		spinner:  s,
		running:  map[int]string{},
	}
}

// RunFiles browses one server's files. It reports whether the user asked to
// go back rather than quit.
func RunFiles(client *sdk.Client, serverID string, p config.Profile) bool {
	s := openSession(client, p)
	defer s.Close()
	bridge := s.connect(s.bridge().tasks(serverID))
	defer bridge.Close()

	prog := tea.NewProgram(newFilesModel(client, serverID, s.waiter, bridge), tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	m, err := prog.Run()
	if err != nil {
		fmt.Printf("Error running file browser: %v", err)
		return true
	}
	if fm, ok := m.(filesModel); ok {
		return fm.back
	}
	return false
}

func (m filesModel) Init() tea.Cmd {
	return tea.Batch(m.load(m.cwd), m.bridge.wait(), m.spinner.Tick)
}

func (m filesModel) load(dir string) tea.Cmd {
	fm, id := m.fm, m.serverID
	return func() tea.Msg {
		ctx := context.Background()
		d, err := fm.Get(ctx, id, dir)
		if err != nil {
			return errMsg(err)
		}
		children, err := d.Children(ctx)
		if err != nil {
			return errMsg(err)
		}
		return dirMsg{dir: d.Path(), children: children}
	}
}

// sortEntries lists directories first, then by name.
func sortEntries(children sdk.FileList) []list.Item {
	sorted := make(sdk.FileList, len(children))
	copy(sorted, children)
	sort.SliceStable(sorted, func(i, j int) bool {
		_, di := sorted[i].(*sdk.Directory)
		_, dj := sorted[j].(*sdk.Directory)
		if di != dj {
			return di
		}
		return sorted[i].Meta().Name < sorted[j].Meta().Name
	})
	items := make([]list.Item, 0, len(sorted))
	for _, e := range sorted {
		items = append(items, entryItem{entry: e})
	}
	return items
}

// run performs op and, when it starts a task, waits for the task to end.
func (m filesModel) run(done string, op func(ctx context.Context) (*sdk.FileOperationResult, error)) tea.Cmd {
	waiter := m.waiter
	return func() tea.Msg {
		ctx := context.Background()
		res, err := op(ctx)
		if err != nil {
			return opDoneMsg{err: err}
		}
		result := res.Result
		if res.Pending() {
			if result, err = waiter.Await(ctx, res); err != nil {
				return opDoneMsg{err: err}
			}
		}
		switch result {
		case events.ResultFailed:
			return opDoneMsg{message: "Operation failed"}
		case events.ResultSuccess:
			return opDoneMsg{message: done}
		}
		return opDoneMsg{message: "Operation ended, outcome unknown"}
	}
}

func (m filesModel) selected() sdk.Entry {
	if it, ok := m.list.SelectedItem().(entryItem); ok {
		return it.entry
	}
	return nil
}

func (m filesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-10)
		return m, nil
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case dirMsg:
		m.cwd = msg.dir
		m.err = nil
		m.list.Title = msg.dir
		m.list.SetItems(sortEntries(msg.children))
		return m, nil
	case opDoneMsg:
		m.busy--
		m.message = msg.message
		if msg.err != nil {
			m.message = "Error: " + sdk.Message(msg.err)
		}
		return m, tea.Batch(m.load(m.cwd), clearMessageCmd())
	case *events.FileTaskEvent:
		if msg.End {
			delete(m.running, msg.TaskID)
		} else {
			m.running[msg.TaskID] = fmt.Sprintf("%s %s", msg.Type, path.Base(msg.Src))
		}
		return m, m.bridge.wait()
	case connectedMsg:
		return m, m.bridge.wait()
	case clearMessageMsg:
		m.message = ""
		return m, nil
	case errMsg:
		m.err = msg
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case filesRename, filesMkdir:
			return m.updateInput(msg)
		case filesConfirmDelete:
			m.mode = filesBrowse
			if msg.String() != "y" {
				m.message = ""
				return m, nil
			}
			target := m.target
			m.busy++
			m.message = "Removing " + target.Meta().Name + "..."
			return m, m.run("Removed "+target.Meta().Name, func(ctx context.Context) (*sdk.FileOperationResult, error) {
				return target.Meta().Remove(ctx)
			})
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		if next, cmd, ok := m.browseKey(msg.String()); ok {
			return next, cmd
		}
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m filesModel) browseKey(key string) (tea.Model, tea.Cmd, bool) {
	switch key {
	case "esc":
		m.back = true
		return m, tea.Quit, true
	case "q":
		return m, tea.Quit, true
	case "backspace", "h":
		if m.cwd == "/" {
			return m, nil, true
		}
		return m, m.load(path.Dir(m.cwd)), true
	case "g":
		return m, m.load(m.cwd), true
	case "m":
		m.mode = filesMkdir
		m.input.SetValue("")
		m.input.Placeholder = "new-folder"
		m.input.Focus()
		return m, textinput.Blink, true
	}

	e := m.selected()
	if e == nil {
		return m, nil, false
	}
	name := e.Meta().Name
	switch key {
	case "enter", "l":
		if _, ok := e.(*sdk.Directory); ok {
			return m, m.load(e.Meta().Path()), true
		}
	case "d":
		m.mode = filesConfirmDelete
		m.target = e
		m.message = fmt.Sprintf("Delete %s? (y/n)", name)
		return m, nil, true
	case "r":
		m.mode = filesRename
		m.target = e
		m.input.SetValue(name)
		m.input.Focus()
		return m, textinput.Blink, true
	case "c":
		m.busy++
		m.message = "Copying " + name + "..."
		dir := m.cwd
		return m, m.run("Copied "+name, func(ctx context.Context) (*sdk.FileOperationResult, error) {
			return e.Meta().Copy(ctx, dir)
		}), true
	case "x":
		f, ok := e.(*sdk.File)
		if !ok || f.Type != sdk.FileTypeArchive {
			m.message = name + " is not an archive"
			return m, clearMessageCmd(), true
		}
		m.busy++
		m.message = "Extracting " + name + "..."
		dir := m.cwd
		return m, m.run("Extracted "+name, func(ctx context.Context) (*sdk.FileOperationResult, error) {
			return f.Extract(ctx, dir, "")
		}), true
	}
	return m, nil, false
}

func (m filesModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = filesBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := m.input.Value()
		mode := m.mode
		m.mode = filesBrowse
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		m.busy++
		if mode == filesRename {
			target := m.target
			m.message = "Renaming..."
			return m, m.run("Renamed to "+value, func(ctx context.Context) (*sdk.FileOperationResult, error) {
				return target.Meta().Rename(ctx, value)
			})
		}
		fm, id, cwd := m.fm, m.serverID, m.cwd
		m.message = "Creating " + value + "..."
		return m, m.run("Created "+value, func(ctx context.Context) (*sdk.FileOperationResult, error) {
			d, err := fm.Get(ctx, id, cwd)
			if err != nil {
				return nil, err
			}
			return d.Mkdir(ctx, value)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m filesModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := headerStyle.Width(m.width).Render("FILES • " + m.serverID)

	body := m.list.View()
	switch m.mode {
	case filesRename:
		body = titleStyle.Render("Rename "+m.target.Meta().Name) + "\n\n" + m.input.View()
	case filesMkdir:
		body = titleStyle.Render("New folder in "+m.cwd) + "\n\n" + m.input.View()
	}
	if m.err != nil {
		body = errorStyle.Render("Error: "+sdk.Message(m.err)) + "\n\n" + body
	}
	main := baseStyle.
		Width(m.width - 4).
		Height(m.height - 8).
		Render(body)

	status := ""
	if m.busy > 0 || len(m.running) > 0 {
		status = fmt.Sprintf("%s %d task(s) running", m.spinner.View(), max(m.busy, len(m.running)))
	}
	if m.message != "" {
		status = lipgloss.JoinHorizontal(lipgloss.Top, status, messageStyle.Render(m.message))
	}

	footer := footerStyle.
		Width(m.width - 4).
		Render(helpLine("enter", "open", "h", "up", "c", "copy", "r", "rename", "d", "delete",
			"m", "mkdir", "x", "extract", "g", "refresh", "esc", "back"))

	return lipgloss.JoinVertical(lipgloss.Center, title, main, status, footer)
}
