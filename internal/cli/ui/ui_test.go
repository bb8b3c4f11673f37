package ui

import (
	"strings"
	"testing"

	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		512:             "512 B",
		1536:            "1.5 KB",
		3 * 1024 * 1024: "3.0 MB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d): expected %q, got %q", in, want, got)
		}
	}
	if got := formatBytesShort(2048); got != "2.0K" {
		t.Errorf("Expected 2.0K, got %q", got)
	}
}

func TestDirectoryFor(t *testing.T) {
	cases := map[string]string{
		"My Server":      "my-server",
		"  Lobby_01  ":   "lobby_01",
		"Créatif! World": "cratif-world",
		"!!!":            "server",
	}
	for in, want := range cases {
		if got := directoryFor(in); got != want {
			t.Errorf("directoryFor(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestSortEntriesDirectoriesFirst(t *testing.T) {
	children := sdk.FileList{
		&sdk.File{Node: sdk.Node{Name: "b.txt"}},
		&sdk.Directory{Node: sdk.Node{Name: "world"}},
		&sdk.File{Node: sdk.Node{Name: "a.txt"}},
		&sdk.Directory{Node: sdk.Node{Name: "logs"}},
	}
	items := sortEntries(children)

	var names []string
	for _, it := range items {
		names = append(names, it.(entryItem).entry.Meta().Name)
	}
	if got := strings.Join(names, ","); got != "logs,world,a.txt,b.txt" {
		t.Errorf("Unexpected order %s", got)
	}
	if title := items[0].(entryItem).Title(); !strings.HasSuffix(title, "logs/") {
		t.Errorf("Expected a directory title ending in /, got %q", title)
	}
}

func TestAppendOutputKeepsNewestLines(t *testing.T) {
	m := &logModel{}
	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 300; i++ {
		m.appendOutput(line)
	}
	m.appendOutput("last line\n")

	s := m.content.String()
	if len(s) > maxConsoleBytes {
		t.Errorf("Expected at most %d bytes, got %d", maxConsoleBytes, len(s))
	}
	if !strings.HasSuffix(s, "last line\n") {
		t.Errorf("Expected the newest line to be kept")
	}
	if !strings.HasPrefix(s, "x") {
		t.Errorf("Expected the buffer to start on a line boundary")
	}
}

func TestHelpLine(t *testing.T) {
	s := helpLine("q", "quit", "s", "start")
	if !strings.Contains(s, "quit") || !strings.Contains(s, "start") {
		t.Errorf("Expected both bindings in %q", s)
	}
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func step(t *testing.T, m WizardModel, msg tea.Msg) WizardModel {
	t.Helper()
	next, _ := m.Update(msg)
	wm, ok := next.(WizardModel)
	if !ok {
		t.Fatalf("Expected a WizardModel, got %T", next)
	}
	return wm
}

func TestWizardJavaFlow(t *testing.T) {
	m := NewWizardModel(nil, 80, 24)

	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepName || m.err == nil {
		t.Errorf("Expected an empty name to be rejected, got step %d err %v", m.step, m.err)
	}

	m = step(t, m, runes("My Server"))
	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepLauncher {
		t.Fatalf("Expected the launcher step, got %d", m.step)
	}

	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepLaunch || m.launcher != launcherJava {
		t.Fatalf("Expected the jar step with the java launcher, got %d %q", m.step, m.launcher)
	}

	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepHeap || m.launchInput.Value() != "server.jar" {
		t.Fatalf("Expected the heap step with the default jar, got %d %q", m.step, m.launchInput.Value())
	}

	m = step(t, m, runes("abc"))
	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepHeap || m.err == nil {
		t.Errorf("Expected an invalid heap to be rejected, got step %d", m.step)
	}

	m.heapInput.SetValue("1024")
	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepConfirm {
		t.Fatalf("Expected the confirm step, got %d", m.step)
	}

	req := m.request()
	if req.Name != "My Server" || req.Directory != "my-server" || req.EnableLaunchCommand {
		t.Errorf("Unexpected request %+v", req)
	}
	if req.LaunchOption.JarFile != "server.jar" || req.LaunchOption.MaxHeapMemory == nil || *req.LaunchOption.MaxHeapMemory != 1024 {
		t.Errorf("Unexpected launch options %+v", req.LaunchOption)
	}

	m = step(t, m, key(tea.KeyEsc))
	if m.step != StepHeap {
		t.Errorf("Expected esc to go back to the heap step, got %d", m.step)
	}
}

func TestWizardCommandSkipsHeap(t *testing.T) {
	m := NewWizardModel(nil, 80, 24)
	m.nameInput.SetValue("Proxy")
	m.step = StepLaunch
	m.launcher = launcherCommand
	m.launchInput.Focus()

	m = step(t, m, runes("./start.sh"))
	m = step(t, m, key(tea.KeyEnter))
	if m.step != StepConfirm {
		t.Fatalf("Expected the confirm step, got %d", m.step)
	}
	req := m.request()
	if !req.EnableLaunchCommand || req.LaunchCommand != "./start.sh" {
		t.Errorf("Unexpected request %+v", req)
	}

	m = step(t, m, key(tea.KeyEsc))
	if m.step != StepLaunch {
		t.Errorf("Expected esc to return to the command step, got %d", m.step)
	}
}

func TestDashboardTracksStateEvents(t *testing.T) {
	m := newDashboardModel(nil, nil)

	next, _ := m.Update(serverDataMsg{
		{ID: "a", Name: "Lobby", State: events.StateStopped},
		{ID: "b", Name: "Survival", State: events.StateRunning},
	})
	m = next.(model)
	if m.isLoading || len(m.table.Rows()) != 2 {
		t.Fatalf("Expected two rows, got %d", len(m.table.Rows()))
	}

	next, cmd := m.Update(&events.ServerChangeStateEvent{ServerID: "a", OldState: events.StateStopped, NewState: events.StateStarting})
	m = next.(model)
	if cmd != nil {
		t.Errorf("Expected no follow-up without an event stream")
	}
	if m.servers[0].State != events.StateStarting {
		t.Errorf("Expected server a to be starting, got %s", m.servers[0].State)
	}
	if row := m.table.Rows()[0]; row[2] != string(events.StateStarting) || row[0] != stateIcon(events.StateStarting) {
		t.Errorf("Unexpected row %v", row)
	}
	if m.connected {
		t.Errorf("Expected the dashboard to poll without a bridge")
	}
}
