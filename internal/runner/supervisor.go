package runner

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk/events"

	"github.com/rs/zerolog"
)

// Publisher receives every frame the supervisor emits.
type Publisher interface {
	Publish(frame any)
}

type Supervisor struct {
	Store     domain.ServerRepository
	pub       Publisher
	log       zerolog.Logger
	processes map[string]*ActiveProcess
	mu        sync.Mutex
}

type ActiveProcess struct {
	Cmd   *exec.Cmd
	Stdin io.WriteCloser

	state    events.ServerState
	stopCmd  string
	timeout  time.Duration
	killTime *time.Timer
	done     chan struct{}
}

func NewSupervisor(store domain.ServerRepository, pub Publisher, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		Store:     store,
		pub:       pub,
		log:       log,
		processes: make(map[string]*ActiveProcess),
	}
}

// State is stopped for servers without a live process.
func (s *Supervisor) State(serverID string) events.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proc, ok := s.processes[serverID]; ok {
		return proc.state
	}
	return events.StateStopped
}

// Running lists the servers with a live process and their pids.
func (s *Supervisor) Running() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make(map[string]int, len(s.processes))
	for id, proc := range s.processes {
		if proc.Cmd.Process != nil {
			pids[id] = proc.Cmd.Process.Pid
		}
	}
	return pids
}

// setState must be called with s.mu held.
func (s *Supervisor) setState(serverID string, proc *ActiveProcess, state events.ServerState) {
	old := events.StateStopped
	if proc != nil {
		old = proc.state
		proc.state = state
	}
	if old == state {
		return
	}
	if err := s.Store.UpdateStatus(serverID, string(state)); err != nil {
		s.log.Warn().Err(err).Str("server", serverID).Msg("Could not persist server state")
	}
	s.publish(events.ChangeStateFrame{
		Type:      events.FrameEvent,
		EventType: events.EventChangeState,
		Server:    serverID,
		OldState:  string(old),
		NewState:  string(state),
	})
}

func (s *Supervisor) publish(frame any) {
	if s.pub != nil {
		s.pub.Publish(frame)
	}
}

func (s *Supervisor) StartServer(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[serverID]; exists {
		return fmt.Errorf("%s: %w", serverID, domain.ErrServerAlreadyRunning)
	}

	srv, err := s.Store.GetServerByID(serverID)
	if err != nil {
		return err
	}
	if srv == nil {
		return fmt.Errorf("%s: %w", serverID, domain.ErrServerNotFound)
	}

	cmd := shellCommand(srv.LaunchCommand)
	cmd.Dir = srv.Directory
	prepareCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrServerLaunch)
	}

	proc := &ActiveProcess{
		Cmd:     cmd,
		Stdin:   stdin,
		state:   events.StateStopped,
		stopCmd: srv.StopCommand,
		timeout: time.Duration(srv.ShutdownTimeout) * time.Second,
		done:    make(chan struct{}),
	}
	s.processes[serverID] = proc
	s.setState(serverID, proc, events.StateStarting)

	if err := s.Store.MarkLaunched(serverID, time.Now()); err != nil {
		s.log.Warn().Err(err).Str("server", serverID).Msg("Could not record launch time")
	}
	s.log.Info().Str("server", serverID).Int("pid", cmd.Process.Pid).Msg("Server process started")

	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.pump(serverID, stdout, &pipes)
	go s.pump(serverID, stderr, &pipes)

	s.setState(serverID, proc, events.StateRunning)

	go s.wait(serverID, proc, &pipes)
	return nil
}

func (s *Supervisor) pump(serverID string, r io.Reader, pipes *sync.WaitGroup) {
	defer pipes.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.publish(events.ProcessReadFrame{
			Type:      events.FrameEvent,
			EventType: events.EventProcessRead,
			Server:    serverID,
			Data:      scanner.Text() + "\n",
		})
	}
}

func (s *Supervisor) wait(serverID string, proc *ActiveProcess, pipes *sync.WaitGroup) {
	pipes.Wait()
	err := proc.Cmd.Wait()

	s.mu.Lock()
	if proc.killTime != nil {
		proc.killTime.Stop()
	}
	delete(s.processes, serverID)
	s.setState(serverID, proc, events.StateStopped)
	s.mu.Unlock()

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("server", serverID).Msg("Server process exited")
	close(proc.done)
}

func (s *Supervisor) process(serverID string) (*ActiveProcess, error) {
	proc, exists := s.processes[serverID]
	if !exists {
		return nil, fmt.Errorf("%s: %w", serverID, domain.ErrServerNotRunning)
	}
	return proc, nil
}

// StopServer sends the server's stop command and kills the process if it
// is still alive after the shutdown timeout.
func (s *Supervisor) StopServer(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, err := s.process(serverID)
	if err != nil {
		return err
	}
	if proc.state == events.StateStopping {
		return nil
	}

	s.setState(serverID, proc, events.StateStopping)
	if _, err := io.WriteString(proc.Stdin, proc.stopCmd+"\n"); err != nil {
		s.log.Warn().Err(err).Str("server", serverID).Msg("Could not send stop command")
	}
	proc.killTime = time.AfterFunc(proc.timeout, func() {
		s.log.Warn().Str("server", serverID).Dur("timeout", proc.timeout).Msg("Server did not stop in time, killing")
		killProcess(proc.Cmd)
	})
	return nil
}

// RestartServer stops the server and starts it again once the process has
// exited. It returns as soon as the stop is under way.
func (s *Supervisor) RestartServer(serverID string) error {
	s.mu.Lock()
	proc, err := s.process(serverID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.StopServer(serverID); err != nil {
		return err
	}
	go func() {
		<-proc.done
		if err := s.StartServer(serverID); err != nil {
			s.log.Error().Err(err).Str("server", serverID).Msg("Restart failed")
		}
	}()
	return nil
}

func (s *Supervisor) KillServer(serverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proc, err := s.process(serverID)
	if err != nil {
		return err
	}
	killProcess(proc.Cmd)
	return nil
}

// SendLine writes one line of console input.
func (s *Supervisor) SendLine(serverID string, line string) error {
	return s.Write(serverID, line+"\n")
}

// Write passes data to the process's stdin unchanged.
func (s *Supervisor) Write(serverID string, data string) error {
	s.mu.Lock()
	proc, err := s.process(serverID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	_, err = io.WriteString(proc.Stdin, data)
	return err
}

// Resize is accepted for running servers and otherwise ignored: processes
// run on plain pipes, not a terminal.
func (s *Supervisor) Resize(serverID string, cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.process(serverID); err != nil {
		return err
	}
	s.log.Debug().Str("server", serverID).Int("cols", cols).Int("rows", rows).Msg("Terminal size ignored")
	return nil
}

// Done is closed when the server's current process exits. It is nil when no
// process is running.
func (s *Supervisor) Done(serverID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proc, ok := s.processes[serverID]; ok {
		return proc.done
	}
	return nil
}

// ResetRunningStates marks every stored server as stopped. It is meant for
// startup, when no process can be alive yet.
func (s *Supervisor) ResetRunningStates() error {
	servers, err := s.Store.ListServers()
	if err != nil {
		return err
	}
	for _, srv := range servers {
		if srv.Status == string(events.StateStopped) {
			continue
		}
		if err := s.Store.UpdateStatus(srv.ID, string(events.StateStopped)); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown kills every running process and waits for them to exit.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.processes))
	var waits []chan struct{}
	for id, proc := range s.processes {
		ids = append(ids, id)
		waits = append(waits, proc.done)
		killProcess(proc.Cmd)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	for _, done := range waits {
		<-done
	}
	if len(ids) > 0 {
		s.log.Info().Strs("servers", ids).Msg("Stopped running servers")
	}
}
