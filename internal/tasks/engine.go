// Package tasks runs long file operations in the background and reports
// their lifecycle as file_task_start / file_task_end frames.
package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/rs/zerolog"
)

// Work is the body of a task. report takes a percentage in [0, 100].
type Work func(ctx context.Context, report func(progress float64)) error

// Publisher receives every frame the engine emits.
type Publisher interface {
	Publish(frame any)
}

// DefaultRetention is how long an ended task stays in the list.
const DefaultRetention = time.Minute

type Task struct {
	ID       int
	Type     events.FileEventType
	Progress *float64
	Result   events.TaskResult
	Src      string
	Dst      string
	Server   string

	ended time.Time
}

func (t Task) Wire() events.WireTask {
	w := events.WireTask{
		ID:       t.ID,
		Type:     string(t.Type),
		Progress: t.Progress,
		Result:   string(t.Result),
	}
	if t.Src != "" {
		w.Src = &t.Src
	}
	if t.Dst != "" {
		w.Dst = &t.Dst
	}
	if t.Server != "" {
		w.Server = &t.Server
	}
	return w
}

// Spec describes a task about to start.
type Spec struct {
	Type   events.FileEventType
	Server string
	Src    string
	Dst    string
}

type Engine struct {
	// Retention keeps ended tasks listed with their result so that clients
	// which missed the end frame can still read the outcome.
	Retention time.Duration

	mu     sync.Mutex
	nextID int
	tasks  map[int]*Task
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	pub    Publisher
	log    zerolog.Logger
}

func NewEngine(pub Publisher, log zerolog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		Retention: DefaultRetention,
		tasks:     make(map[int]*Task),
		ctx:       ctx,
		cancel:    cancel,
		pub:       pub,
		log:       log,
	}
}

// Start registers the task, announces it and runs work in its own
// goroutine. The task leaves the list Retention after it ends.
func (e *Engine) Start(spec Spec, work Work) int {
	e.mu.Lock()
	e.prune()
	e.nextID++
	t := &Task{
		ID:     e.nextID,
		Type:   spec.Type,
		Result: events.ResultPending,
		Src:    spec.Src,
		Dst:    spec.Dst,
		Server: spec.Server,
	}
	e.tasks[t.ID] = t
	start := t.Wire()
	e.mu.Unlock()

	e.publish(events.EventFileTaskStart, start)

	e.wg.Add(1)
	go e.run(t, work)
	return t.ID
}

func (e *Engine) run(t *Task, work Work) {
	defer e.wg.Done()

	err := work(e.ctx, func(progress float64) {
		e.mu.Lock()
		p := progress
		t.Progress = &p
		e.mu.Unlock()
	})

	e.mu.Lock()
	if err != nil {
		t.Result = events.ResultFailed
		e.log.Warn().Err(err).Int("task", t.ID).Str("type", string(t.Type)).Msg("Task failed")
	} else {
		t.Result = events.ResultSuccess
		done := 100.0
		t.Progress = &done
	}
	t.ended = time.Now()
	end := t.Wire()
	e.mu.Unlock()

	e.publish(events.EventFileTaskEnd, end)
}

func (e *Engine) publish(eventType string, task events.WireTask) {
	if e.pub == nil {
		return
	}
	e.pub.Publish(events.FileTaskFrame{
		Type:      events.FrameEvent,
		EventType: eventType,
		Task:      task,
	})
}

// List returns running and recently ended tasks ordered by id.
func (e *Engine) List() []events.WireTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune()
	list := make([]events.WireTask, 0, len(e.tasks))
	for _, t := range e.tasks {
		list = append(list, t.Wire())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// prune drops tasks that ended more than Retention ago. Callers hold mu.
func (e *Engine) prune() {
	cutoff := time.Now().Add(-e.Retention)
	for id, t := range e.tasks {
		if !t.ended.IsZero() && !t.ended.After(cutoff) {
			delete(e.tasks, id)
		}
	}
}

// Shutdown cancels running work and waits for it to return.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}
