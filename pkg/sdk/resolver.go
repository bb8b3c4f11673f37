package sdk

import (
	"context"
	"sync"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const recentTaskCap = 128

// WaitPolicy bounds how long a pending file task is waited for and how
// often the task list is polled in the meantime.
type WaitPolicy struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{PollInterval: 500 * time.Millisecond, Timeout: 60 * time.Second}
}

type taskLister interface {
	Tasks(ctx context.Context) ([]FileTask, error)
}

type pathKey struct {
	server string
	src    string
}

// TaskWaiter resolves pending file operations. Terminal events from the
// event client are matched against waiters by task id or, for endpoints
// that hand out no id, by server and source path. Events that arrive before
// anyone waits are kept in a small cache. The backend task list is polled
// as a fallback for events lost across a reconnect.
type TaskWaiter struct {
	tasks  taskLister
	policy WaitPolicy
	log    zerolog.Logger

	events *events.Client
	sub    *events.Subscription

	mu       sync.Mutex
	byID     map[int][]chan *events.FileTaskEvent
	byPath   map[pathKey][]chan *events.FileTaskEvent
	recent   []observed
	recentAt int
}

type observed struct {
	ev *events.FileTaskEvent
	at time.Time
}

// NewTaskWaiter subscribes to ec's task-end stream. ec may be nil, in which
// case waiting relies on polling alone.
func NewTaskWaiter(ec *events.Client, fm *FileManager, policy WaitPolicy) *TaskWaiter {
	def := DefaultWaitPolicy()
	if policy.PollInterval <= 0 {
		policy.PollInterval = def.PollInterval
	}
	if policy.Timeout <= 0 {
		policy.Timeout = def.Timeout
	}
	w := &TaskWaiter{
		tasks:  fm,
		policy: policy,
		log:    fm.client.log,
		events: ec,
		byID:   make(map[int][]chan *events.FileTaskEvent),
		byPath: make(map[pathKey][]chan *events.FileTaskEvent),
	}
	if ec != nil {
		w.sub = ec.OnFileTaskEnd(w.observe)
	}
	return w
}

func (w *TaskWaiter) Policy() WaitPolicy { return w.policy }

// Close stops listening for events. Pending waits fall back to polling.
func (w *TaskWaiter) Close() {
	if w.events != nil {
		w.events.RemoveEventListener(w.sub)
	}
}

func (w *TaskWaiter) observe(ev *events.FileTaskEvent) {
	if !ev.Result.Terminal() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	o := observed{ev: ev, at: time.Now()}
	if len(w.recent) < recentTaskCap {
		w.recent = append(w.recent, o)
	} else {
		w.recent[w.recentAt] = o
		w.recentAt = (w.recentAt + 1) % recentTaskCap
	}

	for _, ch := range w.byID[ev.TaskID] {
		ch <- ev
	}
	delete(w.byID, ev.TaskID)

	key := pathKey{ev.ServerID, ev.Src}
	for _, ch := range w.byPath[key] {
		ch <- ev
	}
	delete(w.byPath, key)
}

func (w *TaskWaiter) cached(since time.Time, match func(*events.FileTaskEvent) bool) *events.FileTaskEvent {
	for _, o := range w.recent {
		if !o.at.Before(since) && match(o.ev) {
			return o.ev
		}
	}
	return nil
}

// Wait blocks until task id reaches a terminal result. A task that drops
// out of the backend task list without an observed end event resolves with
// an empty Result: it finished, but the outcome was missed.
func (w *TaskWaiter) Wait(ctx context.Context, id int) (*events.FileTaskEvent, error) {
	ch := make(chan *events.FileTaskEvent, 1)

	w.mu.Lock()
	if ev := w.cached(time.Time{}, func(e *events.FileTaskEvent) bool { return e.TaskID == id }); ev != nil {
		w.mu.Unlock()
		return ev, nil
	}
	w.byID[id] = append(w.byID[id], ch)
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		removeWaiter(w.byID, id, ch)
		w.mu.Unlock()
	}()

	return w.await(ctx, ch, func(tasks []FileTask) (FileTask, bool) {
		for _, t := range tasks {
			if t.ID == id {
				return t, true
			}
		}
		return FileTask{}, false
	}, &events.FileTaskEvent{TaskID: id, End: true})
}

// WaitPath is Wait for operations that report no task id. Only end events
// observed at or after since count, so an earlier operation on the same
// source cannot resolve the wait. When polling, the newest matching task
// wins.
func (w *TaskWaiter) WaitPath(ctx context.Context, serverID, src string, since time.Time) (*events.FileTaskEvent, error) {
	key := pathKey{serverID, src}
	ch := make(chan *events.FileTaskEvent, 1)

	w.mu.Lock()
	if ev := w.cached(since, func(e *events.FileTaskEvent) bool { return e.ServerID == serverID && e.Src == src }); ev != nil {
		w.mu.Unlock()
		return ev, nil
	}
	w.byPath[key] = append(w.byPath[key], ch)
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		removeWaiter(w.byPath, key, ch)
		w.mu.Unlock()
	}()

	return w.await(ctx, ch, func(tasks []FileTask) (FileTask, bool) {
		var newest FileTask
		found := false
		for _, t := range tasks {
			if deref(t.Server) == serverID && deref(t.Src) == src && (!found || t.ID > newest.ID) {
				newest, found = t, true
			}
		}
		return newest, found
	}, &events.FileTaskEvent{ServerID: serverID, Src: src, End: true})
}

// Await resolves res. Results that are already terminal return at once.
// A pending result without a task id is matched by the server and source
// path of the operation that produced it.
func (w *TaskWaiter) Await(ctx context.Context, res *FileOperationResult) (events.TaskResult, error) {
	if res == nil {
		return "", errors.New("nil operation result")
	}
	if !res.Pending() {
		return res.Result, nil
	}
	var (
		ev  *events.FileTaskEvent
		err error
	)
	switch {
	case res.TaskID != nil:
		ev, err = w.Wait(ctx, *res.TaskID)
	case res.src != "":
		ev, err = w.WaitPath(ctx, res.server, res.src, res.issued)
	default:
		return "", errors.New("pending result without task id")
	}
	if err != nil {
		return "", err
	}
	return ev.Result, nil
}

func (w *TaskWaiter) await(ctx context.Context, ch <-chan *events.FileTaskEvent, find func([]FileTask) (FileTask, bool), vanished *events.FileTaskEvent) (*events.FileTaskEvent, error) {
	timeout := time.NewTimer(w.policy.Timeout)
	defer timeout.Stop()
	poll := time.NewTicker(w.policy.PollInterval)
	defer poll.Stop()

	for {
		select {
		case ev := <-ch:
			return ev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, ErrTaskTimeout
		case <-poll.C:
			tasks, err := w.tasks.Tasks(ctx)
			if err != nil {
				w.log.Debug().Err(err).Msg("polling file tasks")
				continue
			}
			t, found := find(tasks)
			if !found {
				return vanished, nil
			}
			if t.Result.Terminal() {
				ev := t.event()
				ev.End = true
				return ev, nil
			}
		}
	}
}

func removeWaiter[K comparable](m map[K][]chan *events.FileTaskEvent, key K, ch chan *events.FileTaskEvent) {
	var kept []chan *events.FileTaskEvent
	for _, c := range m[key] {
		if c != ch {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(m, key)
		return
	}
	m[key] = kept
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
