package sdk

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
)

var fastPolicy = WaitPolicy{PollInterval: 20 * time.Millisecond, Timeout: 2 * time.Second}

func taskListBackend(t *testing.T, list func(n int32) []map[string]any) *fakeBackend {
	t.Helper()
	fb := newFakeBackend(t)
	var polls atomic.Int32
	fb.mux.HandleFunc("GET /file/tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, list(polls.Add(1)))
	})
	return fb
}

func pendingTask(id int) map[string]any {
	return map[string]any{"id": id, "type": "copy", "progress": 50, "result": "pending", "src": "/a", "dst": "/b", "server": "s1"}
}

func TestAwaitReturnsCompletedResult(t *testing.T) {
	fb := newFakeBackend(t)
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	got, err := w.Await(context.Background(), &FileOperationResult{Result: events.ResultSuccess})
	if err != nil || got != events.ResultSuccess {
		t.Errorf("Expected success, got %s %v", got, err)
	}
	if n := fb.requests.Load(); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestWaitResolvesOnEndEvent(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return []map[string]any{pendingTask(4)} })
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.observe(&events.FileTaskEvent{TaskID: 4, Result: events.ResultPending})
		w.observe(&events.FileTaskEvent{TaskID: 4, Result: events.ResultFailed, End: true})
	}()

	id := 4
	got, err := w.Await(context.Background(), &FileOperationResult{Result: events.ResultPending, TaskID: &id})
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if got != events.ResultFailed {
		t.Errorf("Expected failed, got %s", got)
	}
}

func TestWaitUsesEventsThatArrivedEarly(t *testing.T) {
	fb := newFakeBackend(t)
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	w.observe(&events.FileTaskEvent{TaskID: 11, Result: events.ResultSuccess, End: true})

	ev, err := w.Wait(context.Background(), 11)
	if err != nil || ev.Result != events.ResultSuccess {
		t.Errorf("Expected cached success, got %+v %v", ev, err)
	}
	if n := fb.requests.Load(); n != 0 {
		t.Errorf("Expected no polling, got %d requests", n)
	}
}

func TestWaitPollsTaskList(t *testing.T) {
	fb := taskListBackend(t, func(n int32) []map[string]any {
		task := pendingTask(5)
		if n >= 3 {
			task["result"] = "success"
		}
		return []map[string]any{pendingTask(1), task}
	})
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	ev, err := w.Wait(context.Background(), 5)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if ev.TaskID != 5 || ev.Result != events.ResultSuccess || ev.Dst != "/b" {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

func TestWaitVanishedTaskHasNoResult(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return nil })
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	ev, err := w.Wait(context.Background(), 8)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if ev.TaskID != 8 || ev.Result != "" {
		t.Errorf("Expected empty result for vanished task, got %+v", ev)
	}
}

func TestWaitTimesOut(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return []map[string]any{pendingTask(2)} })
	w := NewTaskWaiter(nil, fb.client().Files(), WaitPolicy{PollInterval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := w.Wait(context.Background(), 2)
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("Expected ErrTaskTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestWaitPathMatchesServerAndSource(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return []map[string]any{pendingTask(3)} })
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.observe(&events.FileTaskEvent{TaskID: 99, ServerID: "s2", Src: "/a", Result: events.ResultSuccess, End: true})
		w.observe(&events.FileTaskEvent{TaskID: 3, ServerID: "s1", Src: "/a", Result: events.ResultSuccess, End: true})
	}()

	ev, err := w.WaitPath(context.Background(), "s1", "/a", time.Now())
	if err != nil {
		t.Fatalf("WaitPath failed: %v", err)
	}
	if ev.TaskID != 3 {
		t.Errorf("Expected task 3, got %d", ev.TaskID)
	}
}

func TestWaitPathIgnoresEarlierOperations(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return []map[string]any{pendingTask(8)} })
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	w.observe(&events.FileTaskEvent{TaskID: 7, ServerID: "s1", Src: "/a", Result: events.ResultSuccess, End: true})
	time.Sleep(5 * time.Millisecond)
	issued := time.Now()

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.observe(&events.FileTaskEvent{TaskID: 8, ServerID: "s1", Src: "/a", Result: events.ResultFailed, End: true})
	}()

	ev, err := w.WaitPath(context.Background(), "s1", "/a", issued)
	if err != nil {
		t.Fatalf("WaitPath failed: %v", err)
	}
	if ev.TaskID != 8 || ev.Result != events.ResultFailed {
		t.Errorf("Expected task 8 to fail, got task %d %s", ev.TaskID, ev.Result)
	}
}

func TestWaitPathPollsNewestTask(t *testing.T) {
	fb := taskListBackend(t, func(n int32) []map[string]any {
		old := pendingTask(7)
		old["result"] = "success"
		current := pendingTask(8)
		if n >= 3 {
			current["result"] = "failed"
		}
		return []map[string]any{old, current}
	})
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	ev, err := w.WaitPath(context.Background(), "s1", "/a", time.Now())
	if err != nil {
		t.Fatalf("WaitPath failed: %v", err)
	}
	if ev.TaskID != 8 || ev.Result != events.ResultFailed {
		t.Errorf("Expected task 8 to fail, got task %d %s", ev.TaskID, ev.Result)
	}
}

func TestAwaitWithoutTaskIDMatchesSource(t *testing.T) {
	fb := taskListBackend(t, func(int32) []map[string]any { return []map[string]any{pendingTask(3)} })
	w := NewTaskWaiter(nil, fb.client().Files(), fastPolicy)

	res := &FileOperationResult{Result: events.ResultPending, server: "s1", src: "/a", issued: time.Now()}
	go func() {
		time.Sleep(50 * time.Millisecond)
		w.observe(&events.FileTaskEvent{TaskID: 3, ServerID: "s1", Src: "/a", Result: events.ResultSuccess, End: true})
	}()

	got, err := w.Await(context.Background(), res)
	if err != nil || got != events.ResultSuccess {
		t.Errorf("Expected success, got %s %v", got, err)
	}

	if _, err := w.Await(context.Background(), &FileOperationResult{Result: events.ResultPending}); err == nil {
		t.Errorf("Expected an error for a pending result with nothing to match")
	}
}

func TestDefaultWaitPolicyFillsGaps(t *testing.T) {
	fb := newFakeBackend(t)
	w := NewTaskWaiter(nil, fb.client().Files(), WaitPolicy{})
	if w.Policy() != DefaultWaitPolicy() {
		t.Errorf("Expected default policy, got %+v", w.Policy())
	}
}
