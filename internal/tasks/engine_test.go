package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/rs/zerolog"
)

type recorder struct {
	mu     sync.Mutex
	frames []events.FileTaskFrame
	ended  chan events.WireTask
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan events.WireTask, 8)}
}

func (r *recorder) Publish(frame any) {
	f := frame.(events.FileTaskFrame)
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	if f.EventType == events.EventFileTaskEnd {
		r.ended <- f.Task
	}
}

func (r *recorder) waitEnd(t *testing.T) events.WireTask {
	t.Helper()
	select {
	case task := <-r.ended:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for file_task_end")
		return events.WireTask{}
	}
}

func TestTaskLifecycle(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(rec, zerolog.Nop())
	defer e.Shutdown()

	release := make(chan struct{})
	id := e.Start(Spec{Type: events.FileEventCopy, Server: "s1", Src: "/a", Dst: "/b"}, func(ctx context.Context, report func(float64)) error {
		report(40)
		<-release
		return nil
	})

	if id != 1 {
		t.Errorf("Expected first task id 1, got %d", id)
	}
	list := e.List()
	if len(list) != 1 || list[0].ID != id || list[0].Result != string(events.ResultPending) {
		t.Fatalf("Expected one pending task, got %+v", list)
	}

	close(release)
	end := rec.waitEnd(t)

	if end.Result != string(events.ResultSuccess) || *end.Src != "/a" || *end.Server != "s1" {
		t.Errorf("Unexpected end frame: %+v", end)
	}
	list = e.List()
	if len(list) != 1 || list[0].Result != string(events.ResultSuccess) {
		t.Errorf("Expected the ended task to stay listed with its result, got %+v", list)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.frames) != 2 || rec.frames[0].EventType != events.EventFileTaskStart {
		t.Errorf("Expected start then end frames, got %+v", rec.frames)
	}
}

func TestFailedTask(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(rec, zerolog.Nop())
	defer e.Shutdown()

	e.Start(Spec{Type: events.FileEventDelete}, func(ctx context.Context, report func(float64)) error {
		return errors.New("disk on fire")
	})

	end := rec.waitEnd(t)
	if end.Result != string(events.ResultFailed) {
		t.Errorf("Expected failed result, got %s", end.Result)
	}
	if end.Src != nil || end.Server != nil {
		t.Errorf("Expected empty fields to be null, got %+v", end)
	}
}

func TestShutdownCancelsWork(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(rec, zerolog.Nop())

	e.Start(Spec{Type: events.FileEventCreateArchive}, func(ctx context.Context, report func(float64)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	e.Shutdown()

	end := rec.waitEnd(t)
	if end.Result != string(events.ResultFailed) {
		t.Errorf("Expected cancelled task to fail, got %s", end.Result)
	}
}

func TestEndedTasksExpire(t *testing.T) {
	rec := newRecorder()
	e := NewEngine(rec, zerolog.Nop())
	e.Retention = 20 * time.Millisecond
	defer e.Shutdown()

	e.Start(Spec{Type: events.FileEventExtractArchive}, func(ctx context.Context, report func(float64)) error {
		return errors.New("not a zip file")
	})
	rec.waitEnd(t)

	list := e.List()
	if len(list) != 1 || list[0].Result != string(events.ResultFailed) {
		t.Fatalf("Expected the failed task to be listed, got %+v", list)
	}
	time.Sleep(50 * time.Millisecond)
	if list := e.List(); len(list) != 0 {
		t.Errorf("Expected the task to expire, got %+v", list)
	}
}
