package events

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Top level discriminators.
const (
	FrameProgress = "progress"
	FrameEvent    = "event"

	FrameProcessWrite = "server_process_write"
	FrameSetTermSize  = "server_process_set_term_size"
)

// Secondary discriminators.
const (
	ProgressPerformance = "performance"

	EventProcessRead   = "server_process_read"
	EventChangeState   = "server_change_state"
	EventFileTaskStart = "file_task_start"
	EventFileTaskEnd   = "file_task_end"
)

// ErrUnknownFrame is returned by DecodeFrame for frames the client does not
// understand. The connection drops them without surfacing anything.
var ErrUnknownFrame = errors.New("unknown frame")

type envelope struct {
	Type         string `json:"type"`
	ProgressType string `json:"progress_type"`
	EventType    string `json:"event_type"`
}

type WireGame struct {
	Ticks int64 `json:"ticks"`
}

type WireJVM struct {
	CPUUsage float64 `json:"cpu_usage"`
	MemTotal int64   `json:"mem_total"`
	MemUsed  int64   `json:"mem_used"`
}

type WireServerPerformance struct {
	ID   string    `json:"id"`
	Game *WireGame `json:"game"`
	JVM  *WireJVM  `json:"jvm"`
}

type WireCPU struct {
	Usage float64 `json:"usage"`
	Count int     `json:"count"`
}

type WireMemory struct {
	Available     int64 `json:"available"`
	SwapAvailable int64 `json:"swap_available"`
	SwapTotal     int64 `json:"swap_total"`
	Total         int64 `json:"total"`
}

type WireSystem struct {
	CPU    WireCPU    `json:"cpu"`
	Memory WireMemory `json:"memory"`
}

type PerformanceFrame struct {
	Type         string                  `json:"type"`
	ProgressType string                  `json:"progress_type"`
	Servers      []WireServerPerformance `json:"servers"`
	System       WireSystem              `json:"system"`
	Timestamp    float64                 `json:"timestamp"`
}

type ProcessReadFrame struct {
	Type      string `json:"type"`
	EventType string `json:"event_type"`
	Server    string `json:"server"`
	Data      string `json:"data"`
}

type ChangeStateFrame struct {
	Type      string `json:"type"`
	EventType string `json:"event_type"`
	Server    string `json:"server"`
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
}

type WireTask struct {
	ID       int      `json:"id"`
	Type     string   `json:"type"`
	Progress *float64 `json:"progress"`
	Result   string   `json:"result"`
	Src      *string  `json:"src"`
	Dst      *string  `json:"dst"`
	Server   *string  `json:"server"`
}

type FileTaskFrame struct {
	Type      string   `json:"type"`
	EventType string   `json:"event_type"`
	Task      WireTask `json:"task"`
}

type ProcessWriteFrame struct {
	Type   string `json:"type"`
	Server string `json:"server"`
	Data   string `json:"data"`
}

type TermSizeFrame struct {
	Type   string `json:"type"`
	Server string `json:"server"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

func NewProcessWriteFrame(serverID, data string) ProcessWriteFrame {
	return ProcessWriteFrame{Type: FrameProcessWrite, Server: serverID, Data: data}
}

func NewTermSizeFrame(serverID string, cols, rows int) TermSizeFrame {
	return TermSizeFrame{Type: FrameSetTermSize, Server: serverID, Cols: cols, Rows: rows}
}

// DecodeOutbound parses a frame sent by a client. Used by backends.
func DecodeOutbound(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	switch env.Type {
	case FrameProcessWrite:
		var f ProcessWriteFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrap(err, "decode process write")
		}
		return f, nil
	case FrameSetTermSize:
		var f TermSizeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrap(err, "decode term size")
		}
		return f, nil
	}
	return nil, ErrUnknownFrame
}

// DecodeFrame turns one inbound frame into its typed Event.
func DecodeFrame(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}

	switch env.Type {
	case FrameProgress:
		if env.ProgressType != ProgressPerformance {
			return nil, ErrUnknownFrame
		}
		var f PerformanceFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrap(err, "decode performance")
		}
		return f.toEvent(), nil

	case FrameEvent:
		switch env.EventType {
		case EventProcessRead:
			var f ProcessReadFrame
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, errors.Wrap(err, "decode process read")
			}
			return &ServerProcessReadEvent{ServerID: f.Server, Data: f.Data}, nil

		case EventChangeState:
			var f ChangeStateFrame
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, errors.Wrap(err, "decode change state")
			}
			return &ServerChangeStateEvent{
				ServerID: f.Server,
				OldState: ParseServerState(f.OldState),
				NewState: ParseServerState(f.NewState),
			}, nil

		case EventFileTaskStart, EventFileTaskEnd:
			var f FileTaskFrame
			if err := json.Unmarshal(data, &f); err != nil {
				return nil, errors.Wrap(err, "decode file task")
			}
			ev := f.Task.ToEvent()
			ev.End = env.EventType == EventFileTaskEnd
			return ev, nil
		}
	}
	return nil, ErrUnknownFrame
}

func (f PerformanceFrame) toEvent() *PerformanceProgress {
	ev := &PerformanceProgress{
		Servers: make([]ServerPerformance, 0, len(f.Servers)),
		System: SystemPerformance{
			CPUUsage:      f.System.CPU.Usage,
			CPUCount:      f.System.CPU.Count,
			MemAvailable:  f.System.Memory.Available,
			MemTotal:      f.System.Memory.Total,
			SwapAvailable: f.System.Memory.SwapAvailable,
			SwapTotal:     f.System.Memory.SwapTotal,
		},
		Timestamp: unixSeconds(f.Timestamp),
	}
	for _, s := range f.Servers {
		sp := ServerPerformance{ID: s.ID}
		if s.Game != nil {
			sp.Game = &GameStats{Ticks: s.Game.Ticks}
		}
		if s.JVM != nil {
			sp.JVM = &JVMStats{CPUUsage: s.JVM.CPUUsage, MemTotal: s.JVM.MemTotal, MemUsed: s.JVM.MemUsed}
		}
		ev.Servers = append(ev.Servers, sp)
	}
	return ev
}

func (t WireTask) ToEvent() *FileTaskEvent {
	return &FileTaskEvent{
		TaskID:   t.ID,
		Src:      deref(t.Src),
		Dst:      deref(t.Dst),
		ServerID: deref(t.Server),
		Progress: t.Progress,
		Result:   TaskResult(t.Result),
		Type:     FileEventType(t.Type),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func unixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
