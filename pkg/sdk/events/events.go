package events

import (
	"strings"
	"time"
)

type Kind string

const (
	KindPerformanceProgress Kind = "PerformanceProgress"
	KindServerProcessRead   Kind = "ServerProcessRead"
	KindServerChangeState   Kind = "ServerChangeState"
	KindFileTaskStart       Kind = "FileTaskStart"
	KindFileTaskEnd         Kind = "FileTaskEnd"
	KindOpen                Kind = "open"
	KindClose               Kind = "close"
)

// Event is implemented by every value delivered to a Listener.
type Event interface {
	Kind() Kind
}

type ServerState string

const (
	StateUnknown  ServerState = "unknown"
	StateStopped  ServerState = "stopped"
	StateStarting ServerState = "starting"
	StateStarted  ServerState = "started"
	StateRunning  ServerState = "running"
	StateStopping ServerState = "stopping"
	StateBuild    ServerState = "build"
)

// ParseServerState is case-insensitive; names it does not know map to StateUnknown.
func ParseServerState(name string) ServerState {
	switch s := ServerState(strings.ToLower(strings.TrimSpace(name))); s {
	case StateStopped, StateStarting, StateStarted, StateRunning, StateStopping, StateBuild:
		return s
	default:
		return StateUnknown
	}
}

func (s *ServerState) UnmarshalText(text []byte) error {
	*s = ParseServerState(string(text))
	return nil
}

func (s ServerState) IsRunning() bool {
	return s == StateRunning || s == StateStarted
}

type TaskResult string

const (
	ResultPending TaskResult = "pending"
	ResultSuccess TaskResult = "success"
	ResultFailed  TaskResult = "failed"
)

func (r TaskResult) Terminal() bool {
	return r == ResultSuccess || r == ResultFailed
}

type FileEventType string

const (
	FileEventCopy           FileEventType = "copy"
	FileEventMove           FileEventType = "move"
	FileEventDelete         FileEventType = "delete"
	FileEventUpdate         FileEventType = "update"
	FileEventCreate         FileEventType = "create"
	FileEventExtractArchive FileEventType = "extract_archive"
	FileEventCreateArchive  FileEventType = "create_archive"
	FileEventDownload       FileEventType = "download"
	FileEventBackup         FileEventType = "backup"
	FileEventRestoreBackup  FileEventType = "restore_backup"
)

type GameStats struct {
	Ticks int64
}

type JVMStats struct {
	CPUUsage float64
	MemTotal int64
	MemUsed  int64
}

type ServerPerformance struct {
	ID   string
	Game *GameStats
	JVM  *JVMStats
}

type SystemPerformance struct {
	CPUUsage      float64
	CPUCount      int
	MemAvailable  int64
	MemTotal      int64
	SwapAvailable int64
	SwapTotal     int64
}

type PerformanceProgress struct {
	Servers   []ServerPerformance
	System    SystemPerformance
	Timestamp time.Time
}

func (*PerformanceProgress) Kind() Kind { return KindPerformanceProgress }

// Server returns the snapshot for id, or nil when the server was not sampled.
func (p *PerformanceProgress) Server(id string) *ServerPerformance {
	for i := range p.Servers {
		if p.Servers[i].ID == id {
			return &p.Servers[i]
		}
	}
	return nil
}

type ServerProcessReadEvent struct {
	ServerID string
	Data     string
}

func (*ServerProcessReadEvent) Kind() Kind { return KindServerProcessRead }

type ServerChangeStateEvent struct {
	ServerID string
	OldState ServerState
	NewState ServerState
}

func (*ServerChangeStateEvent) Kind() Kind { return KindServerChangeState }

// FileTaskEvent is shared by the start and end streams; End tells them apart.
type FileTaskEvent struct {
	TaskID   int
	Src      string
	Dst      string
	ServerID string
	Progress *float64
	Result   TaskResult
	Type     FileEventType
	End      bool
}

func (e *FileTaskEvent) Kind() Kind {
	if e.End {
		return KindFileTaskEnd
	}
	return KindFileTaskStart
}

type OpenEvent struct {
	URL string
}

func (*OpenEvent) Kind() Kind { return KindOpen }

type CloseEvent struct {
	Err         error
	Intentional bool
}

func (*CloseEvent) Kind() Kind { return KindClose }
