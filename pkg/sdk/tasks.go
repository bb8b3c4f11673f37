package sdk

import (
	"time"

	"craftdeck/pkg/sdk/events"
)

// FileTask is one entry of the backend's task list.
type FileTask struct {
	ID       int                  `json:"id"`
	Type     events.FileEventType `json:"type"`
	Progress *float64             `json:"progress"`
	Result   events.TaskResult    `json:"result"`
	Src      *string              `json:"src"`
	Dst      *string              `json:"dst"`
	Server   *string              `json:"server"`
}

func (t FileTask) event() *events.FileTaskEvent {
	return events.WireTask{
		ID:       t.ID,
		Type:     string(t.Type),
		Progress: t.Progress,
		Result:   string(t.Result),
		Src:      t.Src,
		Dst:      t.Dst,
		Server:   t.Server,
	}.ToEvent()
}

// FileOperationResult is returned by every mutating file operation. TaskID
// is set only while Result is pending.
type FileOperationResult struct {
	Result events.TaskResult `json:"result"`
	TaskID *int              `json:"task_id"`
	File   *FileInfo         `json:"file"`

	server string
	src    string
	issued time.Time
}

func (r *FileOperationResult) Pending() bool {
	return r.Result == events.ResultPending
}
