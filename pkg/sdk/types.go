package sdk

import (
	"time"

	"craftdeck/pkg/sdk/events"
)

type Server struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	State       events.ServerState `json:"state"`
	Directory   string             `json:"directory"`
	IsLoaded    bool               `json:"is_loaded"`
	BuildStatus string             `json:"build_status"`
}

// DisplayName falls back to the id for unnamed servers.
func (s Server) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

type LaunchOption struct {
	JavaPreset            *string `json:"java_preset"`
	JavaExecutable        *string `json:"java_executable"`
	JavaOptions           *string `json:"java_options"`
	JarFile               string  `json:"jar_file"`
	ServerOptions         *string `json:"server_options"`
	MaxHeapMemory         *int    `json:"max_heap_memory"`
	MinHeapMemory         *int    `json:"min_heap_memory"`
	EnableFreeMemoryCheck bool    `json:"enable_free_memory_check"`
	EnableReporterAgent   bool    `json:"enable_reporter_agent"`
}

type CreateServerRequest struct {
	Name                string       `json:"name,omitempty"`
	Directory           string       `json:"directory"`
	Type                string       `json:"type"`
	LaunchOption        LaunchOption `json:"launch_option"`
	EnableLaunchCommand bool         `json:"enable_launch_command"`
	LaunchCommand       string       `json:"launch_command"`
	StopCommand         *string      `json:"stop_command"`
	ShutdownTimeout     *int         `json:"shutdown_timeout"`
}

type ImportServerRequest struct {
	Directory string `json:"directory"`
}

// GlobalServerConfig holds the defaults the backend fills into new
// servers.
type GlobalServerConfig struct {
	LaunchOption    LaunchOption `json:"launch_option"`
	StopCommand     *string      `json:"stop_command"`
	ShutdownTimeout *int         `json:"shutdown_timeout"`
}

type ServerConfig struct {
	Name                string       `json:"name"`
	Type                string       `json:"type"`
	LaunchOption        LaunchOption `json:"launch_option"`
	EnableLaunchCommand bool         `json:"enable_launch_command"`
	LaunchCommand       string       `json:"launch_command"`
	StopCommand         *string      `json:"stop_command"`
	ShutdownTimeout     *int         `json:"shutdown_timeout"`
	CreatedAt           *time.Time   `json:"created_at"`
	LastLaunchedAt      *time.Time   `json:"last_launched_at"`
	LastBackupAt        *time.Time   `json:"last_backup_at"`
}

type BackupType string

const (
	BackupFull     BackupType = "full"
	BackupSnapshot BackupType = "snapshot"
)

type BackupID struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Server string `json:"server"`
}

type Backup struct {
	ID               string     `json:"id"`
	Type             BackupType `json:"type"`
	Source           string     `json:"source"`
	Created          time.Time  `json:"created"`
	PreviousBackupID *string    `json:"previous_backup_id"`
	Path             string     `json:"path"`
	Comments         *string    `json:"comments"`
	TotalFiles       int        `json:"total_files"`
	TotalFilesSize   int64      `json:"total_files_size"`
	ErrorFiles       int        `json:"error_files"`
	FinalSize        *int64     `json:"final_size"`
}

type BackupTask struct {
	FileTask
	Comments   *string    `json:"comments"`
	BackupType BackupType `json:"backup_type"`
	BackupID   string     `json:"backup_id"`
}

// BackupFileInfo is one entry as a backup or a server directory holds it.
type BackupFileInfo struct {
	Size       int64     `json:"size"`
	ModifyTime time.Time `json:"modify_time"`
	IsDir      bool      `json:"is_dir"`
}

type BackupFilePathInfo struct {
	Path       string    `json:"path"`
	IsDir      bool      `json:"is_dir"`
	Size       int64     `json:"size"`
	ModifyTime time.Time `json:"modify_time"`
}

type BackupFileErrorType int

const (
	BackupErrorUnknown         BackupFileErrorType = -1
	BackupErrorScan            BackupFileErrorType = 0
	BackupErrorCreateDirectory BackupFileErrorType = 1
	BackupErrorCreateLink      BackupFileErrorType = 2
	BackupErrorCopyFile        BackupFileErrorType = 3
	BackupErrorExistsCheck     BackupFileErrorType = 4
)

type BackupFileError struct {
	Path         string              `json:"path"`
	ErrorType    BackupFileErrorType `json:"error_type"`
	ErrorMessage *string             `json:"error_message"`
}

// SnapshotStatus is how a path changed between two file sets.
type SnapshotStatus string

const (
	StatusCreate   SnapshotStatus = "create"
	StatusUpdate   SnapshotStatus = "update"
	StatusDelete   SnapshotStatus = "delete"
	StatusNoChange SnapshotStatus = "no_change"
)

type BackupFileDifference struct {
	Path    string          `json:"path"`
	OldInfo *BackupFileInfo `json:"old_info"`
	NewInfo *BackupFileInfo `json:"new_info"`
	Status  SnapshotStatus  `json:"status"`
}

type BackupFilesResult struct {
	TotalFiles      int                  `json:"total_files"`
	TotalFilesSize  int64                `json:"total_files_size"`
	ErrorFiles      int                  `json:"error_files"`
	BackupFilesSize int64                `json:"backup_files_size"`
	Files           []BackupFilePathInfo `json:"files"`
	Errors          []BackupFileError    `json:"errors"`
}

// BackupCompareResult compares a backup (old) against a target (new): a
// second backup or the server's current files.
type BackupCompareResult struct {
	TotalFiles            int                    `json:"total_files"`
	TotalFilesSize        int64                  `json:"total_files_size"`
	ErrorFiles            int                    `json:"error_files"`
	BackupFilesSize       int64                  `json:"backup_files_size"`
	UpdateFiles           int                    `json:"update_files"`
	UpdateFilesSize       int64                  `json:"update_files_size"`
	TargetTotalFiles      int                    `json:"target_total_files"`
	TargetTotalFilesSize  int64                  `json:"target_total_files_size"`
	TargetErrorFiles      int                    `json:"target_error_files"`
	TargetBackupFilesSize int64                  `json:"target_backup_files_size"`
	Files                 []BackupFileDifference `json:"files"`
	Errors                []BackupFileError      `json:"errors"`
	TargetErrors          []BackupFileError      `json:"target_errors"`
}

// BackupPreviewResult describes the backup that would be made now.
// SnapshotSource is the backup the update counts compare against.
type BackupPreviewResult struct {
	TotalFiles      int                  `json:"total_files"`
	TotalFilesSize  int64                `json:"total_files_size"`
	ErrorFiles      int                  `json:"error_files"`
	UpdateFiles     int                  `json:"update_files"`
	UpdateFilesSize int64                `json:"update_files_size"`
	BackupFilesSize int64                `json:"backup_files_size"`
	SnapshotSource  string               `json:"snapshot_source"`
	Files           []BackupFilePathInfo `json:"files"`
	Errors          []BackupFileError    `json:"errors"`
}

// BackupFileOptions select what backup listings and comparisons include.
// CheckFiles reads file content instead of trusting sizes and times.
type BackupFileOptions struct {
	CheckFiles    bool
	IncludeFiles  bool
	IncludeErrors bool
	OnlyUpdates   bool
}

type User struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	LastLogin   *time.Time `json:"last_login"`
	LastAddress *string    `json:"last_address"`
	Permission  int        `json:"permission"`
}

type StorageInfo struct {
	TotalSize int64 `json:"total_size"`
	UsedSize  int64 `json:"used_size"`
	FreeSize  int64 `json:"free_size"`
}

type resultBody struct {
	Result bool `json:"result"`
}
