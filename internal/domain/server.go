package domain

import "time"

type Server struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Directory       string     `json:"directory"`
	LaunchCommand   string     `json:"launch_command"`
	StopCommand     string     `json:"stop_command"`
	ShutdownTimeout int        `json:"shutdown_timeout"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLaunchedAt  *time.Time `json:"last_launched_at"`
	LastBackupAt    *time.Time `json:"last_backup_at"`
}

type Backup struct {
	ID             string    `json:"id"`
	ServerID       string    `json:"server"`
	Type           string    `json:"type"`
	Source         string    `json:"source"`
	Path           string    `json:"path"`
	Comments       string    `json:"comments"`
	Created        time.Time `json:"created"`
	TotalFiles     int       `json:"total_files"`
	TotalFilesSize int64     `json:"total_files_size"`
	FinalSize      int64     `json:"final_size"`
}
