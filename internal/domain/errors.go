package domain

import "errors"

var (
	ErrServerNotFound       = errors.New("server not found")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerLaunch         = errors.New("server failed to launch")
	ErrServerExists         = errors.New("server id already exists")
	ErrUnknownJavaPreset    = errors.New("unknown java preset")
	ErrNoConfigFile         = errors.New("server config file does not exist")

	ErrNoServerType          = errors.New("server type is not available")
	ErrServerVersionNotFound = errors.New("server version does not exist")
	ErrServerBuildNotFound   = errors.New("server build does not exist")
	ErrDownloadUnavailable   = errors.New("download is not available")

	ErrPathNotFound       = errors.New("path does not exist")
	ErrPathExists         = errors.New("path already exists")
	ErrNotDirectory       = errors.New("not a directory")
	ErrNotFile            = errors.New("not a file")
	ErrPathNotAllowed     = errors.New("path is not allowed")
	ErrUnsupportedArchive = errors.New("unsupported archive format")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBadLogin           = errors.New("incorrect username or password")
	ErrUserExists         = errors.New("user name already exists")
	ErrUserNotFound       = errors.New("user does not exist")

	ErrBackupRunning  = errors.New("a backup is already running")
	ErrBackupNotFound = errors.New("backup not found")
	ErrInvalidBackup  = errors.New("invalid backup")
	ErrNoSnapshot     = errors.New("snapshot backups are not supported")
)
