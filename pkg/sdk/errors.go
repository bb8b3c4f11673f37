package sdk

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorCode int

const (
	CodeOutOfMemory        ErrorCode = 100
	CodeOperationCancelled ErrorCode = 101
	CodeAlreadyExistsID    ErrorCode = 102

	CodeServerNotFound       ErrorCode = 200
	CodeServerNotLoaded      ErrorCode = 201
	CodeServerNotRunning     ErrorCode = 202
	CodeServerLaunchError    ErrorCode = 203
	CodeServerAlreadyRunning ErrorCode = 204
	CodeServerProcessing     ErrorCode = 205

	CodeNotExistsPath       ErrorCode = 300
	CodeAlreadyExistsPath   ErrorCode = 301
	CodeNotExistsDirectory  ErrorCode = 302
	CodeNotExistsFile       ErrorCode = 303
	CodeNotExistsConfigFile ErrorCode = 304
	CodeNotAllowedPath      ErrorCode = 305
	CodeNotFile             ErrorCode = 306
	CodeUnsupportedArchive  ErrorCode = 307
	CodeDownloadUnavailable ErrorCode = 308
	CodeExistFile           ErrorCode = 309
	CodeExistDirectory      ErrorCode = 310

	CodeInvalidCredentials          ErrorCode = 400
	CodeIncorrectUsernameOrPassword ErrorCode = 401

	CodeAlreadyExistsUserName ErrorCode = 500
	CodeNotExistsUser         ErrorCode = 501

	CodePluginNotFound      ErrorCode = 600
	CodeNotExistsPluginFile ErrorCode = 601

	CodeNoAvailableServerType  ErrorCode = 700
	CodeNotExistsServerVersion ErrorCode = 701
	CodeNotExistsServerBuild   ErrorCode = 702

	CodeBackupAlreadyRunning ErrorCode = 800
	CodeBackupNotFound       ErrorCode = 801
	CodeInvalidBackup        ErrorCode = 802
	CodeUnavailableSnapshot  ErrorCode = 803
	CodeDisabledSnapshot     ErrorCode = 804

	CodeUnknownJavaPreset ErrorCode = 900
)

var codeDescriptions = map[ErrorCode]string{
	CodeOutOfMemory:        "not enough memory",
	CodeOperationCancelled: "operation was cancelled",
	CodeAlreadyExistsID:    "id already exists",

	CodeServerNotFound:       "server not found",
	CodeServerNotLoaded:      "server is not loaded",
	CodeServerNotRunning:     "server is not running",
	CodeServerLaunchError:    "server failed to launch",
	CodeServerAlreadyRunning: "server is already running",
	CodeServerProcessing:     "server is busy",

	CodeNotExistsPath:       "path does not exist",
	CodeAlreadyExistsPath:   "path already exists",
	CodeNotExistsDirectory:  "directory does not exist",
	CodeNotExistsFile:       "file does not exist",
	CodeNotExistsConfigFile: "config file does not exist",
	CodeNotAllowedPath:      "path is not allowed",
	CodeNotFile:             "not a file",
	CodeUnsupportedArchive:  "unsupported archive format",
	CodeDownloadUnavailable: "download is not available",
	CodeExistFile:           "file already exists",
	CodeExistDirectory:      "directory already exists",

	CodeInvalidCredentials:          "invalid authentication credentials",
	CodeIncorrectUsernameOrPassword: "incorrect username or password",

	CodeAlreadyExistsUserName: "user name already exists",
	CodeNotExistsUser:         "user does not exist",

	CodePluginNotFound:      "plugin not found",
	CodeNotExistsPluginFile: "plugin file does not exist",

	CodeNoAvailableServerType:  "no server type available",
	CodeNotExistsServerVersion: "server version does not exist",
	CodeNotExistsServerBuild:   "server build does not exist",

	CodeBackupAlreadyRunning: "a backup is already running",
	CodeBackupNotFound:       "backup not found",
	CodeInvalidBackup:        "invalid backup",
	CodeUnavailableSnapshot:  "snapshot is not available",
	CodeDisabledSnapshot:     "snapshot is disabled",

	CodeUnknownJavaPreset: "unknown java preset",
}

func (c ErrorCode) Known() bool {
	_, ok := codeDescriptions[c]
	return ok
}

func (c ErrorCode) Description() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("unknown error (code %d)", int(c))
}

// APIError is a failure reported by the backend with a numeric code.
type APIError struct {
	Code   ErrorCode
	Detail string
	Status int
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Code.Description() + ": " + e.Detail
	}
	return e.Code.Description()
}

func IsCode(err error, code ErrorCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

var (
	ErrNetwork = errors.New("network error")

	ErrNotArchive        = errors.New("not an archive file")
	ErrEmptySelection    = errors.New("no entries selected")
	ErrMixedServers      = errors.New("selected entries belong to different servers")
	ErrTooManyCollisions = errors.New("too many name collisions")
	ErrTaskTimeout       = errors.New("timed out waiting for file task")
)

type networkError struct {
	err error
}

func (e *networkError) Error() string        { return "network error: " + e.err.Error() }
func (e *networkError) Unwrap() error        { return e.err }
func (e *networkError) Is(target error) bool { return target == ErrNetwork }

// Message renders err for a user-facing notification.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code.Known() {
		return apiErr.Code.Description()
	}
	if errors.Is(err, ErrNetwork) {
		return "could not connect to the server"
	}
	return "an unknown error occurred"
}
