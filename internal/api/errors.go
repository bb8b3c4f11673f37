package api

import (
	"context"
	"net/http"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

type errorBody struct {
	ErrorCode int    `json:"error_code"`
	Detail    string `json:"detail"`
}

type errorMapping struct {
	err    error
	code   sdk.ErrorCode
	status int
}

var errorCodes = []errorMapping{
	{domain.ErrServerNotFound, sdk.CodeServerNotFound, http.StatusNotFound},
	{domain.ErrServerNotRunning, sdk.CodeServerNotRunning, http.StatusConflict},
	{domain.ErrServerLaunch, sdk.CodeServerLaunchError, http.StatusInternalServerError},
	{domain.ErrServerAlreadyRunning, sdk.CodeServerAlreadyRunning, http.StatusConflict},
	{domain.ErrServerExists, sdk.CodeAlreadyExistsID, http.StatusConflict},
	{domain.ErrUnknownJavaPreset, sdk.CodeUnknownJavaPreset, http.StatusBadRequest},
	{domain.ErrNoConfigFile, sdk.CodeNotExistsConfigFile, http.StatusNotFound},

	{domain.ErrNoServerType, sdk.CodeNoAvailableServerType, http.StatusNotFound},
	{domain.ErrServerVersionNotFound, sdk.CodeNotExistsServerVersion, http.StatusNotFound},
	{domain.ErrServerBuildNotFound, sdk.CodeNotExistsServerBuild, http.StatusNotFound},
	{domain.ErrDownloadUnavailable, sdk.CodeDownloadUnavailable, http.StatusBadGateway},

	{domain.ErrPathNotFound, sdk.CodeNotExistsPath, http.StatusNotFound},
	{domain.ErrPathExists, sdk.CodeAlreadyExistsPath, http.StatusConflict},
	{domain.ErrNotDirectory, sdk.CodeNotExistsDirectory, http.StatusBadRequest},
	{domain.ErrNotFile, sdk.CodeNotFile, http.StatusBadRequest},
	{domain.ErrPathNotAllowed, sdk.CodeNotAllowedPath, http.StatusForbidden},
	{domain.ErrUnsupportedArchive, sdk.CodeUnsupportedArchive, http.StatusBadRequest},

	{domain.ErrInvalidCredentials, sdk.CodeInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrBadLogin, sdk.CodeIncorrectUsernameOrPassword, http.StatusUnauthorized},
	{domain.ErrUserExists, sdk.CodeAlreadyExistsUserName, http.StatusConflict},
	{domain.ErrUserNotFound, sdk.CodeNotExistsUser, http.StatusNotFound},

	{domain.ErrBackupRunning, sdk.CodeBackupAlreadyRunning, http.StatusConflict},
	{domain.ErrBackupNotFound, sdk.CodeBackupNotFound, http.StatusNotFound},
	{domain.ErrInvalidBackup, sdk.CodeInvalidBackup, http.StatusBadRequest},
	{domain.ErrNoSnapshot, sdk.CodeUnavailableSnapshot, http.StatusBadRequest},

	{context.Canceled, sdk.CodeOperationCancelled, http.StatusBadRequest},
}

// writeError answers with the numeric code clients understand. Errors with
// no code become a plain 500.
func (api *Server) writeError(w http.ResponseWriter, err error) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, errorBody{ErrorCode: int(m.code), Detail: err.Error()})
			return
		}
	}
	api.log.Error().Err(err).Msg("Unhandled error")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
