package api

import (
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"craftdeck/internal/domain"
	"craftdeck/internal/tasks"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
)

func toWireBackup(b domain.Backup) sdk.Backup {
	out := sdk.Backup{
		ID:             b.ID,
		Type:           sdk.BackupType(b.Type),
		Source:         b.Source,
		Created:        b.Created,
		Path:           b.Path,
		TotalFiles:     b.TotalFiles,
		TotalFilesSize: b.TotalFilesSize,
	}
	if b.Comments != "" {
		comments := b.Comments
		out.Comments = &comments
	}
	if b.FinalSize > 0 {
		size := b.FinalSize
		out.FinalSize = &size
	}
	return out
}

func backupTask(taskID int, spec tasks.Spec, backupID, comments string) sdk.BackupTask {
	task := sdk.BackupTask{
		FileTask: sdk.FileTask{
			ID:     taskID,
			Type:   spec.Type,
			Result: events.ResultPending,
			Server: &spec.Server,
		},
		BackupType: sdk.BackupFull,
		BackupID:   backupID,
	}
	if spec.Src != "" {
		task.Src = &spec.Src
	}
	if spec.Dst != "" {
		task.Dst = &spec.Dst
	}
	if comments != "" {
		task.Comments = &comments
	}
	return task
}

func (api *Server) handleListAllBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := api.BackupManager.ListAllBackups()
	if err != nil {
		api.writeError(w, err)
		return
	}
	ids := make([]sdk.BackupID, 0, len(backups))
	for _, b := range backups {
		ids = append(ids, sdk.BackupID{ID: b.ID, Source: b.Source, Server: b.ServerID})
	}
	writeJSON(w, http.StatusOK, ids)
}

func (api *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	b, err := api.BackupManager.GetBackup(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireBackup(*b))
}

func (api *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := api.BackupManager.DeleteBackup(r.PathValue("id")); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}

func (api *Server) handleListBackupsByServer(w http.ResponseWriter, r *http.Request) {
	backups, err := api.BackupManager.ListBackups(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	out := make([]sdk.Backup, 0, len(backups))
	for _, b := range backups {
		out = append(out, toWireBackup(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *Server) handleBackupServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	comments := r.URL.Query().Get("comments")

	b, work, err := api.BackupManager.CreateBackup(id, comments, queryBool(r, "snapshot"))
	if err != nil {
		api.writeError(w, err)
		return
	}

	spec := tasks.Spec{Type: events.FileEventBackup, Server: id, Dst: b.Path}
	taskID := api.Tasks.Start(spec, work)
	api.log.Info().Str("server", id).Str("backup", b.ID).Int("task", taskID).Msg("Backup started")
	writeJSON(w, http.StatusOK, backupTask(taskID, spec, b.ID, comments))
}

// handleRestoreBackup refuses while the server process is alive.
func (api *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	id, backupID := r.PathValue("id"), r.PathValue("backup")
	if api.Supervisor.State(id) != events.StateStopped {
		api.writeError(w, errors.Wrap(domain.ErrServerAlreadyRunning, id))
		return
	}

	work, err := api.BackupManager.RestoreBackup(id, backupID)
	if err != nil {
		api.writeError(w, err)
		return
	}
	b, err := api.BackupManager.GetBackup(backupID)
	if err != nil {
		api.writeError(w, err)
		return
	}

	spec := tasks.Spec{Type: events.FileEventRestoreBackup, Server: id, Src: b.Path}
	taskID := api.Tasks.Start(spec, work)
	writeJSON(w, http.StatusOK, backupTask(taskID, spec, backupID, b.Comments))
}

func fileOptions(r *http.Request) sdk.BackupFileOptions {
	return sdk.BackupFileOptions{
		CheckFiles:    queryBool(r, "check_files"),
		IncludeFiles:  queryBool(r, "include_files"),
		IncludeErrors: queryBool(r, "include_errors"),
		OnlyUpdates:   queryBool(r, "only_updates"),
	}
}

// handleBackupTask answers with the server's running backup, or null.
func (api *Server) handleBackupTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := api.Manager.GetServer(id); err != nil {
		api.writeError(w, err)
		return
	}
	b := api.BackupManager.Running(id)
	if b == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, t := range api.Tasks.List() {
		if t.Type != string(events.FileEventBackup) || t.Server == nil || *t.Server != id || t.Result != string(events.ResultPending) {
			continue
		}
		spec := tasks.Spec{Type: events.FileEventBackup, Server: id, Dst: b.Path}
		task := backupTask(t.ID, spec, b.ID, b.Comments)
		task.Progress = t.Progress
		writeJSON(w, http.StatusOK, task)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (api *Server) handleBackupPreview(w http.ResponseWriter, r *http.Request) {
	res, err := api.BackupManager.Preview(r.PathValue("id"), fileOptions(r))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleBackupFiles(w http.ResponseWriter, r *http.Request) {
	res, err := api.BackupManager.Files(r.PathValue("id"), fileOptions(r))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleCompareBackups(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target_backup_id")
	if target == "" {
		http.Error(w, "missing target_backup_id", http.StatusBadRequest)
		return
	}
	res, err := api.BackupManager.Compare(r.PathValue("id"), target, fileOptions(r))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleCompareWithServer(w http.ResponseWriter, r *http.Request) {
	res, err := api.BackupManager.CompareWithServer(r.PathValue("id"), r.PathValue("backup"), fileOptions(r))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleVerifyBackup(w http.ResponseWriter, r *http.Request) {
	res, err := api.BackupManager.Verify(r.PathValue("id"), r.PathValue("backup"), fileOptions(r))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (api *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	f, b, err := api.BackupManager.Export(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	defer f.Close()
	name := filepath.Base(b.Path)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, b.Created, f)
}

func (api *Server) handleBackupFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	rc, info, err := api.BackupManager.OpenFile(r.PathValue("id"), r.PathValue("backup"), p)
	if err != nil {
		api.writeError(w, err)
		return
	}
	defer rc.Close()
	name := path.Base(p)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		api.log.Debug().Err(err).Str("path", p).Msg("Backup file download interrupted")
	}
}
