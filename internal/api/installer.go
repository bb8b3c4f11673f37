package api

import (
	"encoding/json"
	"net/http"

	"craftdeck/internal/domain"
	"craftdeck/internal/tasks"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
)

func (api *Server) handleServerTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Loaders.Types())
}

func (api *Server) handleServerVersions(w http.ResponseWriter, r *http.Request) {
	l, err := api.Loaders.Get(r.PathValue("type"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	versions, err := l.Versions(r.Context())
	if err != nil {
		api.writeError(w, err)
		return
	}
	if versions == nil {
		versions = []sdk.ServerVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (api *Server) handleServerBuilds(w http.ResponseWriter, r *http.Request) {
	l, err := api.Loaders.Get(r.PathValue("type"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	builds, err := l.Builds(r.Context(), r.PathValue("version"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, builds)
}

func (api *Server) handleServerBuild(w http.ResponseWriter, r *http.Request) {
	b, err := api.Loaders.Build(r.Context(), r.PathValue("type"), r.PathValue("version"), r.PathValue("build"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleInstall downloads a build into a stopped server as a download
// task.
func (api *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if api.Supervisor.State(id) != events.StateStopped {
		api.writeError(w, errors.Wrap(domain.ErrServerAlreadyRunning, id))
		return
	}
	q := r.URL.Query()
	serverType, version, build := q.Get("server_type"), q.Get("version"), q.Get("build")
	work, err := api.Manager.Install(r.Context(), id, serverType, version, build)
	if err == nil {
		api.log.Info().Str("server", id).Str("type", serverType).Str("version", version).Str("build", build).Msg("Installing server software")
	}
	api.startTask(w, tasks.Spec{Type: events.FileEventDownload, Server: id}, work, err)
}

func (api *Server) handleRemoveBuild(w http.ResponseWriter, r *http.Request) {
	removed, err := api.Manager.RemoveBuild(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, removed)
}

func (api *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := api.Manager.ReloadConfig(r.PathValue("id")); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}

func (api *Server) handleImportServer(w http.ResponseWriter, r *http.Request) {
	var req sdk.ImportServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Directory == "" {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	srv, err := api.Manager.ImportServer(r.PathValue("id"), req.Directory)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.log.Info().Str("server", srv.ID).Str("directory", srv.Directory).Msg("Server imported")
	writeResult(w, true)
}

func (api *Server) handleGlobalServerConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.Manager.Defaults)
}
