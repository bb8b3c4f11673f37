package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"craftdeck/internal/app"
	"craftdeck/internal/backup"
	"craftdeck/internal/domain"
	"craftdeck/internal/jvm"
	"craftdeck/internal/loader"
	"craftdeck/internal/runner"
	"craftdeck/internal/server"
	"craftdeck/internal/tasks"
	"craftdeck/internal/version"
	"craftdeck/internal/ws"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Server struct {
	Manager       *server.Manager
	Supervisor    *runner.Supervisor
	Store         domain.Repository
	BackupManager *backup.Manager
	Tasks         *tasks.Engine
	Hub           *ws.Hub
	Java          *jvm.Presets
	Loaders       *loader.Registry

	Secret       string
	AuthRequired bool

	log zerolog.Logger
}

func NewAPIServer(container *app.Container) *Server {
	return &Server{
		Manager:       container.ServerManager,
		Supervisor:    container.Supervisor,
		Store:         container.Store,
		BackupManager: container.BackupManager,
		Tasks:         container.Tasks,
		Hub:           container.Hub,
		Java:          container.Java,
		Loaders:       container.Loaders,
		Secret:        container.Secret,
		AuthRequired:  container.Config.AuthRequired,
		log:           container.Log.With().Str("component", "api").Logger(),
	}
}

// Handler routes every endpoint. Everything but the session endpoints
// requires a valid session when AuthRequired is set.
func (api *Server) Handler() http.Handler {
	protected := http.NewServeMux()

	protected.HandleFunc("GET /servers", api.handleListServers)
	protected.HandleFunc("GET /java/presets", api.handleJavaPresets)
	protected.HandleFunc("GET /server/{id}", api.handleGetServer)
	protected.HandleFunc("POST /server/{id}", api.handleCreateServer)
	protected.HandleFunc("DELETE /server/{id}", api.handleDeleteServer)
	protected.HandleFunc("POST /server/{id}/start", api.handleStartServer)
	protected.HandleFunc("POST /server/{id}/stop", api.handleStopServer)
	protected.HandleFunc("POST /server/{id}/restart", api.handleRestartServer)
	protected.HandleFunc("POST /server/{id}/kill", api.handleKillServer)
	protected.HandleFunc("POST /server/{id}/send_line", api.handleSendLine)
	protected.HandleFunc("GET /server/{id}/config", api.handleGetConfig)
	protected.HandleFunc("PUT /server/{id}/config", api.handlePutConfig)
	protected.HandleFunc("GET /server/{id}/eula", api.handleGetEula)
	protected.HandleFunc("POST /server/{id}/eula", api.handleSetEula)
	protected.HandleFunc("POST /server/{id}/config/reload", api.handleReloadConfig)
	protected.HandleFunc("POST /server/{id}/import", api.handleImportServer)
	protected.HandleFunc("POST /server/{id}/install", api.handleInstall)
	protected.HandleFunc("DELETE /server/{id}/build", api.handleRemoveBuild)
	protected.HandleFunc("GET /config/server_global", api.handleGlobalServerConfig)

	protected.HandleFunc("GET /jardl/types", api.handleServerTypes)
	protected.HandleFunc("GET /jardl/{type}/versions", api.handleServerVersions)
	protected.HandleFunc("GET /jardl/{type}/version/{version}/builds", api.handleServerBuilds)
	protected.HandleFunc("GET /jardl/{type}/version/{version}/build/{build}", api.handleServerBuild)

	protected.HandleFunc("GET /server/{id}/files", api.handleListFiles)
	protected.HandleFunc("GET /server/{id}/file/info", api.handleFileInfo)
	protected.HandleFunc("GET /server/{id}/file", api.handleDownload)
	protected.HandleFunc("POST /server/{id}/file", api.handleUpload)
	protected.HandleFunc("DELETE /server/{id}/file", api.handleRemove)
	protected.HandleFunc("PUT /server/{id}/file/copy", api.handleCopy)
	protected.HandleFunc("PUT /server/{id}/file/move", api.handleMove)
	protected.HandleFunc("POST /server/{id}/file/mkdir", api.handleMkdir)
	protected.HandleFunc("POST /server/{id}/file/archive/make", api.handleMakeArchive)
	protected.HandleFunc("POST /server/{id}/file/archive/extract", api.handleExtractArchive)
	protected.HandleFunc("GET /file/tasks", api.handleListTasks)
	protected.HandleFunc("GET /storage/info", api.handleStorageInfo)

	protected.HandleFunc("GET /backups", api.handleListAllBackups)
	protected.HandleFunc("GET /backup/{id}", api.handleGetBackup)
	protected.HandleFunc("DELETE /backup/{id}", api.handleDeleteBackup)
	protected.HandleFunc("GET /server/{id}/backups", api.handleListBackupsByServer)
	protected.HandleFunc("POST /server/{id}/backup", api.handleBackupServer)
	protected.HandleFunc("POST /server/{id}/backup/{backup}/restore", api.handleRestoreBackup)
	protected.HandleFunc("GET /server/{id}/backup", api.handleBackupTask)
	protected.HandleFunc("GET /server/{id}/backup/{$}", api.handleBackupTask)
	protected.HandleFunc("GET /server/{id}/backup/preview", api.handleBackupPreview)
	protected.HandleFunc("POST /server/{id}/backup/{backup}/verify", api.handleVerifyBackup)
	protected.HandleFunc("GET /server/{id}/backup/{backup}/files/compare", api.handleCompareWithServer)
	protected.HandleFunc("GET /server/{id}/backup/{backup}/file", api.handleBackupFile)
	protected.HandleFunc("GET /backup/{id}/files", api.handleBackupFiles)
	protected.HandleFunc("GET /backup/{id}/files/compare", api.handleCompareBackups)
	protected.HandleFunc("GET /backup/{id}/export", api.handleExportBackup)

	protected.Handle("GET /users", api.requireAdmin(http.HandlerFunc(api.handleListUsers)))
	protected.Handle("POST /user/add", api.requireAdmin(http.HandlerFunc(api.handleAddUser)))
	protected.Handle("DELETE /user/remove", api.requireAdmin(http.HandlerFunc(api.handleRemoveUser)))

	protected.HandleFunc("GET /ws", api.Hub.ServeWs)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /version", api.handleVersion)
	mux.HandleFunc("POST /setup", api.handleSetup)
	mux.HandleFunc("POST /login", api.handleLogin)
	mux.HandleFunc("GET /login", api.handleSessionValid)
	mux.HandleFunc("POST /logout", api.handleLogout)
	mux.Handle("/", api.AuthMiddleware(protected))

	return api.requestLogger(api.corsMiddleware(mux))
}

// Start serves until ctx is cancelled, then shuts the listener down.
func (api *Server) Start(ctx context.Context, listenAddr string) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			api.log.Warn().Err(err).Msg("Shutdown was not clean")
		}
	}()

	api.log.Info().Str("addr", listenAddr).Msg("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, ok bool) {
	writeJSON(w, http.StatusOK, map[string]bool{"result": ok})
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func (api *Server) toWireServer(srv domain.Server) sdk.Server {
	return sdk.Server{
		ID:        srv.ID,
		Name:      srv.Name,
		Type:      srv.Type,
		State:     api.Supervisor.State(srv.ID),
		Directory: srv.Directory,
		IsLoaded:  true,
	}
}

func (api *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := api.Manager.ListServers()
	if err != nil {
		api.writeError(w, err)
		return
	}
	out := make([]sdk.Server, 0, len(servers))
	for _, srv := range servers {
		out = append(out, api.toWireServer(srv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (api *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Info{Version: version.Current})
}

func (api *Server) handleJavaPresets(w http.ResponseWriter, r *http.Request) {
	presets := []string{}
	if api.Java != nil {
		found, err := api.Java.List()
		if err != nil {
			api.writeError(w, err)
			return
		}
		presets = append(presets, found...)
	}
	writeJSON(w, http.StatusOK, presets)
}

func (api *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := api.Manager.GetServer(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.toWireServer(*srv))
}

func (api *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req sdk.CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	srv, err := api.Manager.CreateServer(r.PathValue("id"), req)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.log.Info().Str("server", srv.ID).Str("directory", srv.Directory).Msg("Server created")
	writeResult(w, true)
}

func (api *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if api.Supervisor.State(id) != events.StateStopped {
		api.writeError(w, errors.Wrap(domain.ErrServerAlreadyRunning, id))
		return
	}
	if err := api.Manager.DeleteServer(id, queryBool(r, "delete_config_file")); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}

func (api *Server) serverAction(action func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := api.Manager.GetServer(id); err != nil {
			api.writeError(w, err)
			return
		}
		if err := action(id); err != nil {
			api.writeError(w, err)
			return
		}
		writeResult(w, true)
	}
}

func (api *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	api.serverAction(api.Supervisor.StartServer)(w, r)
}

func (api *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	api.serverAction(api.Supervisor.StopServer)(w, r)
}

func (api *Server) handleRestartServer(w http.ResponseWriter, r *http.Request) {
	api.serverAction(api.Supervisor.RestartServer)(w, r)
}

func (api *Server) handleKillServer(w http.ResponseWriter, r *http.Request) {
	api.serverAction(api.Supervisor.KillServer)(w, r)
}

func (api *Server) handleSendLine(w http.ResponseWriter, r *http.Request) {
	line := r.URL.Query().Get("line")
	api.serverAction(func(id string) error {
		return api.Supervisor.SendLine(id, line)
	})(w, r)
}

func (api *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := api.Manager.Config(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (api *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg sdk.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := api.Manager.UpdateConfig(r.PathValue("id"), cfg); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}

func (api *Server) handleGetEula(w http.ResponseWriter, r *http.Request) {
	accepted, err := api.Manager.Eula(r.PathValue("id"))
	if err != nil {
		api.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"eula": accepted})
}

func (api *Server) handleSetEula(w http.ResponseWriter, r *http.Request) {
	if err := api.Manager.SetEula(r.PathValue("id"), queryBool(r, "accept")); err != nil {
		api.writeError(w, err)
		return
	}
	writeResult(w, true)
}
