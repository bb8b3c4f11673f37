package app

import (
	"context"
	"os"
	"time"

	"craftdeck/internal/backup"
	"craftdeck/internal/config"
	"craftdeck/internal/jvm"
	"craftdeck/internal/loader"
	"craftdeck/internal/monitor"
	"craftdeck/internal/runner"
	"craftdeck/internal/server"
	"craftdeck/internal/storage"
	"craftdeck/internal/tasks"
	"craftdeck/internal/ws"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const consoleHistory = 500

// Container holds the devserver's long-lived services.
type Container struct {
	Config *config.Config
	Secret string
	Log    zerolog.Logger

	Store         *storage.GormStore
	Java          *jvm.Presets
	Loaders       *loader.Registry
	ServerManager *server.Manager
	Hub           *ws.Hub
	Tasks         *tasks.Engine
	Supervisor    *runner.Supervisor
	BackupManager *backup.Manager
	Sampler       *monitor.Sampler
}

// New opens the database and builds every service. Nothing runs until Run.
func New(cfg *config.Config, secret string, log zerolog.Logger) (*Container, error) {
	for _, path := range []string{cfg.ServersPath, cfg.BackupsPath} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", path)
		}
	}

	store, err := storage.NewGormStore(cfg.DatabasePath, log)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	hub := ws.NewHub(consoleHistory, log.With().Str("component", "ws").Logger())
	java := jvm.NewPresets(cfg.RuntimesPath)
	srvMgr := server.NewManager(cfg.ServersPath, store)
	loaders := loader.NewRegistry(loader.NewHTTPClient(), loader.DefaultEndpoints())
	srvMgr.Java = java
	srvMgr.Builds = loaders
	srvMgr.Defaults = cfg.ServerDefaults.Global()
	supervisor := runner.NewSupervisor(store, hub, log.With().Str("component", "runner").Logger())
	hub.Inbound = supervisor

	c := &Container{
		Config:        cfg,
		Secret:        secret,
		Log:           log,
		Store:         store,
		Java:          java,
		Loaders:       loaders,
		ServerManager: srvMgr,
		Hub:           hub,
		Tasks:         tasks.NewEngine(hub, log.With().Str("component", "tasks").Logger()),
		Supervisor:    supervisor,
		BackupManager: backup.NewManager(cfg.BackupsPath, srvMgr, store),
		Sampler: monitor.NewSampler(supervisor, hub, time.Duration(cfg.SampleInterval)*time.Second,
			log.With().Str("component", "monitor").Logger()),
	}

	if err := supervisor.ResetRunningStates(); err != nil {
		log.Warn().Err(err).Msg("Failed to reset server states")
	}
	return c, nil
}

// Run starts the background services. They stop when ctx is done.
func (c *Container) Run(ctx context.Context) {
	go c.Hub.Run()
	go c.Sampler.Run(ctx)
}

// Shutdown stops servers and tasks, then closes the database.
func (c *Container) Shutdown() {
	c.Supervisor.Shutdown()
	c.Tasks.Shutdown()
	c.Hub.Stop()
	if err := c.Store.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("Closing database failed")
	}
}
