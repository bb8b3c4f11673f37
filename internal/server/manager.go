package server

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"gopkg.in/yaml.v3"
)

const (
	configFileName         = "craftdeck.yaml"
	defaultStopCommand     = "stop"
	defaultShutdownTimeout = 30
	defaultServerType      = "vanilla"
)

// JavaResolver maps a java preset name to a java binary.
type JavaResolver interface {
	Resolve(preset string) (string, error)
}

type Manager struct {
	ServersPath string
	Store       domain.ServerRepository
	Java        JavaResolver
	// Builds finds and downloads server software for Install.
	Builds BuildSource
	// Defaults fill what a create request leaves out.
	Defaults sdk.GlobalServerConfig
}

func NewManager(serversPath string, store domain.ServerRepository) *Manager {
	return &Manager{
		ServersPath: serversPath,
		Store:       store,
	}
}

func sanitizeFolderName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	reg := regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	sanitized := reg.ReplaceAllString(name, "")
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}
	return strings.Trim(sanitized, ".")
}

// launchFile mirrors sdk.LaunchOption in the per-server config file.
type launchFile struct {
	JavaPreset            string `yaml:"java_preset,omitempty"`
	JavaExecutable        string `yaml:"java_executable,omitempty"`
	JavaOptions           string `yaml:"java_options,omitempty"`
	JarFile               string `yaml:"jar_file"`
	ServerOptions         string `yaml:"server_options,omitempty"`
	MaxHeapMemory         int    `yaml:"max_heap_memory,omitempty"`
	MinHeapMemory         int    `yaml:"min_heap_memory,omitempty"`
	EnableFreeMemoryCheck bool   `yaml:"enable_free_memory_check"`
	EnableReporterAgent   bool   `yaml:"enable_reporter_agent"`
}

// configFile is the craftdeck.yaml kept in every server directory.
type configFile struct {
	Name                string     `yaml:"name"`
	Type                string     `yaml:"type"`
	LaunchOption        launchFile `yaml:"launch_option"`
	EnableLaunchCommand bool       `yaml:"enable_launch_command"`
	LaunchCommand       string     `yaml:"launch_command,omitempty"`
	StopCommand         string     `yaml:"stop_command"`
	ShutdownTimeout     int        `yaml:"shutdown_timeout"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optNum(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func fromLaunchOption(lo sdk.LaunchOption) launchFile {
	return launchFile{
		JavaPreset:            str(lo.JavaPreset),
		JavaExecutable:        str(lo.JavaExecutable),
		JavaOptions:           str(lo.JavaOptions),
		JarFile:               lo.JarFile,
		ServerOptions:         str(lo.ServerOptions),
		MaxHeapMemory:         num(lo.MaxHeapMemory),
		MinHeapMemory:         num(lo.MinHeapMemory),
		EnableFreeMemoryCheck: lo.EnableFreeMemoryCheck,
		EnableReporterAgent:   lo.EnableReporterAgent,
	}
}

func (l launchFile) toLaunchOption() sdk.LaunchOption {
	return sdk.LaunchOption{
		JavaPreset:            optStr(l.JavaPreset),
		JavaExecutable:        optStr(l.JavaExecutable),
		JavaOptions:           optStr(l.JavaOptions),
		JarFile:               l.JarFile,
		ServerOptions:         optStr(l.ServerOptions),
		MaxHeapMemory:         optNum(l.MaxHeapMemory),
		MinHeapMemory:         optNum(l.MinHeapMemory),
		EnableFreeMemoryCheck: l.EnableFreeMemoryCheck,
		EnableReporterAgent:   l.EnableReporterAgent,
	}
}

// javaArgs is the java binary followed by the heap and java options. Java
// presets are looked up through java; a nil resolver knows no presets.
func (l launchFile) javaArgs(java JavaResolver) ([]string, error) {
	bin := l.JavaExecutable
	if l.JavaPreset != "" {
		if java == nil {
			return nil, fmt.Errorf("%s: %w", l.JavaPreset, domain.ErrUnknownJavaPreset)
		}
		resolved, err := java.Resolve(l.JavaPreset)
		if err != nil {
			return nil, err
		}
		bin = resolved
	}
	if bin == "" {
		bin = "java"
	}
	args := []string{bin}
	if l.MaxHeapMemory > 0 {
		args = append(args, fmt.Sprintf("-Xmx%dM", l.MaxHeapMemory))
	}
	if l.MinHeapMemory > 0 {
		args = append(args, fmt.Sprintf("-Xms%dM", l.MinHeapMemory))
	}
	if l.JavaOptions != "" {
		args = append(args, l.JavaOptions)
	}
	return args, nil
}

// command is the shell command that runs the server.
func (c configFile) command(java JavaResolver) (string, error) {
	if c.EnableLaunchCommand {
		if strings.TrimSpace(c.LaunchCommand) == "" {
			return "", fmt.Errorf("empty launch command: %w", domain.ErrServerLaunch)
		}
		return c.LaunchCommand, nil
	}

	lo := c.LaunchOption
	if lo.JarFile == "" {
		return "", fmt.Errorf("no jar file: %w", domain.ErrServerLaunch)
	}
	args, err := lo.javaArgs(java)
	if err != nil {
		return "", err
	}
	args = append(args, "-jar", lo.JarFile)
	if lo.ServerOptions != "" {
		args = append(args, lo.ServerOptions)
	}
	return strings.Join(args, " "), nil
}

func writeConfigFile(dir string, c configFile) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0644)
}

func readConfigFile(dir string) (configFile, error) {
	var c configFile
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if os.IsNotExist(err) {
		return c, domain.ErrNoConfigFile
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", configFileName, err)
	}
	return c, nil
}

// serverDirectory places relative directories under ServersPath.
func (m *Manager) serverDirectory(id string, req sdk.CreateServerRequest) (string, error) {
	dir := req.Directory
	if dir == "" {
		dir = sanitizeFolderName(req.Name)
		if dir == "" {
			dir = id
		}
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.ServersPath, dir)
	}
	return filepath.Abs(dir)
}

// checkNew fails when the id or the directory is already registered.
func (m *Manager) checkNew(id, dir string) error {
	if existing, err := m.Store.GetServerByID(id); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%s: %w", id, domain.ErrServerExists)
	}
	servers, err := m.Store.ListServers()
	if err != nil {
		return err
	}
	for _, s := range servers {
		if s.Directory == dir {
			return fmt.Errorf("%s is used by %s: %w", dir, s.ID, domain.ErrPathExists)
		}
	}
	return nil
}

func (m *Manager) fillDefaults(c *configFile) {
	d := m.Defaults
	if c.StopCommand == "" {
		c.StopCommand = str(d.StopCommand)
	}
	if c.StopCommand == "" {
		c.StopCommand = defaultStopCommand
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = num(d.ShutdownTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// withLaunchDefaults fills unset launch options from the global defaults.
func (m *Manager) withLaunchDefaults(lo sdk.LaunchOption) sdk.LaunchOption {
	d := m.Defaults.LaunchOption
	if lo.JavaPreset == nil && lo.JavaExecutable == nil {
		lo.JavaPreset = d.JavaPreset
		lo.JavaExecutable = d.JavaExecutable
	}
	if lo.JavaOptions == nil {
		lo.JavaOptions = d.JavaOptions
	}
	if lo.ServerOptions == nil {
		lo.ServerOptions = d.ServerOptions
	}
	if lo.MaxHeapMemory == nil {
		lo.MaxHeapMemory = d.MaxHeapMemory
	}
	if lo.MinHeapMemory == nil {
		lo.MinHeapMemory = d.MinHeapMemory
	}
	if lo.JarFile == "" {
		lo.JarFile = d.JarFile
	}
	return lo
}

// register computes the launch command from c and stores the server.
func (m *Manager) register(id, dir string, c configFile) (*domain.Server, error) {
	command, err := c.command(m.Java)
	if err != nil {
		return nil, err
	}
	srv := &domain.Server{
		ID:              id,
		Name:            c.Name,
		Type:            c.Type,
		Directory:       dir,
		LaunchCommand:   command,
		StopCommand:     c.StopCommand,
		ShutdownTimeout: c.ShutdownTimeout,
		Status:          "stopped",
		CreatedAt:       time.Now(),
	}
	if err := m.Store.SaveServer(srv); err != nil {
		return nil, fmt.Errorf("DB error: %w", err)
	}
	return srv, nil
}

// CreateServer registers a server under the id the client picked. An
// existing directory is adopted; a missing one is created.
func (m *Manager) CreateServer(id string, req sdk.CreateServerRequest) (*domain.Server, error) {
	dir, err := m.serverDirectory(id, req)
	if err != nil {
		return nil, err
	}
	if err := m.checkNew(id, dir); err != nil {
		return nil, err
	}

	lo := req.LaunchOption
	if !req.EnableLaunchCommand {
		lo = m.withLaunchDefaults(lo)
	}
	cfg := configFile{
		Name:                req.Name,
		Type:                req.Type,
		LaunchOption:        fromLaunchOption(lo),
		EnableLaunchCommand: req.EnableLaunchCommand,
		LaunchCommand:       req.LaunchCommand,
		StopCommand:         str(req.StopCommand),
		ShutdownTimeout:     num(req.ShutdownTimeout),
	}
	if cfg.Type == "" {
		cfg.Type = defaultServerType
	}
	m.fillDefaults(&cfg)
	if _, err := cfg.command(m.Java); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("filesystem error: %w", err)
	}
	if err := writeConfigFile(dir, cfg); err != nil {
		return nil, fmt.Errorf("could not write %s: %w", configFileName, err)
	}
	return m.register(id, dir, cfg)
}

// ImportServer registers a directory that already holds a craftdeck.yaml,
// keeping the configuration found there.
func (m *Manager) ImportServer(id, directory string) (*domain.Server, error) {
	dir := directory
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.ServersPath, dir)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", dir, domain.ErrPathNotFound)
	} else if err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, domain.ErrNotDirectory)
	}
	if err := m.checkNew(id, dir); err != nil {
		return nil, err
	}

	c, err := readConfigFile(dir)
	if err != nil {
		return nil, err
	}
	if c.Type == "" {
		c.Type = defaultServerType
	}
	if c.Name == "" {
		c.Name = filepath.Base(dir)
	}
	m.fillDefaults(&c)
	return m.register(id, dir, c)
}

func (m *Manager) GetServer(id string) (*domain.Server, error) {
	srv, err := m.Store.GetServerByID(id)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrServerNotFound)
	}
	return srv, nil
}

func (m *Manager) ListServers() ([]domain.Server, error) {
	return m.Store.ListServers()
}

// DeleteServer unregisters the server. Its files stay; deleteConfigFile also
// removes craftdeck.yaml from the directory.
func (m *Manager) DeleteServer(id string, deleteConfigFile bool) error {
	srv, err := m.GetServer(id)
	if err != nil {
		return err
	}

	if deleteConfigFile {
		err := os.Remove(filepath.Join(srv.Directory, configFileName))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error deleting config file: %w", err)
		}
	}

	if err := m.Store.DeleteServer(id); err != nil {
		return fmt.Errorf("error deleting server from database: %w", err)
	}
	return nil
}

func (m *Manager) Config(id string) (*sdk.ServerConfig, error) {
	srv, err := m.GetServer(id)
	if err != nil {
		return nil, err
	}
	c, err := readConfigFile(srv.Directory)
	if err != nil {
		return nil, err
	}

	created := srv.CreatedAt
	timeout := c.ShutdownTimeout
	return &sdk.ServerConfig{
		Name:                c.Name,
		Type:                c.Type,
		LaunchOption:        c.LaunchOption.toLaunchOption(),
		EnableLaunchCommand: c.EnableLaunchCommand,
		LaunchCommand:       c.LaunchCommand,
		StopCommand:         optStr(c.StopCommand),
		ShutdownTimeout:     &timeout,
		CreatedAt:           &created,
		LastLaunchedAt:      srv.LastLaunchedAt,
		LastBackupAt:        srv.LastBackupAt,
	}, nil
}

// UpdateConfig replaces the editable parts of the server's configuration.
// Timestamps in cfg are ignored.
func (m *Manager) UpdateConfig(id string, cfg sdk.ServerConfig) error {
	srv, err := m.GetServer(id)
	if err != nil {
		return err
	}

	c := configFile{
		Name:                cfg.Name,
		Type:                cfg.Type,
		LaunchOption:        fromLaunchOption(cfg.LaunchOption),
		EnableLaunchCommand: cfg.EnableLaunchCommand,
		LaunchCommand:       cfg.LaunchCommand,
		StopCommand:         str(cfg.StopCommand),
		ShutdownTimeout:     num(cfg.ShutdownTimeout),
	}
	if c.Type == "" {
		c.Type = srv.Type
	}
	m.fillDefaults(&c)
	if _, err := c.command(m.Java); err != nil {
		return err
	}
	if err := writeConfigFile(srv.Directory, c); err != nil {
		return err
	}
	return m.apply(srv, c)
}

// apply copies the config file's settings onto the stored server.
func (m *Manager) apply(srv *domain.Server, c configFile) error {
	command, err := c.command(m.Java)
	if err != nil {
		return err
	}
	srv.Name = c.Name
	srv.Type = c.Type
	srv.LaunchCommand = command
	srv.StopCommand = c.StopCommand
	srv.ShutdownTimeout = c.ShutdownTimeout
	return m.Store.UpdateServer(srv)
}

// ReloadConfig reads craftdeck.yaml again after it was edited on disk.
func (m *Manager) ReloadConfig(id string) error {
	srv, err := m.GetServer(id)
	if err != nil {
		return err
	}
	c, err := readConfigFile(srv.Directory)
	if err != nil {
		return err
	}
	if c.Type == "" {
		c.Type = srv.Type
	}
	m.fillDefaults(&c)
	return m.apply(srv, c)
}
