package config

import (
	"fmt"
	"os"
	"path/filepath"

	"craftdeck/pkg/sdk"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigName   = "config.yaml"
	defaultServersDir   = "servers"
	defaultBackupsDir   = "backups"
	defaultRuntimesDir  = "runtimes"
	defaultDatabaseFile = "devserver.db"
	defaultPort         = 23008
	defaultSampleEvery  = 2
)

// Config is the devserver configuration.
type Config struct {
	ServersPath    string `yaml:"servers_path"`
	BackupsPath    string `yaml:"backups_path"`
	RuntimesPath   string `yaml:"runtimes_path"`
	DatabasePath   string `yaml:"database_path"`
	Port           int    `yaml:"port"`
	SampleInterval int    `yaml:"sample_interval_seconds"`
	LogLevel       string `yaml:"log_level"`
	AuthRequired   bool   `yaml:"auth_required"`

	ServerDefaults ServerDefaults `yaml:"server_defaults"`
}

// ServerDefaults are filled into servers created without these settings.
type ServerDefaults struct {
	JavaPreset      string `yaml:"java_preset,omitempty"`
	JavaExecutable  string `yaml:"java_executable,omitempty"`
	JavaOptions     string `yaml:"java_options,omitempty"`
	ServerOptions   string `yaml:"server_options,omitempty"`
	JarFile         string `yaml:"jar_file,omitempty"`
	MaxHeapMemory   int    `yaml:"max_heap_memory,omitempty"`
	MinHeapMemory   int    `yaml:"min_heap_memory,omitempty"`
	StopCommand     string `yaml:"stop_command"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// Global is the defaults as the API reports them.
func (d ServerDefaults) Global() sdk.GlobalServerConfig {
	return sdk.GlobalServerConfig{
		LaunchOption: sdk.LaunchOption{
			JavaPreset:     optional(d.JavaPreset),
			JavaExecutable: optional(d.JavaExecutable),
			JavaOptions:    optional(d.JavaOptions),
			ServerOptions:  optional(d.ServerOptions),
			JarFile:        d.JarFile,
			MaxHeapMemory:  optional(d.MaxHeapMemory),
			MinHeapMemory:  optional(d.MinHeapMemory),
		},
		StopCommand:     optional(d.StopCommand),
		ShutdownTimeout: optional(d.ShutdownTimeout),
	}
}

// DefaultDir is where the devserver keeps its state unless told otherwise.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "craftdeck-devserver"), nil
}

func LoadConfig(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, defaultConfigName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig(configPath, configDir)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg.fillDefaults(configDir)
	return &cfg, nil
}

func (c *Config) fillDefaults(configDir string) {
	if c.ServersPath == "" {
		c.ServersPath = filepath.Join(configDir, defaultServersDir)
	}
	if c.BackupsPath == "" {
		c.BackupsPath = filepath.Join(configDir, defaultBackupsDir)
	}
	if c.RuntimesPath == "" {
		c.RuntimesPath = filepath.Join(configDir, defaultRuntimesDir)
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(configDir, defaultDatabaseFile)
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = defaultSampleEvery
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ServerDefaults.StopCommand == "" {
		c.ServerDefaults.StopCommand = "stop"
	}
	if c.ServerDefaults.ShutdownTimeout <= 0 {
		c.ServerDefaults.ShutdownTimeout = 30
	}
}

func createDefaultConfig(configPath, configDir string) (*Config, error) {
	cfg := Config{AuthRequired: true}
	cfg.fillDefaults(configDir)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return nil, err
	}

	return &cfg, nil
}
