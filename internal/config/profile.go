package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultURL = "http://localhost:23008"

	urlEnv      = "CRAFTDECK_URL"
	logLevelEnv = "CRAFTDECK_LOG_LEVEL"
)

// Profile is the CLI's view of which backend to talk to and how.
type Profile struct {
	URL              string        `yaml:"url"`
	Username         string        `yaml:"username,omitempty"`
	LogLevel         string        `yaml:"log_level"`
	TaskTimeout      time.Duration `yaml:"task_timeout"`
	TaskPollInterval time.Duration `yaml:"task_poll_interval"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
}

func DefaultProfile() Profile {
	return Profile{
		URL:              DefaultURL,
		LogLevel:         "warn",
		TaskTimeout:      60 * time.Second,
		TaskPollInterval: 500 * time.Millisecond,
		ReconnectDelay:   time.Second,
	}
}

func ProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "craftdeck", "cli.yaml"), nil
}

// LoadProfile reads the profile at path. A missing file yields the
// defaults. Environment variables override the file.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return p, err
	}

	if v := os.Getenv(urlEnv); v != "" {
		p.URL = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		p.LogLevel = v
	}

	def := DefaultProfile()
	if p.TaskTimeout <= 0 {
		p.TaskTimeout = def.TaskTimeout
	}
	if p.TaskPollInterval <= 0 {
		p.TaskPollInterval = def.TaskPollInterval
	}
	if p.ReconnectDelay <= 0 {
		p.ReconnectDelay = def.ReconnectDelay
	}
	return p, nil
}

func SaveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
