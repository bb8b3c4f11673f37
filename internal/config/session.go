package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Sessions maps a backend URL to the session token the CLI last obtained
// from it.
type Sessions map[string]string

func SessionsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "craftdeck", "sessions.yaml"), nil
}

// LoadSessions yields an empty set when the file does not exist.
func LoadSessions(path string) (Sessions, error) {
	s := Sessions{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sessions{}, err
	}
	return s, nil
}

// SaveSessions writes the file readable by the owner only.
func SaveSessions(path string, s Sessions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
