package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	secretEnv  = "CRAFTDECK_SECRET_KEY"
	secretFile = ".craftdeck_secret"
)

// LoadOrGenerateSecret returns the key used to sign sessions. The
// environment wins; otherwise a random key is created once and kept in
// configDir.
func LoadOrGenerateSecret(configDir string) string {
	if s := os.Getenv(secretEnv); s != "" {
		return s
	}

	path := filepath.Join(configDir, secretFile)
	if data, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal().Err(err).Msg("generating secret")
	}
	secret := hex.EncodeToString(buf)

	if err := os.WriteFile(path, []byte(secret), 0600); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not persist secret, sessions will not survive a restart")
	}
	return secret
}
