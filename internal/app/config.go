package app

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/kelseyhightower/envconfig"
)

// ServerConfig defines how the HTTP backend should run.
type ServerConfig struct {
	Addr         string `envconfig:"PARLOR_ADDR" default:":8080"`
	DBPath       string `envconfig:"PARLOR_DB_PATH"`
	UploadDir    string `envconfig:"PARLOR_UPLOAD_DIR"`
	MaxImageSize int64  `envconfig:"PARLOR_MAX_IMAGE_SIZE"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `envconfig:"PARLOR_SERVER" default:"http://localhost:8080"`
	Username  string `envconfig:"PARLOR_USER"`
}

// LoadServerConfig reads the server configuration from the environment.
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// LoadClientConfig reads the client configuration from the environment.
func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	return filepath.Join(defaultDataDir(), "parlor.db")
}

// DefaultUploadDir returns a per-user directory for uploaded images.
func DefaultUploadDir() string {
	return filepath.Join(defaultDataDir(), "uploads")
}

func defaultDataDir() string {
	if env := os.Getenv("PARLOR_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "parlor")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Parlor")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Parlor")
		}
		return filepath.Join(home, ".local", "share", "parlor")
	}
	return filepath.Join(".", ".parlor")
}
