// Package config handles the netbusd daemon configuration.
//
// Config is stored at $XDG_CONFIG_HOME/netbus/netbusd.yaml (defaults to
// ~/.config/netbus/netbusd.yaml). Every field is optional; a missing file
// yields Default().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"netbus/internal/bus"
	"netbus/internal/interfaces"
	"netbus/internal/logging"

	"gopkg.in/yaml.v3"
)

const (
	BusSystem  = bus.System
	BusSession = bus.Session
)

// Config holds the daemon settings.
type Config struct {
	// Bus is "system", "session", or a bus address such as
	// unix:path=/run/dbus/system_bus_socket.
	Bus     string `yaml:"bus"`
	Service string `yaml:"service"`
	// StatePath is the sqlite database holding connection profiles.
	StatePath string `yaml:"state-path"`
	// WatchLinks republishes devices when netlink reports a link change.
	WatchLinks bool      `yaml:"watch-links"`
	Log        LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Bus:        BusSystem,
		Service:    interfaces.ServiceName,
		StatePath:  defaultStatePath(),
		WatchLinks: true,
		Log: LogConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
		},
	}
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/netbus/netbusd.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "netbus", "netbusd.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "netbus", "netbusd.yaml")
}

func defaultStatePath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "state", "netbus", "connections.db")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "netbus", "connections.db")
}

// Load reads the config file at path, or at Path() when path is empty.
// Fields absent from the file keep their defaults. If the file does not
// exist, Default() is returned (not an error).
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Bus) == "" {
		return errors.New("bus is required")
	}
	if c.Bus != BusSystem && c.Bus != BusSession && !strings.Contains(c.Bus, ":") {
		return fmt.Errorf("bus %q is neither system, session nor an address", c.Bus)
	}
	if strings.TrimSpace(c.Service) == "" {
		return errors.New("service is required")
	}
	if strings.TrimSpace(c.StatePath) == "" {
		return errors.New("state-path is required")
	}
	if err := logging.Validate(c.Log.Level, c.Log.Format); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
