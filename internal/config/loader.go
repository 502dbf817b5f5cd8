package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// EnvConfigDir overrides the directory config.toml is read from.
const EnvConfigDir = "WHITEBOARD_CONFIG_DIR"

func getConfigFilePath() string {
	// useful during development or for a second board with its own data
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if s, err := os.Stat(dir); err == nil && s.IsDir() {
			return filepath.Join(dir, "config.toml")
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "whiteboard", "config.toml")
	}
	return ""
}

func GetConfigDir() string {
	configFile := getConfigFilePath()
	if configFile == "" {
		return ""
	}
	return filepath.Dir(configFile)
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	data, err := configFS.ReadFile("default/config.toml")
	if err != nil {
		return nil, fmt.Errorf("config: no embedded default: %w", err)
	}
	c := &Config{}
	if err := c.Load(string(data)); err != nil {
		return nil, fmt.Errorf("config: embedded default: %w", err)
	}
	return c, nil
}

// Load decodes data over c; keys absent from data keep their value.
func (c *Config) Load(data string) error {
	md, err := toml.Decode(data, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys %v", undecoded)
	}
	return nil
}

// LoadFile returns the defaults overlaid by the file at path. An empty path
// selects the user's config.toml, which may be absent.
func LoadFile(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		path = getConfigFilePath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := c.Load(string(data)); err != nil {
				return nil, fmt.Errorf("config: %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
