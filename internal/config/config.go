// Package config loads the board's TOML configuration: the embedded defaults
// overlaid by the user's config file.
package config

import (
	"embed"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/raster"
)

//go:embed default/*.toml
var configFS embed.FS

// Storage backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendHub    = "hub"
)

type Config struct {
	Canvas  CanvasConfig  `toml:"canvas"`
	Style   StyleConfig   `toml:"style"`
	History HistoryConfig `toml:"history"`
	Storage StorageConfig `toml:"storage"`
	Hub     HubConfig     `toml:"hub"`
	Log     LogConfig     `toml:"log"`
}

type CanvasConfig struct {
	Width         int `toml:"width"`
	Height        int `toml:"height"`
	ToolbarOffset int `toml:"toolbar_offset"`
}

// SurfaceSize is the raster size: the window minus the toolbar.
func (c CanvasConfig) SurfaceSize() (int, int) {
	return c.Width, c.Height - c.ToolbarOffset
}

type StyleConfig struct {
	Color       string  `toml:"color"`
	LineWidth   float64 `toml:"line_width"`
	EraserWidth float64 `toml:"eraser_width"`
}

type HistoryConfig struct {
	Limit         int  `toml:"limit"`
	SaveAfterUndo bool `toml:"save_after_undo"`
}

type StorageConfig struct {
	Backend    string `toml:"backend"`
	Dir        string `toml:"dir"`
	Key        string `toml:"key"`
	QuotaBytes int64  `toml:"quota_bytes"`
	HubAddr    string `toml:"hub_addr"`
}

type HubConfig struct {
	Port      int  `toml:"port"`
	Advertise bool `toml:"advertise"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// PenColor parses Style.Color.
func (c *Config) PenColor() (color.NRGBA, error) {
	return raster.ParseColor(c.Style.Color)
}

// DataDir is where the file backend keeps its records.
func (c *Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	if dir := GetConfigDir(); dir != "" {
		return filepath.Join(dir, "data")
	}
	return "whiteboard-data"
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if w, h := c.Canvas.SurfaceSize(); w <= 0 || h <= 0 {
		bad("canvas: surface %dx%d is empty (width %d, height %d, toolbar_offset %d)",
			w, h, c.Canvas.Width, c.Canvas.Height, c.Canvas.ToolbarOffset)
	}
	if c.Canvas.ToolbarOffset < 0 {
		bad("canvas.toolbar_offset: must not be negative")
	}
	if _, err := c.PenColor(); err != nil {
		bad("style.color: %w", err)
	}
	if c.Style.LineWidth <= 0 {
		bad("style.line_width: must be positive, got %g", c.Style.LineWidth)
	}
	if c.Style.EraserWidth <= 0 {
		bad("style.eraser_width: must be positive, got %g", c.Style.EraserWidth)
	}
	if c.History.Limit < 0 {
		bad("history.limit: must not be negative, got %d", c.History.Limit)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendHub:
	default:
		bad("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Key == "" {
		bad("storage.key: must not be empty")
	}
	if c.Storage.QuotaBytes < 0 {
		bad("storage.quota_bytes: must not be negative")
	}
	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		bad("hub.port: %d out of range", c.Hub.Port)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %w", err)
	}
	return errors.Join(errs...)
}
