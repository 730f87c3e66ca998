package cli

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/opshell/console-bridge-go/internal/errors"
)

// Config holds configuration for console binary discovery.
type Config struct {
	// ConsolePath is an explicit binary path that skips PATH search.
	ConsolePath string

	// ConsoleCommand is the binary name to search for when ConsolePath is
	// empty.
	ConsoleCommand string

	// Logger is an optional logger for discovery operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the platform console binary.
type Discoverer interface {
	// Discover locates the console binary.
	// Returns the path to the binary or ConsoleNotFoundError.
	Discover() (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new console discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the platform console binary.
func (d *discoverer) Discover() (string, error) {
	// If explicit path provided, use it and only it
	if d.cfg.ConsolePath != "" {
		d.log.Debug("Using explicit console path", "console_path", d.cfg.ConsolePath)

		if _, err := os.Stat(d.cfg.ConsolePath); err == nil {
			return d.cfg.ConsolePath, nil
		}

		d.log.Debug("Explicit console path not found", "console_path", d.cfg.ConsolePath)

		return "", &errors.ConsoleNotFoundError{SearchedPaths: []string{d.cfg.ConsolePath}}
	}

	name := d.cfg.ConsoleCommand
	if name == "" {
		name = "platformctl"
	}

	searchedPaths := make([]string, 0, 4)

	// Search in PATH
	d.log.Debug("Searching for console binary in PATH", "name", name)

	if path, err := exec.LookPath(name); err == nil {
		d.log.Debug("Found console binary in PATH", "path", path)

		return path, nil
	}

	searchedPaths = append(searchedPaths, "$PATH")

	// Check common locations
	commonPaths := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/usr/bin", name),
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		commonPaths = append(commonPaths, filepath.Join(homeDir, ".local/bin", name))
	}

	for _, path := range commonPaths {
		searchedPaths = append(searchedPaths, path)
		d.log.Debug("Checking common path", "path", path)

		if _, err := os.Stat(path); err == nil {
			d.log.Debug("Found console binary at common path", "path", path)

			return path, nil
		}
	}

	d.log.Warn("Console binary not found in any searched paths", "searched_paths", searchedPaths)

	return "", &errors.ConsoleNotFoundError{SearchedPaths: searchedPaths}
}
