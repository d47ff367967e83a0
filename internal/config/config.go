// Package config reads the engine's configuration record: default output
// directory, scratch directory, user agent, category map, and the
// concurrency cap, merged from three layered YAML files per spec §3/§6.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category maps a named bucket (Images, Videos, ...) to the extensions that
// route a download into it and the directory it lands in.
type Category struct {
	Extensions []string `yaml:"extensions"`
	Directory  string   `yaml:"directory"`
}

// Config is the resolved record the engine consumes. All paths are already
// tilde-expanded.
type Config struct {
	DefaultDirectory       string              `yaml:"default_directory"`
	ScratchDirectory       string              `yaml:"scratch_directory"`
	UserAgent              string              `yaml:"user_agent"`
	Categories             map[string]Category `yaml:"categories"`
	MaxConcurrentDownloads int                 `yaml:"max_concurrent_downloads"`
}

// patch mirrors Config with pointer/nil-able fields so a layer that omits a
// key never overwrites an earlier layer's value for it.
type patch struct {
	DefaultDirectory       *string             `yaml:"default_directory"`
	ScratchDirectory       *string             `yaml:"scratch_directory"`
	UserAgent              *string             `yaml:"user_agent"`
	Categories             map[string]Category `yaml:"categories"`
	MaxConcurrentDownloads *int                `yaml:"max_concurrent_downloads"`
}

// Default search paths, in layer order: packaged default, system-wide,
// per-user. Later layers patch earlier ones field-by-field.
const (
	PackagedDefaultPath = "/usr/share/flowd/config/config.yaml"
	SystemWidePath      = "/etc/flowd/config.yaml"
)

func UserConfigPath() string {
	return "~/.config/flowd/config.yaml"
}

// Load merges the three layers and tilde-expands every path field. A
// missing layer file is not an error; a layer that exists but is malformed
// YAML is.
func Load() (Config, error) {
	return LoadPaths(PackagedDefaultPath, SystemWidePath, UserConfigPath())
}

// LoadPaths merges layers from the given paths, in order, allowing callers
// (and tests) to override the fixed search paths.
func LoadPaths(paths ...string) (Config, error) {
	cfg := Config{
		Categories: map[string]Category{},
	}

	for _, p := range paths {
		pl, err := readPatch(p)
		if err != nil {
			return Config{}, err
		}
		if pl == nil {
			continue
		}
		applyPatch(&cfg, pl)
	}

	cfg.DefaultDirectory = expandTilde(cfg.DefaultDirectory)
	cfg.ScratchDirectory = expandTilde(cfg.ScratchDirectory)
	for name, cat := range cfg.Categories {
		cat.Directory = expandTilde(cat.Directory)
		cfg.Categories[name] = cat
	}

	return cfg, nil
}

func readPatch(path string) (*patch, error) {
	expanded := expandTilde(path)
	data, err := os.ReadFile(expanded)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", expanded, err)
	}

	var p patch
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", expanded, err)
	}
	return &p, nil
}

func applyPatch(cfg *Config, p *patch) {
	if p.DefaultDirectory != nil {
		cfg.DefaultDirectory = *p.DefaultDirectory
	}
	if p.ScratchDirectory != nil {
		cfg.ScratchDirectory = *p.ScratchDirectory
	}
	if p.UserAgent != nil {
		cfg.UserAgent = *p.UserAgent
	}
	if p.MaxConcurrentDownloads != nil {
		cfg.MaxConcurrentDownloads = *p.MaxConcurrentDownloads
	}
	for name, cat := range p.Categories {
		cfg.Categories[name] = cat
	}
}

// expandTilde replaces a leading "~" with the effective user's home
// directory. The full filesystem path-expansion helper is an external
// collaborator per spec §1; this is the minimal form the engine needs at
// its own read/write points.
func expandTilde(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home := homeDir()
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func homeDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "/root"
}
