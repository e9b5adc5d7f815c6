// Package config loads wily-go settings from wily.yaml and resolves where
// the cache of a repository lives.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

const (
	// FileName is looked up in the repository root when no --config is given.
	FileName            = "wily.yaml"
	DefaultMaxRevisions = 50
	cacheEnv            = "WILY_CACHE_DIR"
	appName             = "wily-go"
)

// ErrUnknownArchiver is returned for archiver names other than git.
var ErrUnknownArchiver = errors.New("unknown archiver")

// Config holds the build settings of one repository.
type Config struct {
	// Path restricts builds to a sub-directory or file of the repository.
	Path         string   `yaml:"path"`
	Archiver     string   `yaml:"archiver"`
	MaxRevisions int      `yaml:"max_revisions"`
	Operators    []string `yaml:"operators"`
	Include      []string `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	// CachePath, when set, is used as the cache directory of the repository
	// as is.
	CachePath string `yaml:"cache_path"`
}

// DefaultConfig returns the settings used when wily.yaml is absent.
func DefaultConfig() Config {
	return Config{
		Path:         ".",
		Archiver:     git.Name,
		MaxRevisions: DefaultMaxRevisions,
		Operators:    []string{"raw", "churn"},
	}
}

// Load returns DefaultConfig overridden by the file at explicit, or by
// wily.yaml in repoRoot when explicit is empty. A missing wily.yaml is not an
// error; a missing explicit file is.
func Load(repoRoot, explicit string) (Config, error) {
	cfg := DefaultConfig()
	file := explicit
	if file == "" {
		file = filepath.Join(repoRoot, FileName)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if explicit == "" && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", file, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up silently.
func (c Config) Validate() error {
	if c.Archiver != git.Name {
		return fmt.Errorf("%q: %w", c.Archiver, ErrUnknownArchiver)
	}
	if c.MaxRevisions < 0 {
		return fmt.Errorf("max_revisions must not be negative, got %d", c.MaxRevisions)
	}
	for _, pattern := range slices.Concat(c.Include, c.Exclude) {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// CacheBase returns the directory holding the caches of all repositories:
// $WILY_CACHE_DIR when set, else the XDG cache home.
func CacheBase() string {
	if explicit := os.Getenv(cacheEnv); explicit != "" {
		return explicit
	}

	xdg.Reload()

	cacheHome := xdg.CacheHome
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appName)
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, appName)
}

// CacheDir returns the cache directory of the repository rooted at repoAbs.
func (c Config) CacheDir(repoAbs string) string {
	if c.CachePath != "" {
		return c.CachePath
	}
	return cache.RepoDir(CacheBase(), repoAbs)
}
