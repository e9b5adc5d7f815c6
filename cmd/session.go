package cmd

import (
	"log/slog"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/config"
	"github.com/thiagokokada/wily-go/internal/git"
	"github.com/thiagokokada/wily-go/internal/state"
)

// session is everything a command needs for one repository.
type session struct {
	cfg      config.Config
	archiver *git.Archiver
	cache    *cache.Cache
	state    *state.State
}

func openSession(opts *rootOptions) (*session, error) {
	a, err := git.Open(opts.repo)
	if err != nil {
		return nil, err
	}
	root := a.RepoPath()
	cfg, err := config.Load(root, opts.config)
	if err != nil {
		return nil, err
	}
	dir := opts.cacheDir
	if dir == "" {
		dir = cfg.CacheDir(root)
	}
	c := cache.New(dir)
	st, err := state.Open(c, cfg.Archiver)
	if err != nil {
		return nil, err
	}
	slog.Debug("session opened",
		slog.String("repo", root),
		slog.String("cache", dir),
		slog.Int("indexed", st.Default().Len()),
	)
	return &session{cfg: cfg, archiver: a, cache: c, state: st}, nil
}
