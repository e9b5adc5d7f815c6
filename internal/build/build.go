// Package build runs operators over the revisions not yet indexed and
// records their results.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
	"github.com/thiagokokada/wily-go/internal/operator"
	"github.com/thiagokokada/wily-go/internal/state"
)

// Archiver is the part of *git.Archiver a build needs.
type Archiver interface {
	Name() string
	Revisions(path string, maxRevisions int) ([]git.Revision, error)
	Checkout(rev git.Revision) error
	Finish() error
	Filesystem() billy.Filesystem
	FileContents(key, path string) (string, error)
}

// Index records processed revisions.
type Index interface {
	Contains(key string) bool
	Last() (state.IndexedRevision, bool)
	Append(rev git.Revision, operators []string) bool
	Save() error
}

// Store persists cache entries.
type Store interface {
	Write(archiver, key string, e cache.Entry) error
	Read(archiver, key string) (cache.Entry, error)
}

// Options selects what a build looks at.
type Options struct {
	// Path restricts the build to commits touching it and files below it.
	Path         string
	MaxRevisions int
	// Include and Exclude are path.Match patterns tried against the full
	// path and the base name. An empty Include accepts every file.
	Include []string
	Exclude []string
}

// Summary reports what a build did. Skipped counts revisions already indexed,
// Older the unindexed ones committed before the newest indexed revision.
type Summary struct {
	Revisions   int
	Skipped     int
	Older       int
	Processed   int
	FailedFiles int
}

// Builder wires an archiver to the index and cache of one repository.
type Builder struct {
	Archiver  Archiver
	Index     Index
	Store     Store
	Operators []operator.Operator
}

// Run processes, oldest first, the revisions committed after the newest
// indexed one. Each processed revision is written to the store and the index
// is saved right after, so an interrupted build resumes where it stopped.
// The working tree is restored on every exit path; a restore failure is
// joined into the returned error.
func (b *Builder) Run(ctx context.Context, opts Options) (summary Summary, err error) {
	defer func() {
		if ferr := b.Archiver.Finish(); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}()

	revs, err := b.Archiver.Revisions(opts.Path, opts.MaxRevisions)
	if err != nil {
		return summary, err
	}
	summary.Revisions = len(revs)
	names := operator.Names(b.Operators)
	slog.Debug("build started",
		slog.String("archiver", b.Archiver.Name()),
		slog.Int("revisions", len(revs)),
		slog.Any("operators", names),
	)

	start := 0
	if tail, ok := b.Index.Last(); ok {
		start = resumePoint(revs, tail.Revision)
	}
	for _, rev := range revs[:start] {
		if b.Index.Contains(rev.Key) {
			summary.Skipped++
		} else {
			summary.Older++
		}
	}
	if summary.Older > 0 {
		slog.Warn("revisions older than the newest indexed one are not measured, clean the cache to include them",
			slog.Int("revisions", summary.Older),
		)
	}

	var last struct {
		key   string
		entry cache.Entry
	}
	for _, rev := range revs[start:] {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if b.Index.Contains(rev.Key) {
			summary.Skipped++
			continue
		}
		base, ok, err := b.baseEntry(rev, last.key, last.entry)
		if err != nil {
			return summary, err
		}
		entry, failed, err := b.process(ctx, rev, base, ok, opts)
		if err != nil {
			return summary, fmt.Errorf("revision %s: %w", rev.ShortKey(), err)
		}
		if err := b.Store.Write(b.Archiver.Name(), rev.Key, entry); err != nil {
			return summary, err
		}
		if !b.Index.Append(rev, names) {
			return summary, fmt.Errorf("revision %s: index refused it as out of order", rev.ShortKey())
		}
		if err := b.Index.Save(); err != nil {
			return summary, err
		}
		last.key, last.entry = rev.Key, entry
		summary.Processed++
		summary.FailedFiles += failed
		slog.Info("revision indexed",
			slog.String("revision", rev.ShortKey()),
			slog.String("date", rev.Date.Format("2006-01-02 15:04")),
			slog.Int("failed_files", failed),
		)
	}
	return summary, nil
}

// resumePoint returns the position in revs right after tail, so only commits
// newer than the last indexed one are processed. When tail is outside the
// window, revisions committed before it are left out.
func resumePoint(revs []git.Revision, tail git.Revision) int {
	if i := slices.IndexFunc(revs, func(r git.Revision) bool { return r.Key == tail.Key }); i >= 0 {
		return i + 1
	}
	for i, rev := range revs {
		if !rev.Date.Before(tail.Date) {
			return i
		}
	}
	return len(revs)
}

// baseEntry returns the data of the parent revision when it was indexed.
func (b *Builder) baseEntry(rev git.Revision, lastKey string, lastEntry cache.Entry) (cache.Entry, bool, error) {
	if rev.Parent == "" {
		return cache.Entry{}, false, nil
	}
	if rev.Parent == lastKey {
		return lastEntry, true, nil
	}
	if !b.Index.Contains(rev.Parent) {
		return cache.Entry{}, false, nil
	}
	entry, err := b.Store.Read(b.Archiver.Name(), rev.Parent)
	if errors.Is(err, cache.ErrNotFound) {
		slog.Warn("indexed revision has no cache entry", slog.String("revision", rev.Parent))
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	return entry, true, nil
}

// process measures the files rev changed and carries the parent's data for
// the rest. Without parent data every tracked file is measured.
func (b *Builder) process(ctx context.Context, rev git.Revision, base cache.Entry, haveBase bool, opts Options) (cache.Entry, int, error) {
	scope := newFilter(opts)
	candidates := rev.TrackedFiles
	if haveBase {
		candidates = rev.Changed()
	}
	var targets []string
	for _, f := range candidates {
		if scope.match(f) {
			targets = append(targets, f)
		}
	}
	tracked := make(map[string]struct{}, len(rev.TrackedFiles))
	for _, f := range rev.TrackedFiles {
		tracked[f] = struct{}{}
	}

	results := make([]operator.Result, len(b.Operators))
	if len(targets) > 0 {
		if err := b.Archiver.Checkout(rev); err != nil {
			return cache.Entry{}, 0, err
		}
		target := operator.Target{
			FS:       b.Archiver.Filesystem(),
			Revision: rev,
			Files:    targets,
			Previous: b.previous(rev),
		}
		g, gctx := errgroup.WithContext(ctx)
		for i, op := range b.Operators {
			g.Go(func() error {
				res, err := op.Run(gctx, target)
				if err != nil {
					return fmt.Errorf("operator %s: %w", op.Name(), err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return cache.Entry{}, 0, err
		}
	} else {
		slog.Debug("nothing to measure, skipping checkout", slog.String("revision", rev.ShortKey()))
	}

	failed := 0
	entry := cache.Entry{OperatorData: make(map[string]map[string]cache.FileData, len(b.Operators))}
	for i, op := range b.Operators {
		files := map[string]cache.FileData{}
		for p, data := range base.Operator(op.Name()) {
			if _, ok := tracked[p]; ok {
				files[p] = data
			}
		}
		res := results[i]
		for p, err := range res.Failed {
			delete(files, p)
			failed++
			slog.Warn("operator failed on file",
				slog.String("revision", rev.ShortKey()),
				slog.String("operator", op.Name()),
				slog.String("path", p),
				slog.Any("error", err),
			)
		}
		for p, data := range res.Files {
			files[p] = data
		}
		for dir, data := range operator.AggregateDirs(op.Metrics(), files, rev.TrackedDirs) {
			files[dir] = data
		}
		entry.OperatorData[op.Name()] = files
	}
	return entry, failed, nil
}

// previous serializes reads of parent file contents, since operators run
// concurrently and the object store is not safe for concurrent use.
func (b *Builder) previous(rev git.Revision) func(string) (string, bool, error) {
	var mu sync.Mutex
	return func(p string) (string, bool, error) {
		if rev.Parent == "" {
			return "", false, nil
		}
		mu.Lock()
		defer mu.Unlock()
		content, err := b.Archiver.FileContents(rev.Parent, p)
		if errors.Is(err, git.ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return content, true, nil
	}
}

type filter struct {
	prefix           string
	include, exclude []string
}

func newFilter(opts Options) filter {
	prefix := strings.Trim(path.Clean("/"+strings.ReplaceAll(opts.Path, "\\", "/")), "/")
	return filter{prefix: prefix, include: opts.Include, exclude: opts.Exclude}
}

func (f filter) match(p string) bool {
	if f.prefix != "" && p != f.prefix && !strings.HasPrefix(p, f.prefix+"/") {
		return false
	}
	if len(f.include) > 0 && !matchAny(f.include, p) {
		return false
	}
	return !matchAny(f.exclude, p)
}

func matchAny(patterns []string, p string) bool {
	base := path.Base(p)
	return slices.ContainsFunc(patterns, func(pattern string) bool {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		ok, _ := path.Match(pattern, base)
		return ok
	})
}
