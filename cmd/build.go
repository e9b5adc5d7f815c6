package cmd

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/build"
	"github.com/thiagokokada/wily-go/internal/operator"
)

type buildOptions struct {
	maxRevisions int
	operators    []string
	include      []string
	exclude      []string
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build [path]",
		Short: "Measure every revision not yet in the cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				s.cfg.Path = args[0]
			}
			flags := cmd.Flags()
			if flags.Changed("max-revisions") {
				s.cfg.MaxRevisions = opts.maxRevisions
			}
			if flags.Changed("operators") {
				s.cfg.Operators = opts.operators
			}
			if flags.Changed("include") {
				s.cfg.Include = opts.include
			}
			if flags.Changed("exclude") {
				s.cfg.Exclude = opts.exclude
			}
			if err := s.cfg.Validate(); err != nil {
				return err
			}
			summary, err := runBuild(cmd.Context(), s)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.maxRevisions, "max-revisions", "n", 0, "newest revisions to consider, 0 for all (default from config)")
	cmd.Flags().StringSliceVarP(&opts.operators, "operators", "o", nil, "operators to run (default from config)")
	cmd.Flags().StringSliceVar(&opts.include, "include", nil, "only measure files matching these patterns")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "skip files matching these patterns")
	return cmd
}

func runBuild(ctx context.Context, s *session) (build.Summary, error) {
	ops, err := operator.Resolve(s.cfg.Operators)
	if err != nil {
		return build.Summary{}, err
	}
	rel, err := repoRelative(s.archiver.RepoPath(), s.cfg.Path)
	if err != nil {
		return build.Summary{}, err
	}
	b := &build.Builder{
		Archiver:  s.archiver,
		Index:     s.state.Default(),
		Store:     s.cache,
		Operators: ops,
	}
	return b.Run(ctx, build.Options{
		Path:         rel,
		MaxRevisions: s.cfg.MaxRevisions,
		Include:      s.cfg.Include,
		Exclude:      s.cfg.Exclude,
	})
}

// repoRelative turns p into a slash separated path below root. Relative
// paths are taken relative to root; "" and "." mean the whole repository.
func repoRelative(root, p string) (string, error) {
	if p == "" || p == "." {
		return "", nil
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return "", err
		}
		p = rel
	}
	p = path.Clean(filepath.ToSlash(p))
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q is outside the repository", p)
	}
	if p == "." {
		return "", nil
	}
	return p, nil
}

func printSummary(w io.Writer, s build.Summary) {
	fmt.Fprintf(w, "Processed %d of %d revisions (%d already indexed)\n", s.Processed, s.Revisions, s.Skipped)
	if s.FailedFiles > 0 {
		fmt.Fprintf(w, "%d files could not be measured\n", s.FailedFiles)
	}
	if s.Older > 0 {
		fmt.Fprintf(w, "%d revisions are older than the newest indexed one, run wily-go clean to include them\n", s.Older)
	}
}
