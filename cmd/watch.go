package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/watch"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild whenever HEAD or a ref moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			rebuild := func(ctx context.Context) error {
				// HEAD is captured when the archiver opens, so every rebuild
				// starts from a fresh session.
				s, err := openSession(root)
				if err != nil {
					return err
				}
				summary, err := runBuild(ctx, s)
				if err != nil {
					return err
				}
				if summary.Processed > 0 {
					printSummary(out, summary)
				}
				return nil
			}
			if err := rebuild(cmd.Context()); err != nil {
				return err
			}
			s, err := openSession(root)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s for new commits\n", s.archiver.RepoPath())
			slog.Debug("watch started", slog.Duration("delay", delay))
			return watch.Run(cmd.Context(), s.archiver.RepoPath(), delay, rebuild)
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", watch.DefaultDelay, "quiet period before rebuilding")
	return cmd
}
