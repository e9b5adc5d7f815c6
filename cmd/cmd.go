package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/buildinfo"
)

// Run executes the command line. An interrupt cancels the running build,
// which still restores the working tree before returning.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

type rootOptions struct {
	repo     string
	config   string
	cacheDir string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "wily-go",
		Short:         "Track code metrics across the git history of a project",
		Long:          "wily-go walks the history of a git repository, measures every revision once and keeps the results in a cache so later runs only process new commits.",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.repo, "repo", "r", ".", "path inside the git repository to analyze")
	cmd.PersistentFlags().StringVar(&opts.config, "config", "", "config file (default: wily.yaml in the repository root)")
	cmd.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "cache directory for this repository")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")

	cmd.AddCommand(newBuildCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newLatestCmd(opts))
	cmd.AddCommand(newCleanCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
