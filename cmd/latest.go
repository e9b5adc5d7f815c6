package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
)

type latestOptions struct {
	operator string
	outdated bool
}

func newLatestCmd(root *rootOptions) *cobra.Command {
	opts := &latestOptions{}
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest indexed metrics of every file and whether HEAD changed it since",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			latest, err := s.state.LatestRevisions(opts.operator)
			if err != nil {
				return err
			}
			if len(latest) == 0 {
				fmt.Fprintf(out, "No %s data indexed, run wily-go build first\n", opts.operator)
				return nil
			}

			dirs := map[string]struct{}{}
			for _, rev := range s.state.Default().Revisions() {
				for _, d := range rev.TrackedDirs {
					dirs[d] = struct{}{}
				}
			}
			entries := map[string]cache.Entry{}
			files := map[string]cache.FileData{}
			for p, key := range latest {
				if _, ok := dirs[p]; ok {
					continue
				}
				entry, ok := entries[key]
				if !ok {
					if entry, err = s.cache.Read(s.cfg.Archiver, key); err != nil {
						return err
					}
					entries[key] = entry
				}
				files[p] = entry.Operator(opts.operator)[p]
			}

			metrics := metricNames(opts.operator, files)
			t := newTable(out)
			header := table.Row{"Path", "Revision", "Outdated"}
			for _, m := range metrics {
				header = append(header, m)
			}
			t.AppendHeader(header)
			for _, p := range slices.Sorted(maps.Keys(files)) {
				key := latest[p]
				outdated, err := s.archiver.IsDataOutdated(p, key)
				if err != nil {
					return err
				}
				if opts.outdated && !outdated {
					continue
				}
				row := table.Row{p, git.Revision{Key: key}.ShortKey(), yesNo(outdated)}
				for _, m := range metrics {
					row = append(row, formatMetric(files[p].Total[m]))
				}
				t.AppendRow(row)
			}
			renderTable(t, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.operator, "operator", "raw", "operator whose data is shown")
	cmd.Flags().BoolVar(&opts.outdated, "outdated", false, "only list files changed at HEAD since they were measured")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
