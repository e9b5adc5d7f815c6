package cmd

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/cache"
	"github.com/thiagokokada/wily-go/internal/git"
	"github.com/thiagokokada/wily-go/internal/operator"
)

type showOptions struct {
	json     bool
	operator string
}

func newShowCmd(root *rootOptions) *cobra.Command {
	opts := &showOptions{}
	cmd := &cobra.Command{
		Use:   "show <revision>",
		Short: "Print the metrics stored for one revision",
		Long:  "show accepts anything git understands as a revision (HEAD~2, a tag, a branch) as well as full or abbreviated keys of indexed revisions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			key := args[0]
			rev, err := s.archiver.Find(key)
			switch {
			case err == nil:
				key = rev.Key
			case errors.Is(err, git.ErrNotFound):
				// may still be an abbreviated key of an indexed revision
			default:
				return err
			}
			indexed, entry, err := s.state.Get(s.cfg.Archiver, key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json {
				raw, err := s.cache.ReadRaw(s.cfg.Archiver, indexed.Key)
				if err != nil {
					return err
				}
				_, err = out.Write(raw)
				return err
			}

			fmt.Fprintln(out, indexed.Summary())
			names := slices.Sorted(maps.Keys(entry.OperatorData))
			if opts.operator != "" {
				if _, ok := entry.OperatorData[opts.operator]; !ok {
					return fmt.Errorf("no %s data for %s", opts.operator, indexed.ShortKey())
				}
				names = []string{opts.operator}
			}
			for _, name := range names {
				fmt.Fprintf(out, "\n%s\n", name)
				showOperator(out, name, entry.Operator(name))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the stored cache entry as JSON")
	cmd.Flags().StringVar(&opts.operator, "operator", "", "only show this operator")
	return cmd
}

func showOperator(w io.Writer, name string, files map[string]cache.FileData) {
	metrics := metricNames(name, files)
	t := newTable(w)
	header := table.Row{"Path"}
	for _, m := range metrics {
		header = append(header, m)
	}
	t.AppendHeader(header)
	for _, p := range slices.Sorted(maps.Keys(files)) {
		label := p
		if label == "" {
			label = "."
		}
		row := table.Row{label}
		total := files[p].Total
		for _, m := range metrics {
			row = append(row, formatMetric(total[m]))
		}
		t.AppendRow(row)
	}
	renderTable(t, w)
}

// metricNames lists the operator's metrics in declaration order, falling back
// to the names found in the data for operators this binary does not know.
func metricNames(name string, files map[string]cache.FileData) []string {
	if ops, err := operator.Resolve([]string{name}); err == nil {
		out := make([]string, 0, len(ops[0].Metrics()))
		for _, m := range ops[0].Metrics() {
			out = append(out, m.Name)
		}
		return out
	}
	seen := map[string]struct{}{}
	for _, data := range files {
		for m := range data.Total {
			seen[m] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

func formatMetric(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
