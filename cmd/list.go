package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed revisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ix := s.state.Default()
			if ix.Len() == 0 {
				fmt.Fprintln(out, "No revisions indexed, run wily-go build first")
				return nil
			}
			labels, err := s.archiver.Labels()
			if err != nil {
				return err
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"Revision", "Date", "Author", "Message", "Refs", "Operators"})
			revs := ix.Revisions()
			for i := len(revs) - 1; i >= 0; i-- {
				rev := revs[i]
				subject, _, _ := strings.Cut(strings.TrimSpace(rev.Message), "\n")
				t.AppendRow(table.Row{
					rev.ShortKey(),
					rev.Date.Format("2006-01-02 15:04"),
					rev.AuthorName,
					subject,
					strings.Join(labels[rev.Key], ", "),
					strings.Join(rev.Operators, ", "),
				})
			}
			renderTable(t, out)
			return nil
		},
	}
}
