package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the cached metrics of the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(root)
			if err != nil {
				return err
			}
			if err := s.cache.Clean(s.cfg.Archiver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", s.cache.Dir(s.cfg.Archiver))
			return nil
		},
	}
}
