package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/wily-go/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wily-go %s\n", buildinfo.String())
		},
	}
}
