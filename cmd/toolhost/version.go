package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/toolhost/internal/common"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolhost %s\n", common.GetFullVersion())
		},
	}
}
