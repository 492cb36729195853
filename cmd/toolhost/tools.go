package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/config"
	"github.com/bobmcallan/toolhost/internal/schema"
	"github.com/bobmcallan/toolhost/internal/tool"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the application's tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(config.Overrides{})
			if err != nil {
				return err
			}
			instance, err := apps.New(cfg.App.Name, nil)
			if err != nil {
				return err
			}
			specs, err := apps.Specs(instance)
			if err != nil {
				return err
			}
			return printTools(cmd.OutOrStdout(), specs)
		},
	}
}

func printTools(w io.Writer, specs []tool.Spec) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tRETURNS\tMODE\tDESCRIPTION")
	for _, spec := range specs {
		params := make([]string, len(spec.Params))
		for i, p := range spec.Params {
			params[i] = p.Name + " " + schema.TokenOf(p.Type)
		}
		returns := "-"
		if spec.Returns != nil {
			returns = schema.TokenOf(spec.Returns)
		}
		mode := "write"
		if spec.ReadOnly {
			mode = "read"
		}
		fmt.Fprintf(tw, "%s(%s)\t%s\t%s\t%s\n",
			spec.ResolvedName(), strings.Join(params, ", "), returns, mode, spec.Description)
	}
	return tw.Flush()
}
