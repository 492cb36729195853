package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/config"
	"github.com/bobmcallan/toolhost/internal/schema"
)

func newGenerateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the proto3 interface definition for the application",
		Long:  "Extracts the application's tools and writes the interface definition, replacing any existing file. Use -o - to print it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(config.Overrides{})
			if err != nil {
				return err
			}
			if output != "" {
				cfg.Schema.Output = output
			}
			return generate(cfg, cmd)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, or - for stdout (overrides config)")
	return cmd
}

func generate(cfg *config.Config, cmd *cobra.Command) error {
	instance, err := apps.New(cfg.App.Name, nil)
	if err != nil {
		return err
	}
	specs, err := apps.Specs(instance)
	if err != nil {
		return err
	}
	doc, err := schema.Generate(specs, schema.Options{
		Package: cfg.Schema.Package,
		Service: cfg.Schema.Service,
	})
	if err != nil {
		return err
	}

	switch cfg.Schema.Output {
	case "-":
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	case "":
		return fmt.Errorf("no output path: set schema.output or pass --output")
	}

	if err := schema.WriteFile(cfg.Schema.Output, doc); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d tools)\n", cfg.Schema.Output, len(specs))
	return nil
}
