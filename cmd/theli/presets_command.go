package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"theli/internal/preset"
)

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "List and inspect run presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			names, err := preset.Names(cfg.Paths.PresetDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No presets in %s\n", cfg.Paths.PresetDir)
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}

	presetsCmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print the options and parameters of a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p, err := preset.Load(args[0], cfg.Paths.PresetDir)
			if err != nil {
				return err
			}
			spec := tableSpec{title: p.Path, headers: []string{"Kind", "Name", "Value"}}
			for _, name := range slices.Sorted(maps.Keys(p.Options)) {
				spec.rows = append(spec.rows, []string{"option", "--" + name, p.Options[name]})
			}
			for _, name := range slices.Sorted(maps.Keys(p.Params)) {
				spec.rows = append(spec.rows, []string{"param", name, p.Params[name]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), spec.render())
			return nil
		},
	})

	return presetsCmd
}
