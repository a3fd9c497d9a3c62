package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"theli/internal/params"
	"theli/internal/services"
)

func newParamsCommand(ctx *commandContext) *cobra.Command {
	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect and edit the THELI parameter files",
	}

	paramsCmd.AddCommand(newParamsGetCommand(ctx))
	paramsCmd.AddCommand(newParamsSetCommand(ctx))
	paramsCmd.AddCommand(newParamsResetCommand(ctx))
	paramsCmd.AddCommand(newParamsListCommand(ctx))

	return paramsCmd
}

func (c *commandContext) guardedParams() (*params.Store, error) {
	return c.paramStore(c.lock())
}

func newParamsGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY...",
		Short: "Print parameter values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.guardedParams()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range args {
				value, err := store.Get(key)
				if err != nil {
					return err
				}
				if len(args) == 1 {
					fmt.Fprintln(out, value)
				} else {
					fmt.Fprintf(out, "%s=%s\n", key, value)
				}
			}
			return nil
		},
	}
}

func newParamsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Update parameters in place",
		Long:  "Set updates every named parameter or, when any key is unknown, none of them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || strings.TrimSpace(key) == "" {
					return services.Wrap(services.ErrConfiguration, "", "params set",
						fmt.Sprintf("expected KEY=VALUE, got %q", arg), nil)
				}
				updates[strings.TrimSpace(key)] = value
			}
			store, err := ctx.guardedParams()
			if err != nil {
				return err
			}
			if err := store.Set(updates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d parameter(s) in %s\n", len(updates), store.Dir())
			return nil
		},
	}
}

func newParamsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the parameter files from their templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.guardedParams()
			if err != nil {
				return err
			}
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset parameter files in %s\n", store.Dir())
			return nil
		},
	}
}

func newParamsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [PATTERN]",
		Short: "List parameters, optionally filtered by a glob such as 'V_COADD_*'",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			if _, err := path.Match(pattern, ""); err != nil {
				return services.Wrap(services.ErrConfiguration, "", "params list", fmt.Sprintf("invalid pattern %q", pattern), err)
			}
			store, err := ctx.guardedParams()
			if err != nil {
				return err
			}
			spec := tableSpec{headers: []string{"File", "Key", "Value"}}
			for _, entry := range store.Snapshot() {
				if ok, _ := path.Match(pattern, entry.Key); ok {
					spec.rows = append(spec.rows, []string{entry.File, entry.Key, entry.Value})
				}
			}
			out := cmd.OutOrStdout()
			if len(spec.rows) == 0 {
				fmt.Fprintf(out, "No parameters match %q\n", pattern)
				return nil
			}
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}
}
