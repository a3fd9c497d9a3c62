package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"theli/internal/reduction"
)

func newJobsCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:         "jobs [CODE]",
		Short:       "List the reduction jobs",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				info, ok := reduction.Info(reduction.Code(args[0]))
				if !ok {
					return fmt.Errorf("unknown job %q", args[0])
				}
				fmt.Fprintf(out, "%s  %s\n", info.Code, info.Title)
				fmt.Fprintf(out, "    %s\n", info.Description)
				if !info.Supported {
					fmt.Fprintln(out, "    (not supported)")
				}
				return nil
			}
			spec := tableSpec{headers: []string{"Code", "Job", "Description"}}
			for _, info := range reduction.Catalogue {
				if !info.Supported && !all {
					continue
				}
				title := info.Title
				if !info.Supported {
					title += " (not supported)"
				}
				spec.rows = append(spec.rows, []string{string(info.Code), title, info.Description})
			}
			spec.footer = "Combine codes in pipeline order, e.g. FsCbCfCs"
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include jobs that are not supported")
	return cmd
}
