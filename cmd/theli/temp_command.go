package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"theli/internal/staging"
)

func newTempCommand(ctx *commandContext) *cobra.Command {
	var clean bool
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "temp",
		Short: "Inspect or clean the THELI temporary directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dir := cfg.Paths.TempDir
			if clean {
				if ctx.lock().Held() {
					return fmt.Errorf("refusing to clean %s while a run holds the system lock", dir)
				}
				var result staging.CleanResult
				if olderThan > 0 {
					result = staging.CleanStale(cmd.Context(), dir, olderThan, ctx.diagnostics())
				} else {
					result = staging.CleanTemp(cmd.Context(), dir, ctx.diagnostics())
				}
				fmt.Fprintf(out, "Removed %d file(s) from %s\n", len(result.Removed), dir)
				for _, failure := range result.Errors {
					fmt.Fprintf(out, "  %s: %v\n", failure.Path, failure.Error)
				}
				return nil
			}
			usage, err := staging.Inspect(dir)
			if err != nil {
				return err
			}
			if usage.Missing {
				fmt.Fprintf(out, "%s does not exist\n", dir)
				return nil
			}
			fmt.Fprintf(out, "%s: %d file(s), %s\n", dir, usage.Files, humanize.IBytes(uint64(usage.Size)))
			if !usage.Oldest.IsZero() {
				fmt.Fprintf(out, "Oldest file written %s\n", humanize.Time(usage.Oldest))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove the files in the temporary directory")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "With --clean, only remove files older than this")
	return cmd
}
