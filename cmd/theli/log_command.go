package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"theli/internal/logs"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var diagnostics bool

	cmd := &cobra.Command{
		Use:   "log [NAME]",
		Short: "Show the latest script log, or the log of the named script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LatestLogPath()
			switch {
			case diagnostics:
				path = cfg.DiagnosticsLogPath()
			case len(args) == 1:
				path = filepath.Join(cfg.LogsDir(), trimLogName(args[0])+".log")
			}

			out := cmd.OutOrStdout()
			result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(result.Lines) == 0 && result.Offset == 0 {
					fmt.Fprintf(out, "No log at %s\n", path)
				}
				return nil
			}
			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: offset, Follow: true, Wait: time.Second})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range next.Lines {
					fmt.Fprintln(out, line)
				}
				offset = next.Offset
				if next.Offset == 0 && len(next.Lines) == 0 {
					// Missing file: Tail does not wait.
					select {
					case <-cmd.Context().Done():
					case <-time.After(time.Second):
					}
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 40, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "Show the structured diagnostics log instead")
	return cmd
}

// trimLogName accepts a script name with or without .sh or .log.
func trimLogName(name string) string {
	for _, ext := range []string{".log", ".sh"} {
		if filepath.Ext(name) == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

func newUnlockCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Remove a system lock left behind by a crashed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock := ctx.lock()
			removed, err := lock.ForceRemove()
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed lock %s\n", lock.Path())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No lock present")
			}
			return nil
		},
	}
}
