package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"theli/internal/journal"
)

const timeColumn = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past reduction runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := ctx.requireJournal()
			if err != nil {
				return err
			}
			runs, err := j.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			spec := tableSpec{headers: []string{"Run", "Started", "Duration", "Jobs", "Instrument", "Main folder", "Status"}}
			for _, run := range runs {
				spec.rows = append(spec.rows, []string{
					shortID(run.ID),
					run.StartedAt.Local().Format(timeColumn),
					runDuration(run),
					run.Jobs,
					run.Instrument,
					run.MainDir,
					run.Status,
				})
			}
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 lists all)")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [RUN]",
		Short: "Show the decisions and script calls of a run (default: the last run)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := ctx.requireJournal()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var run journal.Run
			if len(args) == 1 {
				if run, err = j.GetRun(cmd.Context(), args[0]); err != nil {
					return err
				}
			} else {
				var ok bool
				if run, ok, err = j.LastRun(cmd.Context()); err != nil {
					return err
				} else if !ok {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
			}

			fmt.Fprintf(out, "Run %s: %s %s in %s\n", run.ID, run.Jobs, run.Instrument, run.MainDir)
			fmt.Fprintf(out, "Started %s, %s, %s\n", run.StartedAt.Local().Format(timeColumn), runDuration(run), run.Status)
			if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}

			decisions, err := j.Decisions(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(decisions) > 0 {
				spec := tableSpec{title: "Decisions", headers: []string{"Stage", "Folder", "Decision", "Message"}}
				for _, d := range decisions {
					spec.rows = append(spec.rows, []string{d.Stage, d.Folder, d.Kind, d.Message})
				}
				fmt.Fprintln(out, spec.render())
			}

			invocations, err := j.Invocations(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(invocations) > 0 {
				spec := tableSpec{
					title:   "Script calls",
					headers: []string{"Stage", "Script", "Arguments", "Duration", "Result"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				}
				for _, inv := range invocations {
					result := "ok"
					if inv.FatalLine > 0 {
						result = fmt.Sprintf("failed at line %d", inv.FatalLine)
					} else if len(inv.Warnings) > 0 {
						result = strconv.Itoa(len(inv.Warnings)) + " warning(s)"
					}
					spec.rows = append(spec.rows, []string{
						inv.Stage, inv.Script, strings.Join(inv.Args, " "), inv.Duration.Round(time.Millisecond).String(), result,
					})
				}
				fmt.Fprintln(out, spec.render())
			}
			return nil
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := ctx.requireJournal()
			if err != nil {
				return err
			}
			removed, err := j.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s), kept the last %d\n", removed, keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 50, "Number of recent runs to keep")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run journal.Run) string {
	if run.FinishedAt.IsZero() {
		return "started " + humanize.Time(run.StartedAt)
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
