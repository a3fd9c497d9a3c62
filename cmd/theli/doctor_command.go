package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"theli/internal/preflight"
	"theli/internal/reduction"
	"theli/internal/services"
	"theli/internal/staging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var network bool
	var server string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the THELI installation and theli state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			emit := func(lines ...string) {
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
			}

			emit(renderSectionHeader("Installation", colorize)...)
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				emit(renderCheckLine(r.Name, kindOf(r), r.Detail, colorize))
			}
			if catalog, err := ctx.catalog(); err != nil {
				emit(renderCheckLine("Instruments", checkError, err.Error(), colorize))
			} else {
				emit(renderCheckLine("Instruments", checkInfo, fmt.Sprintf("%d found", catalog.Len()), colorize))
			}

			emit("")
			emit(renderSectionHeader("State", colorize)...)
			for _, r := range []preflight.Result{preflight.CheckLock(cfg), preflight.CheckJournal(cfg)} {
				results = append(results, r)
				emit(renderCheckLine(r.Name, kindOf(r), r.Detail, colorize))
			}
			if usage, err := staging.Inspect(cfg.Paths.TempDir); err != nil {
				emit(renderCheckLine("Temporary files", checkWarn, err.Error(), colorize))
			} else if usage.Missing {
				emit(renderCheckLine("Temporary files", checkInfo, "directory does not exist", colorize))
			} else {
				emit(renderCheckLine("Temporary files", checkInfo,
					fmt.Sprintf("%d file(s), %s", usage.Files, humanize.IBytes(uint64(usage.Size))), colorize))
			}

			emit("")
			emit(renderSectionHeader("Host", colorize)...)
			system := reduction.HostSystem()
			emit(renderCheckLine("CPUs", checkInfo, fmt.Sprintf("%d", system.CPUs()), colorize))
			if ram, err := system.PhysicalMemory(); err == nil {
				emit(renderCheckLine("Physical memory", checkInfo, humanize.IBytes(ram), colorize))
			}
			if kernel := system.Kernel(); kernel != "" {
				emit(renderCheckLine("Kernel", checkInfo, kernel, colorize))
			}
			if network {
				r := preflight.CheckCatalogServer(cmd.Context(), server)
				results = append(results, r)
				emit(renderCheckLine(r.Name, kindOf(r), r.Detail, colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return services.Wrap(services.ErrConfiguration, "", "doctor",
					"failed checks: "+strings.Join(names, ", "), nil)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "Also check that the reference catalogue server answers")
	cmd.Flags().StringVar(&server, "server", reduction.DefaultStageOptions().RefServer, "Catalogue server checked with --network")
	return cmd
}
