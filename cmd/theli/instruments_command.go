package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newInstrumentsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments [FILTER]",
		Short: "List the instruments of the THELI installation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog()
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = strings.ToLower(args[0])
			}
			spec := tableSpec{
				headers: []string{"Instrument", "Type", "Chips", "Size", "Pixel scale"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			}
			for _, name := range catalog.Names() {
				if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
					continue
				}
				inst, err := catalog.Lookup(name)
				if err != nil {
					return err
				}
				spec.rows = append(spec.rows, []string{
					inst.Name,
					inst.Type,
					strconv.Itoa(inst.Chips),
					fmt.Sprintf("%dx%d", inst.SizeX, inst.SizeY),
					strconv.FormatFloat(inst.PixScale, 'f', -1, 64) + `"`,
				})
			}
			out := cmd.OutOrStdout()
			if len(spec.rows) == 0 {
				fmt.Fprintln(out, "No instruments found")
				return nil
			}
			spec.footer = fmt.Sprintf("%d instrument(s)", len(spec.rows))
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}
}
