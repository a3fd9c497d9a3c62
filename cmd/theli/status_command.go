package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"theli/internal/config"
	"theli/internal/folder"
)

const statusScope folder.Scope = "status"

type folderFlags struct {
	mainDir    string
	instrument string
}

func (f *folderFlags) bind(cmd *cobra.Command) {
	cwd, _ := os.Getwd()
	cmd.Flags().StringVarP(&f.mainDir, "main", "m", cwd, "Main folder holding the data folders")
	cmd.Flags().StringVarP(&f.instrument, "instrument", "i", "", "Instrument, used for the chip count of mosaic cameras")
}

// open resolves the named folders below the main folder, or every
// subfolder when none are named.
func (f *folderFlags) open(ctx *commandContext, names []string, opts ...folder.Option) ([]*folder.Folder, error) {
	if f.instrument != "" {
		catalog, err := ctx.catalog()
		if err != nil {
			return nil, err
		}
		inst, err := catalog.Lookup(f.instrument)
		if err != nil {
			return nil, err
		}
		opts = append(opts, folder.WithChips(max(1, inst.Chips)))
	}
	main, err := folder.New(f.mainDir)
	if err != nil {
		return nil, fmt.Errorf("main folder: %w", err)
	}
	paths := main.Folders()
	if len(names) > 0 {
		paths = nil
		for _, name := range names {
			// Bare names are subfolders of the main folder, not of the cwd.
			if !filepath.IsAbs(name) && !strings.HasPrefix(name, "~") {
				name = filepath.Join(main.Abs(), name)
			}
			expanded, err := config.ExpandPath(name)
			if err != nil {
				return nil, err
			}
			paths = append(paths, expanded)
		}
	}
	out := make([]*folder.Folder, 0, len(paths))
	for _, path := range paths {
		fo, err := folder.New(path, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, fo)
	}
	return out, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var flags folderFlags

	cmd := &cobra.Command{
		Use:   "status [FOLDER...]",
		Short: "Show the processing state of data folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			folders, err := flags.open(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				fmt.Fprintln(out, "No data folders found")
				return nil
			}
			spec := tableSpec{
				title:   flags.mainDir,
				headers: []string{"Folder", "Images", "Exposures", "Master", "Weights", "Catalogues", "Astrometry", "Preview"},
				aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
			}
			for _, f := range folders {
				row, err := folderStatusRow(f)
				if err != nil {
					return err
				}
				spec.rows = append(spec.rows, row)
			}
			fmt.Fprintln(out, spec.render())
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func folderStatusRow(f *folder.Folder) ([]string, error) {
	tags, err := f.Tags(statusScope, false)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, tags.Len())
	exposures := make([]string, 0, tags.Len())
	for _, tag := range tags.Sorted() {
		n, err := f.FitsCount(statusScope, tag)
		if err != nil {
			return nil, err
		}
		labels = append(labels, folder.Label(tag))
		exposures = append(exposures, strconv.Itoa(n))
	}
	weights, err := f.CheckWeights(statusScope)
	if err != nil {
		return nil, err
	}
	images := strings.Join(labels, ", ")
	if images == "" {
		images = "-"
	}
	return []string{
		f.Name(),
		images,
		strings.Join(exposures, ", "),
		yesNo(f.ContainsMaster()),
		yesNo(weights),
		yesNo(f.ContainsCatalogs()),
		yesNo(f.ContainsAstrometry()),
		yesNo(f.ContainsPreview()),
	}, nil
}

func newRestoreCommand(ctx *commandContext) *cobra.Command {
	var flags folderFlags

	cmd := &cobra.Command{
		Use:   "restore FOLDER...",
		Short: "Restore data folders to their original raw files",
		Long: "Restore moves the raw files kept in ORIGINALS back into each folder and\n" +
			"deletes every file the reduction created. Folders without ORIGINALS are left alone.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lock := ctx.lock()
			folders, err := flags.open(ctx, args, folder.WithGuard(lock))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range folders {
				restored, err := f.Restore()
				if err != nil {
					return err
				}
				if restored {
					fmt.Fprintf(out, "%s: restored\n", f.Name())
				} else {
					fmt.Fprintf(out, "%s: no %s folder, nothing to restore\n", f.Name(), folder.OriginalsDir)
				}
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}
