package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"theli/internal/config"
	"theli/internal/jobrun"
	"theli/internal/journal"
	"theli/internal/logging"
	"theli/internal/preflight"
	"theli/internal/reduction"
	"theli/internal/services"
)

type runFlags struct {
	mainDir string
	folders map[reduction.Role]*string

	title         string
	reduceSky     bool
	threads       int
	verbosity     string
	logDisplay    string
	preset        string
	params        map[string]string
	skipPreflight bool

	stage reduction.StageOptions
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{folders: map[reduction.Role]*string{}}
	defaults := reduction.DefaultStageOptions()

	cmd := &cobra.Command{
		Use:   "run JOBLIST INSTRUMENT",
		Short: "Run reduction jobs on a project",
		Long: "Run reduction jobs on the data folders below the main folder.\n\n" +
			"JOBLIST is a sequence of two-letter job codes such as FsCbCfCs (see 'theli jobs').\n" +
			"INSTRUMENT names a THELI instrument (see 'theli instruments').",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			return runReduction(cmd, ctx, flags, args[0], args[1])
		},
	}

	f := cmd.Flags()
	cwd, _ := os.Getwd()
	f.StringVarP(&flags.mainDir, "main", "m", cwd, "Main folder holding the data folders")
	shorthands := map[reduction.Role]string{
		reduction.RoleBias:    "b",
		reduction.RoleDark:    "d",
		reduction.RoleFlat:    "f",
		reduction.RoleScience: "s",
	}
	for _, role := range reduction.Roles {
		value := new(string)
		flags.folders[role] = value
		f.StringVarP(value, string(role), shorthands[role], "", fmt.Sprintf("%s folder below the main folder", role.Label()))
	}

	f.StringVarP(&flags.title, "title", "t", "auto", "Project title (auto uses the science folder name)")
	f.BoolVar(&flags.reduceSky, "reduce-sky", false, "Apply the full reduction to the sky folder as well")
	f.IntVar(&flags.threads, "threads", 0, "Maximum number of parallel processes (default from config, 0 uses every CPU)")
	f.StringVarP(&flags.verbosity, "verbosity", "v", "", "Output verbosity: quiet, normal or full (default from config)")
	f.StringVar(&flags.logDisplay, "log-display", "", "Open the failing log in an editor: none, nano, gedit, kate or emacs")
	f.StringVarP(&flags.preset, "preset", "p", "", "Preset file or name in the preset directory")
	f.StringToStringVar(&flags.params, "param", nil, "THELI parameter assignment KEY=VALUE (repeatable)")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "Do not check the THELI installation before running")

	st := &flags.stage
	f.BoolVar(&st.Redo, "redo", false, "Reprocess folders whose output already exists")
	f.StringVar(&st.BiasMode.Min, "cal-bias-mode-min", "", "Minimum accepted bias mode")
	f.StringVar(&st.BiasMode.Max, "cal-bias-mode-max", "", "Maximum accepted bias mode")
	f.StringVar(&st.DarkMode.Min, "cal-dark-mode-min", "", "Minimum accepted dark mode")
	f.StringVar(&st.DarkMode.Max, "cal-dark-mode-max", "", "Maximum accepted dark mode")
	f.StringVar(&st.FlatMode.Min, "cal-flat-mode-min", "", "Minimum accepted flat mode")
	f.StringVar(&st.FlatMode.Max, "cal-flat-mode-max", "", "Maximum accepted flat mode")
	f.StringVar(&st.DataMode.Min, "cal-data-mode-min", "", "Minimum accepted data mode")
	f.StringVar(&st.DataMode.Max, "cal-data-mode-max", "", "Maximum accepted data mode")
	f.BoolVar(&st.UseDark, "use-dark", false, "Calibrate with the master dark instead of the master bias")
	f.StringVar(&st.LinksChips, "links-chips", "", "Chip distributed by the link job")
	f.StringVar(&st.LinksScratchDir, "links-scratch-dir", "", "Scratch folder receiving the linked chips")
	f.IntVar(&st.NGroups, "nir-ngroups", 0, "Number of groups in a NIR sequence")
	f.IntVar(&st.GroupLen, "nir-grouplen", 0, "Exposures per NIR sequence group")
	f.StringVar(&st.ChopPattern, "chop-pattern", defaults.ChopPattern, "Chop/nod pattern: "+strings.Join(reduction.ChopPatterns, ", "))
	f.BoolVar(&st.ChopInvert, "chop-pattern-invert", false, "Invert the chop/nod pattern")
	f.Float64Var(&st.Saturation, "saturation", defaults.Saturation, "Debloom saturation level")
	f.Float64Var(&st.MinOverlap, "image-min-overlap", 0, "Minimum overlap of exposures in one set")
	f.StringVar(&st.RefCat, "ref-cat", defaults.RefCat, "Reference catalogue, or Image to build it from --ref-image")
	f.StringVar(&st.RefServer, "ref-cat-server", defaults.RefServer, "Reference catalogue server")
	f.StringVar(&st.RefImage, "ref-image", "", "Reference image for --ref-cat Image")
	f.Float64Var(&st.RefDetectThresh, "ref-image-detect-thresh", defaults.RefDetectThresh, "Detection threshold on the reference image")
	f.Float64Var(&st.RefDetectMinArea, "ref-image-detect-min-area", defaults.RefDetectMinArea, "Minimum detection area on the reference image")
	f.StringVar(&st.AstrometryMethod, "astrometry-method", defaults.AstrometryMethod, "Astrometry method: "+strings.Join(reduction.AstrometryMethods, ", "))
	f.BoolVar(&st.IgnoreScampSegfault, "ignore-scamp-segfault", false, "Treat a scamp segmentation fault as a warning")
	f.BoolVar(&st.SkyModelConst, "sky-model-const", false, "Subtract a constant sky instead of a sky model")
	f.BoolVar(&st.PosAngleFromImage, "cd-posangle-from-image", false, "Take the coadd position angle from the images")

	return cmd
}

func runReduction(cmd *cobra.Command, ctx *commandContext, flags *runFlags, jobList, inst string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	jobs, err := reduction.ParseJobs(jobList)
	if err != nil {
		return err
	}
	stageParams, err := applyPreset(cmd.Flags(), flags, cfg.Paths.PresetDir)
	if err != nil {
		return err
	}
	verbosity, err := resolveVerbosity(flags.verbosity, cfg)
	if err != nil {
		return err
	}
	logDisplay := flags.logDisplay
	if logDisplay == "" {
		logDisplay = cfg.Run.LogDisplay
	}
	if !config.ValidLogDisplay(logDisplay) {
		return services.Wrap(services.ErrConfiguration, "", "run", fmt.Sprintf("invalid log display %q", logDisplay), nil)
	}
	threads := flags.threads
	if !cmd.Flags().Changed("threads") {
		threads = cfg.Run.Threads
	}

	if !flags.skipPreflight {
		if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
			names := make([]string, 0, len(failed))
			for _, r := range failed {
				names = append(names, fmt.Sprintf("%s (%s)", r.Name, r.Detail))
			}
			return services.Wrap(services.ErrConfiguration, "", "preflight",
				"THELI installation incomplete: "+strings.Join(names, "; ")+" (see 'theli doctor')", nil)
		}
	}

	logger := ctx.diagnostics()
	lock := ctx.lock()
	catalog, err := ctx.catalog()
	if err != nil {
		return err
	}
	store, err := ctx.paramStore(lock)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "run", "open parameter files", err)
	}
	table, err := keywordTable(cfg)
	if err != nil {
		return err
	}
	j, err := ctx.openJournal()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	runnerOpts := []jobrun.Option{jobrun.WithStream(out)}
	var observer reduction.Observer
	if j != nil {
		runnerOpts = append(runnerOpts, jobrun.WithRecorder(j))
		observer = j
	}
	runner := jobrun.NewRunner(jobrun.Options{
		ScriptsDir: cfg.Paths.ScriptsDir,
		Launcher:   cfg.ParallelLauncher(),
		Verbosity:  verbosity,
		Table:      table,
		Lock:       lock,
		Logs:       jobrun.NewLogWriter(cfg.LogsDir(), cfg.LatestLogPath()),
		Logger:     logger,
	}, runnerOpts...)

	runCtx := cmd.Context()
	runID := ""
	if j != nil {
		run, err := j.StartRun(runCtx, journal.Run{
			MainDir:    flags.mainDir,
			Instrument: inst,
			Jobs:       jobList,
			Title:      flags.title,
		})
		if err != nil {
			return err
		}
		runID = run.ID
		runCtx = services.WithRunID(runCtx, runID)
	}

	folders := map[reduction.Role]string{}
	for role, value := range flags.folders {
		if name := strings.TrimSpace(*value); name != "" {
			folders[role] = name
		}
	}

	reporter := reduction.NewConsoleReporter(out, verbosity)
	project, err := reduction.New(runCtx, reduction.Options{
		MainDir:    flags.mainDir,
		Folders:    folders,
		Instrument: inst,
		Catalog:    catalog,
		Title:      flags.title,
		Threads:    threads,
		ReduceSky:  flags.reduceSky,
		Params:     store,
		Invoker:    runner,
		Reporter:   reporter,
		Observer:   observer,
		Guard:      lock,
		TempDir:    cfg.Paths.TempDir,
		BinDir:     cfg.Paths.BinDir,
		RunID:      runID,
		Logger:     logger,
	})
	var results []reduction.StageResult
	if err == nil {
		stageOpts := flags.stage
		stageOpts.Params = stageParams
		results, err = project.Run(runCtx, jobs, stageOpts)
	} else {
		reporter.Error(err.Error(), true)
	}

	if j != nil {
		// The run context may already be cancelled.
		if finishErr := j.FinishRun(context.WithoutCancel(runCtx), runID, err); finishErr != nil {
			logging.WarnWithContext(logger, "failed to close journal run", "journal_finish",
				logging.String(logging.FieldRunID, runID),
				logging.Error(finishErr),
			)
		}
	}

	if err != nil {
		reportFailure(cmd, err, logDisplay)
		return err
	}
	if verbosity > 0 {
		fmt.Fprintln(out, summarizeResults(results, runner.Calls()))
	}
	return nil
}

func resolveVerbosity(flag string, cfg *config.Config) (int, error) {
	name := strings.TrimSpace(flag)
	if name == "" {
		name = cfg.Run.Verbosity
	}
	if !config.ValidVerbosity(name) {
		return 0, services.Wrap(services.ErrConfiguration, "", "run",
			fmt.Sprintf("invalid verbosity %q (choose from quiet, normal, full)", name), nil)
	}
	return config.VerbosityLevel(name), nil
}

// keywordTable loads the error keywords from the GUI source when one is
// configured and falls back to the built-in table otherwise.
func keywordTable(cfg *config.Config) (jobrun.KeywordTable, error) {
	if strings.TrimSpace(cfg.Paths.GUISource) == "" {
		return jobrun.DefaultKeywordTable(), nil
	}
	table, err := jobrun.LoadKeywordTable(cfg.Paths.GUISource)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jobrun.DefaultKeywordTable(), nil
		}
		return jobrun.KeywordTable{}, err
	}
	return table, nil
}

func summarizeResults(results []reduction.StageResult, calls int) string {
	counts := map[reduction.Status]int{}
	for _, result := range results {
		counts[result.Status]++
	}
	return fmt.Sprintf("Finished: %d executed, %d skipped, %d warned, %d not applicable (%d script calls)",
		counts[reduction.StatusExecuted], counts[reduction.StatusSkipped], counts[reduction.StatusWarned],
		counts[reduction.StatusNotApplicable], calls)
}
