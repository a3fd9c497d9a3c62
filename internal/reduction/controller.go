package reduction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"theli/internal/folder"
	"theli/internal/instrument"
	"theli/internal/jobrun"
	"theli/internal/logging"
	"theli/internal/services"
	"theli/internal/staging"
)

// Parameters is the parameter store the controller reads and updates.
// *params.Store satisfies it.
type Parameters interface {
	Get(key string) (string, error)
	Set(updates map[string]string) error
}

// Invoker runs one script. *jobrun.Runner satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, job jobrun.Job) (jobrun.Outcome, error)
}

// Options configures a Reduction.
type Options struct {
	MainDir string
	// Folders maps roles to folder names below MainDir.
	Folders    map[Role]string
	Instrument string
	Catalog    *instrument.Catalog
	// Title names the project; empty or "auto" uses the science folder name.
	Title string
	// Threads caps the parallel processes; 0 uses every CPU.
	Threads int
	// ReduceSky runs the full reduction on the sky folder as well.
	ReduceSky bool

	Params Parameters
	// InitialParams are applied before the derived project parameters.
	InitialParams map[string]string

	Invoker  Invoker
	Reporter Reporter
	Observer Observer
	Guard    folder.Guard
	// Env overrides variables of the script environment.
	Env     map[string]string
	TempDir string
	BinDir  string
	RunID   string

	Logger *slog.Logger
	System System
	Tools  Tools
	// Sleep waits between connection retries; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Reduction drives the jobs of one project.
type Reduction struct {
	mainDir   string
	title     string
	inst      instrument.Instrument
	folders   map[Role]*folder.Folder
	reduceSky bool
	threads   int
	cpus      int
	nframes   int
	filters   []string
	filter    string
	env       []string
	runID     string

	params   Parameters
	invoker  Invoker
	reporter Reporter
	observer Observer
	guard    folder.Guard
	tools    Tools
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func configError(operation, message string, err error) error {
	return services.Wrap(services.ErrConfiguration, "", operation, message, err)
}

// New validates the project and prepares the parameter store. Every failure
// is a configuration error raised before any script runs.
func New(ctx context.Context, opts Options) (*Reduction, error) {
	if opts.Params == nil || opts.Invoker == nil || opts.Catalog == nil {
		return nil, configError("initialise", "parameter store, invoker and instrument catalogue are required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Reduction{
		reduceSky: opts.ReduceSky,
		runID:     opts.RunID,
		params:    opts.Params,
		invoker:   opts.Invoker,
		reporter:  opts.Reporter,
		observer:  opts.Observer,
		guard:     opts.Guard,
		tools:     opts.Tools,
		logger:    logging.NewComponentLogger(logger, "reduction"),
		sleep:     opts.Sleep,
		folders:   map[Role]*folder.Folder{},
	}
	if r.reporter == nil {
		r.reporter = nopReporter{}
	}
	if r.tools == nil {
		r.tools = BinTools(opts.BinDir)
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	system := opts.System
	if system == nil {
		system = HostSystem()
	}

	inst, err := opts.Catalog.Lookup(opts.Instrument)
	if err != nil {
		return nil, err
	}
	r.inst = inst
	if err := r.setFolders(opts.MainDir, opts.Folders); err != nil {
		return nil, err
	}
	r.title = strings.TrimSpace(opts.Title)
	if r.title == "" || r.title == "auto" {
		r.title = "unnamed"
		if sci := r.folders[RoleScience]; sci != nil {
			r.title = sci.Name()
		}
	}

	r.env = buildEnv(os.Environ(), inst.Name, opts.Env)

	r.cpus = max(1, system.CPUs())
	r.threads = r.cpus
	if opts.Threads > 0 {
		r.threads = max(1, min(r.cpus, opts.Threads))
	}
	r.nframes = 1
	if ram, err := system.PhysicalMemory(); err == nil && inst.FrameBytes() > 0 {
		r.nframes = max(1, int(0.4*float64(ram)/float64(inst.FrameBytes())/float64(r.threads)))
	} else if err != nil {
		logging.WarnWithContext(r.logger, "physical memory unknown", "sysinfo_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "NFRAMES set to 1"),
		)
	}

	if len(opts.InitialParams) > 0 {
		if err := r.params.Set(opts.InitialParams); err != nil {
			return nil, configError("initialise", "apply initial parameters", err)
		}
	}
	project := map[string]string{
		"PROJECTNAME":           r.title,
		"NPARA":                 strconv.Itoa(r.threads),
		"NFRAMES":               strconv.Itoa(r.nframes),
		"V_COADD_PIXSCALE":      formatFloat(inst.PixScale),
		"V_SCAMP_CROSSIDRADIUS": formatFloat(inst.CrossIDRadius()),
	}
	if kernel := system.Kernel(); kernel != "" {
		project["KERNEL"] = kernel
	}
	if sci := r.folders[RoleScience]; sci != nil {
		filters, err := ListFilters(sci.Abs(), inst.Name)
		if err != nil {
			return nil, configError("initialise", "list science filters", err)
		}
		r.filters = filters
		if len(filters) > 0 {
			r.filter = filters[0]
			project["V_COADD_FILTER"] = r.filter
			project["V_COADD_IDENT"] = r.filter
		} else {
			r.logger.Debug("no filter keywords in science folder", logging.String("folder", sci.Abs()))
		}
	}
	if err := r.params.Set(project); err != nil {
		return nil, configError("initialise", "write project parameters", err)
	}

	staging.CleanTemp(ctx, opts.TempDir, r.logger)
	r.fixDebloomLink(opts.BinDir)
	r.reporter.Message(r.Summary())
	if r.reduceSky {
		r.reporter.Warning("full sky folder processing not fully supported yet")
	}
	return r, nil
}

func (r *Reduction) setFolders(mainDir string, names map[Role]string) error {
	if strings.TrimSpace(mainDir) == "" {
		return configError("initialise", "main folder not specified", nil)
	}
	abs, err := filepath.Abs(mainDir)
	if err != nil {
		return configError("initialise", "main folder invalid", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return configError("initialise", fmt.Sprintf("main folder invalid: %s", abs), nil)
	}
	r.mainDir = abs
	for _, role := range Roles {
		name, ok := names[role]
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		base, leaf := filepath.Split(filepath.Clean(name))
		base = strings.TrimSuffix(base, string(filepath.Separator))
		if base != "" && !strings.HasSuffix(abs, base) {
			return configError("initialise",
				fmt.Sprintf("%s folder: root folder differs from main folder: %s", role, base), nil)
		}
		path := filepath.Join(abs, leaf)
		if _, err := os.Stat(path); err != nil {
			return configError("initialise", fmt.Sprintf("%s folder: not found: %s", role, path), nil)
		}
		f, err := r.openFolder(path)
		if err != nil {
			return configError("initialise", fmt.Sprintf("%s folder", role), err)
		}
		r.folders[role] = f
	}
	return nil
}

func (r *Reduction) openFolder(path string) (*folder.Folder, error) {
	opts := []folder.Option{folder.WithChips(max(1, r.inst.Chips))}
	if r.guard != nil {
		opts = append(opts, folder.WithGuard(r.guard))
	}
	return folder.New(path, opts...)
}

// buildEnv returns base with INSTRUMENT and the overrides applied.
func buildEnv(base []string, inst string, overrides map[string]string) []string {
	values := map[string]string{}
	var order []string
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}
	set := func(key, value string) {
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}
	set("INSTRUMENT", inst)
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		set(key, overrides[key])
	}
	env := make([]string, len(order))
	for i, key := range order {
		env[i] = key + "=" + values[key]
	}
	return env
}

// fixDebloomLink restores the "debloom" name of the fitsdebloom binary.
func (r *Reduction) fixDebloomLink(binDir string) {
	if binDir == "" {
		return
	}
	link := filepath.Join(binDir, "debloom")
	if _, err := os.Lstat(link); err == nil {
		return
	}
	if err := os.Symlink(filepath.Join(binDir, "fitsdebloom"), link); err != nil {
		if errors.Is(err, os.ErrPermission) {
			r.reporter.Warning(fmt.Sprintf("Linking error correction: do not have the permission to create links in '%s'", binDir))
			return
		}
		logging.WarnWithContext(r.logger, "failed to link debloom", "debloom_link_failed",
			logging.String("bin_dir", binDir),
			logging.Error(err),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Title returns the project name.
func (r *Reduction) Title() string { return r.title }

// MainDir returns the absolute main folder.
func (r *Reduction) MainDir() string { return r.mainDir }

// Instrument returns the resolved instrument.
func (r *Reduction) Instrument() instrument.Instrument { return r.inst }

// Folder returns the folder configured for role.
func (r *Reduction) Folder(role Role) (*folder.Folder, bool) {
	f, ok := r.folders[role]
	return f, ok
}

// Threads returns the number of parallel processes.
func (r *Reduction) Threads() int { return r.threads }

// Frames returns the number of frames processed in parallel per thread.
func (r *Reduction) Frames() int { return r.nframes }

// Filters lists the filters found in the science folder.
func (r *Reduction) Filters() []string { return append([]string(nil), r.filters...) }

// Env returns the script environment.
func (r *Reduction) Env() []string { return append([]string(nil), r.env...) }

// SetFilter selects the filter that is coadded.
func (r *Reduction) SetFilter(name string) error {
	found := false
	for _, f := range r.filters {
		if f == name {
			found = true
			break
		}
	}
	if !found {
		return configError("set filter", fmt.Sprintf("'%s' not found in data", name), nil)
	}
	if err := r.params.Set(map[string]string{"V_COADD_IDENT": name, "V_COADD_FILTER": name}); err != nil {
		return configError("set filter", "write parameters", err)
	}
	r.filter = name
	return nil
}

// Summary renders the session banner.
func (r *Reduction) Summary() string {
	const pad = 20
	var b strings.Builder
	title := r.title
	fmt.Fprintf(&b, "\n%s  %s  %s\n", strings.Repeat("#", pad-2), title, strings.Repeat("#", max(4, 40-len(title))))
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-*s%s\n", pad, label, value)
	}
	line("Session info:", fmt.Sprintf("%d/%d CPU(s), %d FRAMES", r.threads, r.cpus, r.nframes))
	line("Instrument:", r.inst.Name)
	line("Main folder:", r.mainDir)
	for _, role := range Roles {
		if f := r.folders[role]; f != nil {
			line(role.Label()+" folder:", f.Name())
		}
	}
	if len(r.filters) > 0 {
		line("Filter(s):", strings.Join(r.filters, " / "))
	}
	return b.String()
}

// Run executes jobs in order. It stops at the first error; work completed by
// earlier jobs is kept.
func (r *Reduction) Run(ctx context.Context, jobs []Code, opts StageOptions) ([]StageResult, error) {
	if err := opts.Validate(); err != nil {
		r.reporter.Error(err.Error(), true)
		return nil, err
	}
	var results []StageResult
	for _, code := range jobs {
		d, ok := lookupDescriptor(code)
		if !ok {
			err := services.Wrap(services.ErrConfiguration, string(code), "run", "job is not supported", nil)
			r.reporter.Error(err.Error(), true)
			return results, err
		}
		stageCtx := services.WithStage(ctx, string(code))
		if len(opts.Params) > 0 {
			if err := r.params.Set(opts.Params); err != nil {
				err = services.Wrap(services.ErrConfiguration, string(code), "apply parameters", "", err)
				r.reporter.Error(err.Error(), true)
				return results, err
			}
		}
		s := &stage{r: r, d: d, opts: opts, ctx: stageCtx}
		err := s.run()
		for _, res := range s.results {
			if res.Status == "" {
				continue
			}
			results = append(results, *res)
		}
		if err != nil {
			logging.ErrorWithContext(logging.WithContext(stageCtx, r.logger), "stage failed", "stage_failed",
				logging.Error(err),
				logging.Int("exit_code", services.ExitCode(err)),
			)
			r.reporter.Error(failureMessage(err), true)
			return results, err
		}
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}
