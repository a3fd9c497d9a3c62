package reduction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"theli/internal/fitsheader"
	"theli/internal/instrument"
	"theli/internal/jobrun"
	"theli/internal/services"
)

type memParams map[string]string

func (m memParams) Get(key string) (string, error) { return m[key], nil }

func (m memParams) Set(updates map[string]string) error {
	for k, v := range updates {
		m[k] = v
	}
	return nil
}

type stubInvoker struct {
	jobs    []jobrun.Job
	respond func(job jobrun.Job) jobrun.Outcome
}

func (s *stubInvoker) Invoke(_ context.Context, job jobrun.Job) (jobrun.Outcome, error) {
	s.jobs = append(s.jobs, job)
	if s.respond != nil {
		return s.respond(job), nil
	}
	return jobrun.Outcome{}, nil
}

func (s *stubInvoker) scripts() []string {
	out := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		out[i] = job.Script
	}
	return out
}

type stubSystem struct{}

func (stubSystem) CPUs() int                       { return 2 }
func (stubSystem) PhysicalMemory() (uint64, error) { return 8 << 30, nil }
func (stubSystem) Kernel() string                  { return "linux" }

type stubTools struct{}

func (stubTools) PosAngle(context.Context, string) (float64, error) {
	return 0, errors.New("no headers")
}

type decisionLog struct {
	decisions []Decision
}

func (d *decisionLog) RecordDecision(_ context.Context, dec Decision) error {
	d.decisions = append(d.decisions, dec)
	return nil
}

// unreadableParams fails reads of one key.
type unreadableParams struct {
	memParams
	key string
}

func (u unreadableParams) Get(key string) (string, error) {
	if key == u.key {
		return "", errors.New("parameter file is locked")
	}
	return u.memParams.Get(key)
}

type project struct {
	main    string
	params  memParams
	broken  string
	invoker *stubInvoker
	journal *decisionLog
	sleeps  []time.Duration
}

func newProject(t *testing.T) *project {
	t.Helper()
	return &project{
		main:    t.TempDir(),
		params:  memParams{},
		invoker: &stubInvoker{},
		journal: &decisionLog{},
	}
}

func (p *project) dir(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(p.main, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	return path
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func writeSplit(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := fitsheader.WriteMinimal(filepath.Join(dir, name), "HISTORY mefsplit: extension 1"); err != nil {
			t.Fatalf("WriteMinimal: %v", err)
		}
	}
}

func (p *project) open(t *testing.T, instType string, folders map[Role]string) *Reduction {
	t.Helper()
	catalog := instrument.NewCatalog(instrument.Instrument{
		Name: "TEST@TEL", SizeX: 100, SizeY: 100, Chips: 1, Type: instType, PixScale: 0.2,
	})
	var params Parameters = p.params
	if p.broken != "" {
		params = unreadableParams{memParams: p.params, key: p.broken}
	}
	r, err := New(context.Background(), Options{
		MainDir:    p.main,
		Folders:    folders,
		Instrument: "TEST@TEL",
		Catalog:    catalog,
		Params:     params,
		Invoker:    p.invoker,
		Observer:   p.journal,
		System:     stubSystem{},
		Tools:      stubTools{},
		RunID:      "run-1",
		Sleep: func(_ context.Context, d time.Duration) error {
			p.sleeps = append(p.sleeps, d)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return r
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestParseJobs(t *testing.T) {
	codes, err := ParseJobs("CsBmCa")
	if err != nil {
		t.Fatalf("ParseJobs returned error: %v", err)
	}
	want := []Code{CalibrateData, BackgroundModel, Coaddition}
	if !reflect.DeepEqual(codes, want) {
		t.Fatalf("codes = %v, want %v", codes, want)
	}

	for _, input := range []string{"", "Cs B", "CsXx", "CsPi"} {
		if _, err := ParseJobs(input); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("ParseJobs(%q) error = %v, want configuration error", input, err)
		}
	}
}

func TestEverySupportedJobHasDescriptor(t *testing.T) {
	for _, info := range Catalogue {
		_, ok := lookupDescriptor(info.Code)
		if ok != info.Supported {
			t.Fatalf("job %s: descriptor present = %v, supported = %v", info.Code, ok, info.Supported)
		}
	}
}

func TestNewSetsProjectParameters(t *testing.T) {
	p := newProject(t)
	p.dir(t, "SCIENCE")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	if r.Title() != "SCIENCE" {
		t.Fatalf("title = %q, want SCIENCE", r.Title())
	}
	checks := map[string]string{
		"PROJECTNAME":      "SCIENCE",
		"NPARA":            "2",
		"KERNEL":           "linux",
		"V_COADD_PIXSCALE": "0.2",
	}
	for key, want := range checks {
		if got := p.params[key]; got != want {
			t.Fatalf("%s = %q, want %q", key, got, want)
		}
	}
	if p.params["NFRAMES"] == "" {
		t.Fatal("NFRAMES not set")
	}
}

func TestNewRejectsFolderOutsideMain(t *testing.T) {
	p := newProject(t)
	p.dir(t, "SCIENCE")
	_, err := New(context.Background(), Options{
		MainDir:    p.main,
		Folders:    map[Role]string{RoleScience: "/elsewhere/SCIENCE"},
		Instrument: "TEST@TEL",
		Catalog:    instrument.NewCatalog(instrument.Instrument{Name: "TEST@TEL", Chips: 1, Type: instrument.TypeOptical}),
		Params:     p.params,
		Invoker:    p.invoker,
		System:     stubSystem{},
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
	if !strings.Contains(err.Error(), "root folder differs") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewRejectsUnknownInstrument(t *testing.T) {
	p := newProject(t)
	_, err := New(context.Background(), Options{
		MainDir:    p.main,
		Instrument: "NOPE@NOWHERE",
		Catalog:    instrument.NewCatalog(),
		Params:     p.params,
		Invoker:    p.invoker,
		System:     stubSystem{},
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestSplitRunsOnRawFolder(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a.fits", "b.fits", "c.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	if _, err := r.Run(context.Background(), []Code{SplitImages}, DefaultStageOptions()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(p.invoker.jobs) != 1 {
		t.Fatalf("jobs = %v, want one split invocation", p.invoker.scripts())
	}
	job := p.invoker.jobs[0]
	if job.Script != "process_split_TEST@TEL.sh" || !reflect.DeepEqual(job.Args, []string{r.MainDir(), "SCIENCE"}) {
		t.Fatalf("job = %s %v", job.Script, job.Args)
	}
}

func TestSplitRejectsMixedTags(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "raw.fits")
	writeSplit(t, sci, "obj_1.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{SplitImages}, DefaultStageOptions())
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "multiple progress stages") {
		t.Fatalf("error = %v, want ambiguity error", err)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
}

func TestCalibrateRejectsMixedTags(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	writeSplit(t, sci, "a_1.fits", "b_1.fits", "c_1.fits")
	touch(t, sci, "a_1OFC.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{CalibrateData}, DefaultStageOptions())
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), `"", OFC`) {
		t.Fatalf("error = %v, want ambiguity error", err)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
}

func TestCalibrateNeedsSplitImages(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a.fits", "b.fits", "c.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{CalibrateData}, DefaultStageOptions())
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("error = %v, want precondition error", err)
	}
	if !strings.Contains(err.Error(), "no split images found") {
		t.Fatalf("error = %v", err)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
}

func TestBackgroundSkipsExistingOutput(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFCB.fits", "b_1OFCB.fits", "c_1OFCB.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	results, err := r.Run(context.Background(), []Code{BackgroundModel}, DefaultStageOptions())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
	if len(results) != 1 || results[0].Status != StatusSkipped {
		t.Fatalf("results = %+v, want one skipped result", results)
	}
	last := p.journal.decisions[len(p.journal.decisions)-1]
	if last.Kind != DecisionSkip || last.Stage != BackgroundModel || last.RunID != "run-1" {
		t.Fatalf("decision = %+v", last)
	}
}

func TestBackgroundRedoRelocatesOutput(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFCB.fits", "b_1OFCB.fits", "c_1OFCB.fits")
	touch(t, filepath.Join(sci, "OFC_IMAGES"), "a_1OFC.fits", "b_1OFC.fits", "c_1OFC.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	opts := DefaultStageOptions()
	opts.Redo = true
	if _, err := r.Run(context.Background(), []Code{BackgroundModel}, opts); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !exists(filepath.Join(sci, "a_1OFC.fits")) {
		t.Fatal("OFC images were not restored")
	}
	if !exists(filepath.Join(sci, "OFC_IMAGES", "a_1OFCB.fits")) || exists(filepath.Join(sci, "a_1OFCB.fits")) {
		t.Fatal("OFCB images were not moved aside")
	}
	if len(p.invoker.jobs) != 1 {
		t.Fatalf("jobs = %v, want one invocation", p.invoker.scripts())
	}
	job := p.invoker.jobs[0]
	want := []string{r.MainDir(), "SCIENCE", "noskydir"}
	if job.Script != "process_background_para.sh" || !job.Parallel || !reflect.DeepEqual(job.Args, want) {
		t.Fatalf("job = %s %v parallel=%v", job.Script, job.Args, job.Parallel)
	}
}

func TestBackgroundRedoBesideCalibratedImages(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	for i := 1; i <= 4; i++ {
		touch(t, sci, fmt.Sprintf("obj_%dOFC.fits", i), fmt.Sprintf("obj_%dOFCB.fits", i))
	}
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	opts := DefaultStageOptions()
	opts.Redo = true
	results, err := r.Run(context.Background(), []Code{BackgroundModel}, opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != StatusExecuted {
		t.Fatalf("results = %+v, want one executed result", results)
	}
	for i := 1; i <= 4; i++ {
		ofc := fmt.Sprintf("obj_%dOFC.fits", i)
		ofcb := fmt.Sprintf("obj_%dOFCB.fits", i)
		if !exists(filepath.Join(sci, ofc)) {
			t.Fatalf("%s is no longer visible as input", ofc)
		}
		if exists(filepath.Join(sci, ofcb)) || !exists(filepath.Join(sci, "OFC_IMAGES", ofcb)) {
			t.Fatalf("%s was not moved into OFC_IMAGES", ofcb)
		}
	}
	if got := p.invoker.scripts(); !reflect.DeepEqual(got, []string{"process_background_para.sh"}) {
		t.Fatalf("scripts = %v, want one background invocation", got)
	}
}

func TestStepPreparationFailureMarksTarget(t *testing.T) {
	p := newProject(t)
	p.broken = "V_BACK_MAGLIMIT"
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFC.fits", "b_1OFC.fits", "c_1OFC.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	results, err := r.Run(context.Background(), []Code{BackgroundModel}, DefaultStageOptions())
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "parameter file is locked") {
		t.Fatalf("error = %v, want wrapped configuration error", err)
	}
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Fatalf("results = %+v, want one failed result", results)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
	last := p.journal.decisions[len(p.journal.decisions)-1]
	if last.Kind != DecisionFailed {
		t.Fatalf("last decision = %+v, want failed", last)
	}
}

func TestRedoWithoutInputWarns(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFCB.fits", "b_1OFCB.fits", "c_1OFCB.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	opts := DefaultStageOptions()
	opts.Redo = true
	results, err := r.Run(context.Background(), []Code{BackgroundModel}, opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != StatusWarned {
		t.Fatalf("results = %+v, want one warned result", results)
	}
	if !strings.Contains(results[0].Message, "skipping redo") {
		t.Fatalf("message = %q", results[0].Message)
	}
	if len(p.invoker.jobs) != 0 || !exists(filepath.Join(sci, "a_1OFCB.fits")) {
		t.Fatal("folder was modified")
	}
}

func TestMultipleProgressStagesRejected(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFC.fits", "b_1OFCH.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{BackgroundModel}, DefaultStageOptions())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration error", err)
	}
	if !strings.Contains(err.Error(), "found multiple progress stages (OFC, OFCH)") {
		t.Fatalf("error = %v", err)
	}
}

func TestBiasNeedsThreeExposures(t *testing.T) {
	p := newProject(t)
	bias := p.dir(t, "BIAS")
	writeSplit(t, bias, "b1_1.fits", "b2_1.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleBias: "BIAS"})

	_, err := r.Run(context.Background(), []Code{ProcessBiases}, DefaultStageOptions())
	if !errors.Is(err, services.ErrInsufficientData) {
		t.Fatalf("error = %v, want insufficient data", err)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
}

func TestMissingRequiredFolder(t *testing.T) {
	p := newProject(t)
	p.dir(t, "SCIENCE")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{ProcessBiases}, DefaultStageOptions())
	if !errors.Is(err, services.ErrConfiguration) || !strings.Contains(err.Error(), "bias folder not specified") {
		t.Fatalf("error = %v", err)
	}
}

func TestFlatRunsPostSteps(t *testing.T) {
	p := newProject(t)
	flat := p.dir(t, "FLAT")
	writeSplit(t, flat, "f1_1.fits", "f2_1.fits", "f3_1.fits")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleFlat: "FLAT"})

	if _, err := r.Run(context.Background(), []Code{ProcessFlats}, DefaultStageOptions()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := []string{"process_flat_para.sh", "create_flat_ratio.sh", "create_norm_para.sh"}
	if !reflect.DeepEqual(p.invoker.scripts(), want) {
		t.Fatalf("scripts = %v, want %v", p.invoker.scripts(), want)
	}
	if got := p.invoker.jobs[0].Args; !reflect.DeepEqual(got, []string{r.MainDir(), "nobiasdir", "FLAT"}) {
		t.Fatalf("flat args = %v", got)
	}
}

func TestInstrumentRestriction(t *testing.T) {
	p := newProject(t)
	p.dir(t, "SCIENCE")
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	results, err := r.Run(context.Background(), []Code{SpreadSequence}, DefaultStageOptions())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != StatusNotApplicable {
		t.Fatalf("results = %+v", results)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("unexpected invocations %v", p.invoker.scripts())
	}
}

func TestWebCatalogRetriesOnNameResolution(t *testing.T) {
	p := newProject(t)
	sci := p.dir(t, "SCIENCE")
	touch(t, sci, "a_1OFC.fits")
	p.invoker.respond = func(jobrun.Job) jobrun.Outcome {
		return jobrun.Outcome{Line: 4, Text: "wget: Temporary failure in name resolution"}
	}
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleScience: "SCIENCE"})

	_, err := r.Run(context.Background(), []Code{AstromRefCatalog}, DefaultStageOptions())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool error", err)
	}
	if len(p.invoker.jobs) != webRetries+1 {
		t.Fatalf("invocations = %d, want %d", len(p.invoker.jobs), webRetries+1)
	}
	if len(p.sleeps) != webRetries || p.sleeps[0] != 5*time.Second || p.sleeps[1] != 10*time.Second {
		t.Fatalf("sleeps = %v", p.sleeps)
	}
}

func TestScriptFailureStopsRun(t *testing.T) {
	p := newProject(t)
	flat := p.dir(t, "FLAT")
	writeSplit(t, flat, "f1_1.fits", "f2_1.fits", "f3_1.fits")
	p.invoker.respond = func(jobrun.Job) jobrun.Outcome {
		return jobrun.Outcome{Line: 12, Text: "Error: cannot open", LogPath: "/tmp/process_flat_para.log"}
	}
	r := p.open(t, instrument.TypeOptical, map[Role]string{RoleFlat: "FLAT"})

	results, err := r.Run(context.Background(), []Code{ProcessFlats, CalibrateData}, DefaultStageOptions())
	var failure *jobrun.FailureError
	if !errors.As(err, &failure) || failure.Line != 12 {
		t.Fatalf("error = %v, want script failure", err)
	}
	if len(p.invoker.jobs) != 1 {
		t.Fatalf("scripts = %v, want the run to stop after the failure", p.invoker.scripts())
	}
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Fatalf("results = %+v", results)
	}
	if msg := failureMessage(err); !strings.Contains(msg, fmt.Sprintf("line %d of log", 12+jobrun.BannerLines)) {
		t.Fatalf("failure message = %q", msg)
	}
}

func TestAverageDetections(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, lines int) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Repeat("row\n", lines)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("exp1_1.reg", 11)
	write("exp1_2.reg", 11)
	write("exp2_1.reg", 31)
	write("theli_mystd.reg", 500)

	avg, ok := averageDetections(dir)
	if !ok || avg != 25 {
		t.Fatalf("average = %d (%v), want 25", avg, ok)
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{55000: "55000.0", 0.2: "0.2", -1: "-1.0"}
	for in, want := range cases {
		if got := formatFloat(in); got != want {
			t.Fatalf("formatFloat(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNewCleansTempAndLinksDebloom(t *testing.T) {
	p := newProject(t)
	base := t.TempDir()
	tempDir := filepath.Join(base, "tmp")
	binDir := filepath.Join(base, "bin")
	touch(t, tempDir, "leftover.cat")
	touch(t, binDir, "fitsdebloom")

	catalog := instrument.NewCatalog(instrument.Instrument{Name: "TEST@TEL", SizeX: 100, SizeY: 100, Chips: 1, Type: "OPT"})
	_, err := New(context.Background(), Options{
		MainDir:    p.main,
		Instrument: "TEST@TEL",
		Catalog:    catalog,
		Params:     p.params,
		Invoker:    p.invoker,
		System:     stubSystem{},
		Tools:      stubTools{},
		TempDir:    tempDir,
		BinDir:     binDir,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if exists(filepath.Join(tempDir, "leftover.cat")) {
		t.Fatal("temp directory not cleaned")
	}
	target, err := os.Readlink(filepath.Join(binDir, "debloom"))
	if err != nil {
		t.Fatalf("debloom link missing: %v", err)
	}
	if target != filepath.Join(binDir, "fitsdebloom") {
		t.Fatalf("debloom -> %s", target)
	}
	if len(p.invoker.jobs) != 0 {
		t.Fatalf("New invoked scripts: %v", p.invoker.scripts())
	}
}
