package reduction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"theli/internal/folder"
	"theli/internal/jobrun"
	"theli/internal/logging"
	"theli/internal/services"
)

// Marker detects one kind of stage input or output in a folder.
type Marker struct {
	// Label names the files in messages ("OFCB images", "master frame").
	Label   string
	Present func(s *stage, t *target) (bool, error)
}

// Step is one action of a stage: a script invocation or an in-process
// Action run between invocations.
type Step struct {
	// Title is shown as a header before the step when set.
	Title          string
	Script         string
	Args           []string
	Parallel       bool
	IgnoreErrors   []string
	IgnoreMessages []string
	// Retries repeats a failed invocation whose fatal line contains RetryOn.
	Retries int
	RetryOn string
	Action  func(ctx context.Context) error
}

// Descriptor declares how one job decides and runs. The generic executor
// applies the same procedure to every (stage, folder) pair:
//
//  0. instrument-type restriction (stage skipped with a message)
//  1. more than one progress stage in the folder is a configuration error
//  2. output present and no redo: skipped
//  3. redo, output present and input missing: warning, folder untouched
//  4. input missing: precondition error
//  5. too few exposures: fatal or warn-and-skip
//  6. redo: Redo relocates or deletes previous output
//  7. Steps run in order; the first failure aborts the run
//  8. Post runs once when any folder was processed
type Descriptor struct {
	Code  Code
	Title string
	// Roles are the folders processed, in order; unconfigured ones are left
	// out. Required roles must be configured.
	Roles    []Role
	Required []Role
	// SkyIfReduced only includes the sky folder when sky reduction is on.
	SkyIfReduced bool
	// Only restricts the job to instrument types.
	Only []string
	// Flag is the tag flag the job appends; its outputs fold onto inputs
	// for the ambiguity check.
	Flag           string
	AllowAmbiguous bool
	// Sequences processes the <folder>_S<n> groups of a spread sequence
	// instead of the folder itself when they exist.
	Sequences bool

	Outputs []Marker
	Inputs  []Marker

	MinFrames    int
	FramesFatal  bool
	FramesWaived func(s *stage) bool

	Prepare func(s *stage) error
	Redo    func(s *stage, t *target) error
	Steps   func(s *stage, t *target) ([]Step, error)
	Post    func(s *stage) ([]Step, error)
	// Custom replaces the folder procedure entirely.
	Custom func(ctx context.Context, s *stage) error
}

// Status is the outcome of a stage for one folder.
type Status string

// Stage statuses.
const (
	StatusExecuted      Status = "executed"
	StatusSkipped       Status = "skipped"
	StatusWarned        Status = "warned"
	StatusNotApplicable Status = "not_applicable"
	StatusFailed        Status = "failed"
)

// StageResult reports what a job did with one folder.
type StageResult struct {
	Code        Code
	Role        Role
	Folder      string
	Status      Status
	Message     string
	Invocations int
	Warnings    []string
}

// stage is the state of one job execution.
type stage struct {
	r       *Reduction
	d       *Descriptor
	opts    StageOptions
	ctx     context.Context
	results []*StageResult
	updated bool
}

// target is one folder processed by a stage.
type target struct {
	role   Role
	folder *folder.Folder
	label  string
	scope  folder.Scope
	result *StageResult
}

func (t *target) name() string { return t.folder.Name() }

func (s *stage) main() string { return s.r.mainDir }

func (s *stage) header(t *target, title string) {
	if t == nil {
		s.r.reporter.Header(title)
		return
	}
	s.r.reporter.Header(fmt.Sprintf("%s (%s)", title, t.label))
}

func (s *stage) roles() []Role {
	var roles []Role
	for _, role := range s.d.Roles {
		if role == RoleSky && s.d.SkyIfReduced && !s.r.reduceSky {
			continue
		}
		if s.r.folders[role] != nil {
			roles = append(roles, role)
		}
	}
	return roles
}

func (s *stage) targets() ([]*target, error) {
	var out []*target
	for _, role := range s.roles() {
		f := s.r.folders[role]
		if s.d.Sequences {
			if n := f.CountGroups(); n > 0 {
				for i := 1; i <= n; i++ {
					seq, err := s.r.openFolder(f.SequenceDir(i))
					if err != nil {
						return nil, services.Wrap(services.ErrConfiguration, string(s.d.Code), string(role),
							fmt.Sprintf("open sequence folder %d", i), err)
					}
					out = append(out, s.newTarget(role, seq, fmt.Sprintf("%s %d", role, i)))
				}
				continue
			}
		}
		out = append(out, s.newTarget(role, f, string(role)))
	}
	return out, nil
}

func (s *stage) newTarget(role Role, f *folder.Folder, label string) *target {
	result := &StageResult{Code: s.d.Code, Role: role, Folder: f.Name()}
	s.results = append(s.results, result)
	return &target{
		role:   role,
		folder: f,
		label:  label,
		scope:  folder.Scope(string(s.d.Code) + "/" + label),
		result: result,
	}
}

// decide reports and records one decision.
func (s *stage) decide(t *target, kind, message string) {
	d := Decision{RunID: s.r.runID, Stage: s.d.Code, Kind: kind, Message: message, Time: time.Now()}
	if t != nil {
		d.Role = t.role
		d.Folder = t.folder.Name()
	}
	logger := logging.WithContext(s.ctx, s.r.logger)
	attrs := logging.DecisionAttrs("stage", kind, message)
	if t != nil {
		attrs = append(attrs, logging.String("folder", d.Folder))
	}
	logger.Info("stage decision", logging.Args(attrs...)...)
	if s.r.observer == nil {
		return
	}
	if err := s.r.observer.RecordDecision(s.ctx, d); err != nil {
		logging.WarnWithContext(logger, "failed to record decision", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the journal database"),
			logging.String(logging.FieldImpact, "run history is incomplete"),
		)
	}
}

func (s *stage) finish(t *target, status Status, message string) {
	t.result.Status = status
	t.result.Message = message
}

func (s *stage) skip(t *target, message string) {
	s.r.reporter.Skipped(message)
	s.decide(t, DecisionSkip, message)
	s.finish(t, StatusSkipped, message)
}

func (s *stage) warnSkip(t *target, kind, message string) {
	s.r.reporter.Warning(message)
	s.decide(t, kind, message)
	s.finish(t, StatusWarned, message)
}

// fail records a failed decision and returns the wrapped error.
func (s *stage) fail(t *target, marker error, message string, err error) error {
	operation := ""
	if t != nil {
		operation = t.label
		s.finish(t, StatusFailed, message)
	}
	s.decide(t, DecisionFailed, message)
	return services.Wrap(marker, string(s.d.Code), operation, message, err)
}

func (s *stage) tags(t *target) (folder.TagSet, error) {
	tags, err := t.folder.Tags(t.scope, true)
	if err != nil {
		return nil, err
	}
	return tags.Fold(s.d.Flag), nil
}

// tag returns the progress tag the folder's files are processed under.
func (s *stage) tag(t *target) string {
	tags, err := t.folder.Tags(t.scope, true)
	if err != nil || tags.Len() == 0 {
		return folder.BaseTag
	}
	if only, ok := tags.Only(); ok {
		return only
	}
	if only, ok := tags.Fold(s.d.Flag).Only(); ok {
		return only
	}
	return tags.Sorted()[0]
}

func (s *stage) anyPresent(t *target, markers []Marker) (Marker, bool, error) {
	for _, m := range markers {
		ok, err := m.Present(s, t)
		if err != nil {
			return m, false, err
		}
		if ok {
			return m, true, nil
		}
	}
	return Marker{}, false, nil
}

func (s *stage) param(key string) (string, error) {
	value, err := s.r.params.Get(key)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, string(s.d.Code), "read parameter", key, err)
	}
	return value, nil
}

func (s *stage) run() error {
	d := s.d
	if len(d.Only) > 0 && !slices.Contains(d.Only, s.r.inst.Type) {
		s.r.reporter.Header(d.Title)
		msg := fmt.Sprintf("only applicable to %s instruments", strings.Join(d.Only, "/"))
		s.r.reporter.Error(msg, false)
		s.decide(nil, DecisionNotApplicable, msg)
		s.results = append(s.results, &StageResult{Code: d.Code, Status: StatusNotApplicable, Message: msg})
		s.r.reporter.Separator()
		return nil
	}
	for _, role := range d.Required {
		if s.r.folders[role] == nil {
			s.r.reporter.Header(d.Title)
			return s.fail(nil, services.ErrConfiguration, fmt.Sprintf("%s folder not specified", role), nil)
		}
	}
	if d.Prepare != nil {
		if err := d.Prepare(s); err != nil {
			s.r.reporter.Header(d.Title)
			return err
		}
	}
	if d.Custom != nil {
		if err := d.Custom(s.ctx, s); err != nil {
			return err
		}
		s.r.reporter.Separator()
		return nil
	}
	targets, err := s.targets()
	if err != nil {
		return err
	}
	for _, t := range targets {
		if err := s.runTarget(t); err != nil {
			return err
		}
	}
	if s.updated && d.Post != nil {
		steps, err := d.Post(s)
		if err != nil {
			return err
		}
		for _, step := range steps {
			if err := s.invoke(nil, step); err != nil {
				return err
			}
		}
	}
	s.r.reporter.Separator()
	return nil
}

func (s *stage) runTarget(t *target) error {
	d := s.d
	redo := s.opts.Redo
	s.header(t, d.Title)

	if !d.AllowAmbiguous {
		tags, err := s.tags(t)
		if err != nil {
			return s.fail(t, services.ErrConfiguration, "scan folder", err)
		}
		if tags.Len() > 1 {
			labels := tags.Sorted()
			for i, tag := range labels {
				labels[i] = folder.Label(tag)
			}
			return s.fail(t, services.ErrConfiguration,
				fmt.Sprintf("found multiple progress stages (%s)", strings.Join(labels, ", ")), nil)
		}
	}

	out, outPresent, err := s.anyPresent(t, d.Outputs)
	if err != nil {
		return s.fail(t, services.ErrConfiguration, "inspect output", err)
	}
	if outPresent && !redo {
		s.skip(t, out.Label+" found")
		return nil
	}

	for _, in := range d.Inputs {
		ok, err := in.Present(s, t)
		if err != nil {
			return s.fail(t, services.ErrConfiguration, "inspect input", err)
		}
		if ok {
			continue
		}
		if redo && outPresent {
			s.warnSkip(t, DecisionRedoSkip, fmt.Sprintf("no %s found - skipping redo", in.Label))
			return nil
		}
		return s.fail(t, services.ErrPrecondition, fmt.Sprintf("no %s found", in.Label), nil)
	}

	if d.MinFrames > 0 && (d.FramesWaived == nil || !d.FramesWaived(s)) {
		n, err := t.folder.FitsCount(t.scope, "*")
		if err != nil {
			return s.fail(t, services.ErrConfiguration, "count exposures", err)
		}
		if n < d.MinFrames {
			msg := fmt.Sprintf("need at least %d exposures, found %d", d.MinFrames, n)
			if d.FramesFatal {
				return s.fail(t, services.ErrInsufficientData, msg, nil)
			}
			s.warnSkip(t, DecisionInsufficient, msg)
			return nil
		}
	}

	if redo && outPresent && d.Redo != nil {
		if err := d.Redo(s, t); err != nil {
			return s.fail(t, services.ErrConfiguration, "remove previous output", err)
		}
	}

	var steps []Step
	if d.Steps != nil {
		if steps, err = d.Steps(s, t); err != nil {
			return s.fail(t, services.ErrConfiguration, "prepare steps", err)
		}
	}
	s.decide(t, DecisionExecute, fmt.Sprintf("%d step(s)", len(steps)))
	for _, step := range steps {
		if err := s.invoke(t, step); err != nil {
			t.result.Status = StatusFailed
			return err
		}
	}
	s.updated = true
	if t.result.Status == "" {
		t.result.Status = StatusExecuted
	}
	return nil
}

// invoke runs one step. Failures are returned as *jobrun.FailureError.
func (s *stage) invoke(t *target, step Step) error {
	if step.Title != "" {
		s.header(t, step.Title)
	}
	if step.Action != nil {
		return step.Action(s.ctx)
	}
	job := jobrun.Job{
		Script:         step.Script,
		Args:           step.Args,
		Env:            s.r.env,
		Parallel:       step.Parallel,
		IgnoreErrors:   step.IgnoreErrors,
		IgnoreMessages: step.IgnoreMessages,
	}
	for attempt := 0; ; attempt++ {
		outcome, err := s.r.invoker.Invoke(s.ctx, job)
		if t != nil {
			t.result.Invocations++
		}
		if err != nil {
			return err
		}
		for _, w := range outcome.Warnings {
			s.r.reporter.Warning(w.Message)
			if t != nil {
				t.result.Warnings = append(t.result.Warnings, w.Message)
			}
		}
		if !outcome.Failed() {
			return nil
		}
		if step.RetryOn == "" || !strings.Contains(outcome.Text, step.RetryOn) {
			return outcome.Err(step.Script)
		}
		if attempt >= step.Retries {
			return services.Wrap(services.ErrExternalTool, string(s.d.Code), step.Script,
				fmt.Sprintf("giving up after %d retries", step.Retries), outcome.Err(step.Script))
		}
		if attempt == 0 {
			s.r.reporter.Warning("retry connecting to server")
		}
		if err := s.r.sleep(s.ctx, retryDelay(attempt)); err != nil {
			return err
		}
	}
}

// retryDelay grows the wait between connection attempts by 5 s each time.
func retryDelay(attempt int) time.Duration {
	return 5*time.Second + time.Duration(attempt)*5*time.Second
}

// failureMessage renders err for the console.
func failureMessage(err error) string {
	var failure *jobrun.FailureError
	if errors.As(err, &failure) {
		return fmt.Sprintf("found in line %d of log:\n         %s", failure.LogLine(), failure.LogPath)
	}
	return err.Error()
}
