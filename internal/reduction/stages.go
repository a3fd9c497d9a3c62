package reduction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"theli/internal/folder"
	"theli/internal/instrument"
	"theli/internal/services"
)

var (
	allRoles    = Roles
	dataRoles   = []Role{RoleScience, RoleSky, RoleStandard}
	reduceRoles = []Role{RoleScience, RoleSky}
	science     = []Role{RoleScience}
	nearIR      = []string{instrument.TypeNearIR, instrument.TypeNearIRMP}
)

var descriptors = map[Code]*Descriptor{}

func register(d *Descriptor) {
	descriptors[d.Code] = d
}

func lookupDescriptor(code Code) (*Descriptor, bool) {
	d, ok := descriptors[code]
	return d, ok
}

func init() {
	register(&Descriptor{
		Code:  SortRawData,
		Title: "Sorting raw data",
		Custom: func(ctx context.Context, s *stage) error {
			s.r.reporter.Header("Sorting raw data")
			s.decide(nil, DecisionExecute, "sort raw data")
			return s.invoke(nil, Step{Script: "sort_rawdata.sh", Args: []string{s.main()}})
		},
	})

	register(&Descriptor{
		Code:    SplitImages,
		Title:   "Splitting FITS, correcting headers",
		Roles:   allRoles,
		Prepare: rejectCrossTalk,
		Outputs: []Marker{masterMarker, splitMarker},
		Inputs:  []Marker{originalsMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			return []Step{{
				Script: fmt.Sprintf("process_split_%s.sh", s.r.inst.Name),
				Args:   []string{s.main(), t.name()},
			}}, nil
		},
	})

	register(&Descriptor{
		Code:   CreateLinks,
		Title:  "Creating links",
		Custom: createLinks,
	})

	register(calibration(ProcessBiases, "Processing biases", RoleBias, "process_bias_para.sh",
		func(o StageOptions) ModeRange { return o.BiasMode }))
	register(calibration(ProcessDarks, "Processing darks", RoleDark, "process_dark_para.sh",
		func(o StageOptions) ModeRange { return o.DarkMode }))

	register(&Descriptor{
		Code:        ProcessFlats,
		Title:       "Processing flats",
		Roles:       []Role{RoleFlat, RoleFlatOff},
		Required:    []Role{RoleFlat},
		Prepare:     requireBiasMaster,
		Outputs:     []Marker{flatMasterMarker},
		Inputs:      []Marker{splitMarker},
		MinFrames:   3,
		FramesFatal: true,
		Redo:        deleteMaster,
		Steps: func(s *stage, t *target) ([]Step, error) {
			steps := brightnessCheck(s, t, s.opts.FlatMode)
			return append(steps, Step{
				Script:   "process_flat_para.sh",
				Args:     []string{s.main(), s.folderName(RoleBias, "nobiasdir"), t.name()},
				Parallel: true,
			}), nil
		},
		Post: func(s *stage) ([]Step, error) {
			flat := s.folderName(RoleFlat, "")
			var steps []Step
			if off := s.folderName(RoleFlatOff, ""); off != "" {
				steps = append(steps, Step{
					Title:    "Subtracting flat (off)",
					Script:   "subtract_flat_flatoff_para.sh",
					Args:     []string{s.main(), flat, off},
					Parallel: true,
				})
			}
			return append(steps,
				Step{Title: "Calculating gain ratios", Script: "create_flat_ratio.sh", Args: []string{s.main(), flat}},
				Step{Title: "Normalising flat", Script: "create_norm_para.sh", Args: []string{s.main(), flat}, Parallel: true},
			), nil
		},
	})

	register(&Descriptor{
		Code:     CalibrateData,
		Title:    "Calibrating data",
		Roles:    dataRoles,
		Required: science,
		Prepare:  requireCalibrationMasters,
		Outputs:  []Marker{calibratedMarker},
		Inputs:   []Marker{splitMarker},
		Redo: func(_ *stage, t *target) error {
			if err := t.folder.LiftContent(folder.SplitDir); err != nil {
				return err
			}
			return t.folder.MoveTag("OF*", folder.HoldingDir(folder.BaseTag), true)
		},
		Steps: func(s *stage, t *target) ([]Step, error) {
			biasdark := s.folderName(RoleBias, "nobiasdir")
			if s.opts.UseDark {
				biasdark = s.folderName(RoleDark, "nodarkdir")
			}
			steps := brightnessCheck(s, t, s.opts.DataMode)
			return append(steps, Step{
				Script:   "process_science_para.sh",
				Args:     []string{s.main(), biasdark, s.folderName(RoleFlat, "noflatdir"), t.name()},
				Parallel: true,
			}), nil
		},
	})

	register(&Descriptor{
		Code:     SpreadSequence,
		Title:    "Spreading sequence",
		Roles:    dataRoles,
		Required: science,
		Only:     nearIR,
		Prepare: func(s *stage) error {
			if s.opts.NGroups <= 0 || s.opts.GroupLen <= 0 {
				return s.fail(nil, services.ErrConfiguration, "number of groups and group length must be positive", nil)
			}
			return nil
		},
		Outputs: []Marker{{Label: "image sequence", Present: func(s *stage, t *target) (bool, error) {
			n := t.folder.CountGroups()
			if n == 0 {
				return false, nil
			}
			if n != s.opts.NGroups {
				return false, fmt.Errorf("found %d sequence folders, but %d groups are requested", n, s.opts.NGroups)
			}
			return true, nil
		}}},
		Inputs: []Marker{tagMarker("OFC images", folder.BaseTag+"*", false)},
		Steps: func(s *stage, t *target) ([]Step, error) {
			return []Step{{
				Script: "spread_sequence.sh",
				Args: []string{s.main(), t.name(), s.tag(t),
					strconv.Itoa(s.opts.NGroups), strconv.Itoa(s.opts.GroupLen)},
			}}, nil
		},
	})

	register(&Descriptor{
		Code:         BackgroundModel,
		Title:        "Background modeling",
		Roles:        dataRoles,
		Required:     science,
		SkyIfReduced: true,
		Flag:         "B",
		Sequences:    true,
		Outputs:      []Marker{flagOutput("B", "OFCB images")},
		Inputs:       []Marker{flagInput("B", "OFC images")},
		MinFrames:    3,
		FramesWaived: func(s *stage) bool { return s.r.folders[RoleSky] != nil },
		Redo:         relocateFlag("B"),
		Steps: func(s *stage, t *target) ([]Step, error) {
			maglimit, err := s.param("V_BACK_MAGLIMIT")
			if err != nil {
				return nil, err
			}
			sky := s.folderName(RoleSky, "noskydir")
			var steps []Step
			if strings.TrimSpace(maglimit) != "" {
				source := t.name()
				if sky != "noskydir" {
					source = sky
				}
				steps = append(steps, Step{
					Title:  "Identifying bright objects",
					Script: "id_bright_objects.sh",
					Args:   []string{s.main(), source, s.tag(t)},
				})
			}
			return append(steps, Step{
				Script:   "process_background_para.sh",
				Args:     []string{s.main(), t.name(), sky},
				Parallel: true,
			}), nil
		},
	})

	register(&Descriptor{
		Code:           MergeSequence,
		Title:          "Merging sequence",
		Roles:          dataRoles,
		Required:       science,
		Only:           nearIR,
		AllowAmbiguous: true,
		Inputs:         []Marker{sequenceMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			tag, err := sequenceTag(s, t)
			if err != nil {
				return nil, err
			}
			return []Step{{
				Script: "merge_sequence.sh",
				Args:   []string{s.main(), t.name(), tag, strconv.Itoa(t.folder.CountGroups())},
			}}, nil
		},
	})

	register(flagStage(ChopNodSubtraction, "Chop/nod sky subtraction", "H", []string{instrument.TypeMIR},
		func(s *stage, t *target) Step {
			invert := "0"
			if s.opts.ChopInvert {
				invert = "1"
			}
			return Step{
				Script:   "process_science_chopnod_para.sh",
				Args:     []string{s.main(), t.name(), s.tag(t), "P" + s.opts.ChopPattern, invert},
				Parallel: true,
			}
		}))

	register(flagStage(CollapseCorrection, "Collapse correction", "C", nil,
		func(s *stage, t *target) Step {
			return Step{
				Script:   "process_collapsecorr_para.sh",
				Args:     []string{s.main(), t.name(), s.tag(t)},
				Parallel: true,
			}
		}))

	register(flagStage(Debloom, "Debloom images", "D", []string{instrument.TypeOptical},
		func(s *stage, t *target) Step {
			return Step{
				Script:   "create_debloomedimages_para.sh",
				Args:     []string{s.main(), t.name(), s.tag(t), formatFloat(s.opts.Saturation)},
				Parallel: true,
			}
		}))

	register(&Descriptor{
		Code:           BinnedPreview,
		Title:          "Creating binned preview",
		Roles:          dataRoles,
		Required:       science,
		SkyIfReduced:   true,
		AllowAmbiguous: true,
		Outputs:        []Marker{predicate("binned previews", (*folder.Folder).ContainsPreview)},
		Inputs:         []Marker{imagesMarker},
		Redo: func(_ *stage, t *target) error {
			if err := t.folder.Delete(folder.BinnedFITSDir); err != nil {
				return err
			}
			return t.folder.Delete(folder.BinnedTIFFDir)
		},
		Steps: func(s *stage, t *target) ([]Step, error) {
			tags, err := processableTags(t, false)
			if err != nil {
				return nil, err
			}
			var steps []Step
			for _, tag := range tags {
				if t.folder.Chips() > 1 {
					steps = append(steps, Step{
						Title:  "Creating mosaic " + folder.Label(tag),
						Script: fmt.Sprintf("make_album_%s.sh", s.r.inst.Name),
						Args:   []string{s.main(), t.name(), tag},
					})
				}
				steps = append(steps, Step{
					Title:  "Creating TIFF preview " + folder.Label(tag),
					Script: "create_tiff.sh",
					Args:   []string{s.main(), t.name(), tag},
				})
			}
			return steps, nil
		},
	})

	register(&Descriptor{
		Code:           GlobalWeights,
		Title:          "Creating global weights",
		Roles:          science,
		Required:       science,
		AllowAmbiguous: true,
		Prepare:        requireFlatForWeights,
		Outputs:        []Marker{globalWeightsMarker},
		Inputs:         []Marker{imagesMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			norm := "noflatdir"
			if flat := s.r.folders[RoleFlat]; flat != nil {
				norm = filepath.Base(flat.NormDir())
			}
			return []Step{{
				Script:   "create_global_weights_para.sh",
				Args:     []string{s.main(), norm, t.name()},
				Parallel: true,
			}}, nil
		},
	})

	register(&Descriptor{
		Code:           CreateWeights,
		Title:          "Creating weight maps",
		Roles:          dataRoles,
		Required:       science,
		SkyIfReduced:   true,
		AllowAmbiguous: true,
		Outputs:        []Marker{weightsMarker},
		Inputs:         []Marker{imagesMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			tags, err := processableTags(t, true)
			if err != nil {
				return nil, err
			}
			steps := []Step{{
				Title:  "Transforming region masks",
				Script: "transform_ds9_reg.sh",
				Args:   []string{s.main(), t.name()},
			}}
			for _, tag := range tags {
				steps = append(steps, Step{
					Script:   "create_weights_para.sh",
					Args:     []string{s.main(), t.name(), tag},
					Parallel: true,
				})
			}
			return steps, nil
		},
	})

	register(&Descriptor{
		Code:         DistributeSets,
		Title:        "Distributing target sets",
		Roles:        dataRoles,
		Required:     science,
		SkyIfReduced: true,
		Inputs:       []Marker{imagesMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			return []Step{{
				Script: "distribute_sets.sh",
				Args:   []string{s.main(), t.name(), s.tag(t), formatFloat(s.opts.MinOverlap)},
			}}, nil
		},
	})

	register(&Descriptor{
		Code:     AstromRefCatalog,
		Title:    "Creating astrometric reference catalog",
		Roles:    science,
		Required: science,
		Prepare:  checkRefImage,
		Outputs:  []Marker{predicate("reference catalogue", (*folder.Folder).ContainsRefCatalog)},
		Inputs:   []Marker{imagesMarker},
		Steps:    refCatalogSteps,
	})

	register(&Descriptor{
		Code:         SourceCatalogs,
		Title:        "Detecting sources",
		Roles:        reduceRoles,
		Required:     science,
		SkyIfReduced: true,
		Outputs:      []Marker{predicate("source catalogues", (*folder.Folder).ContainsCatalogs)},
		Inputs:       []Marker{imagesMarker},
		Steps: func(s *stage, t *target) ([]Step, error) {
			tag := s.tag(t)
			steps := []Step{{
				Script:   "create_astromcats_para.sh",
				Args:     []string{s.main(), t.name(), tag},
				Parallel: true,
			}}
			if t.folder.Chips() > 1 {
				steps = append(steps, Step{
					Title:  "Merging multi-chip object catalogs",
					Script: "create_scampcats.sh",
					Args:   []string{s.main(), t.name(), tag},
				})
			}
			return append(steps, Step{Action: func(context.Context) error {
				if avg, ok := averageDetections(filepath.Join(t.folder.Abs(), "cat", "ds9cat")); ok {
					s.r.reporter.Message(fmt.Sprintf("%d sources detected (avg.)", avg))
				}
				return nil
			}}), nil
		},
	})

	register(&Descriptor{
		Code:         Astrometry,
		Title:        "Calculating astrometric solution",
		Roles:        reduceRoles,
		Required:     science,
		SkyIfReduced: true,
		Outputs:      []Marker{predicate("astrometric headers", (*folder.Folder).ContainsAstrometry)},
		Inputs:       []Marker{imagesMarker},
		Steps:        astrometrySteps,
	})

	register(&Descriptor{
		Code:         SkySubtraction,
		Title:        "Subtracting sky",
		Roles:        reduceRoles,
		Required:     science,
		SkyIfReduced: true,
		Flag:         folder.SubSuffix,
		Outputs:      []Marker{flagOutput(folder.SubSuffix, "sky subtracted images")},
		Inputs:       []Marker{flagInput(folder.SubSuffix, "OFC(BHCDP) images")},
		Redo: func(_ *stage, t *target) error {
			return t.folder.DeleteTag("*"+folder.SubSuffix, false)
		},
		Steps: func(s *stage, t *target) ([]Step, error) {
			tag := s.tag(t)
			if s.opts.SkyModelConst {
				return []Step{
					{Script: "create_skysubconst_clean.sh", Args: []string{s.main(), t.name()}},
					{Script: "create_skysubconst_para.sh", Args: []string{s.main(), t.name(), tag}, Parallel: true},
				}, nil
			}
			return []Step{{
				Script:   "create_skysub_para.sh",
				Args:     []string{s.main(), t.name(), tag},
				Parallel: true,
			}}, nil
		},
	})

	register(&Descriptor{
		Code:         Coaddition,
		Title:        "Coadding images",
		Roles:        reduceRoles,
		Required:     science,
		SkyIfReduced: true,
		Outputs:      []Marker{predicate("coadd images", func(f *folder.Folder) bool { return f.ContainsCoadds("") })},
		Inputs: []Marker{
			flagInput(folder.SubSuffix, "OFC(BHCP) images"),
			weightsMarker,
			headersMarker,
		},
		Redo:  deleteCoadd,
		Steps: coaddSteps,
	})

	register(&Descriptor{
		Code:           ResolveLinks,
		Title:          "Resolving links",
		Roles:          allRoles,
		AllowAmbiguous: true,
		Steps: func(s *stage, t *target) ([]Step, error) {
			return []Step{{Script: "resolvelinks.sh", Args: []string{t.folder.Abs(), "", ""}}}, nil
		},
	})
}

// folderName returns the name of the folder configured for role, or
// placeholder when there is none.
func (s *stage) folderName(role Role, placeholder string) string {
	if f := s.r.folders[role]; f != nil {
		return f.Name()
	}
	return placeholder
}

func calibration(code Code, title string, role Role, script string, mode func(StageOptions) ModeRange) *Descriptor {
	return &Descriptor{
		Code:        code,
		Title:       title,
		Roles:       []Role{role},
		Required:    []Role{role},
		Outputs:     []Marker{masterMarker},
		Inputs:      []Marker{splitMarker},
		MinFrames:   3,
		FramesFatal: true,
		Redo:        deleteMaster,
		Steps: func(s *stage, t *target) ([]Step, error) {
			steps := brightnessCheck(s, t, mode(s.opts))
			return append(steps, Step{
				Script:   script,
				Args:     []string{s.main(), t.name()},
				Parallel: true,
			}), nil
		},
	}
}

// flagStage builds the job appending flag to the tag of its input files.
func flagStage(code Code, title, flag string, only []string, step func(*stage, *target) Step) *Descriptor {
	inputs := folder.InputTags(flag)
	inLabel := folder.BaseTag
	if len(inputs) > 1 {
		var extra strings.Builder
		for _, f := range folder.Flags {
			if f == flag {
				break
			}
			extra.WriteString(f)
		}
		inLabel += "(" + extra.String() + ")"
	}
	return &Descriptor{
		Code:         code,
		Title:        title,
		Roles:        dataRoles,
		Required:     science,
		SkyIfReduced: true,
		Only:         only,
		Flag:         flag,
		Outputs:      []Marker{flagOutput(flag, inLabel+flag+" images")},
		Inputs:       []Marker{flagInput(flag, inLabel+" images")},
		Redo:         relocateFlag(flag),
		Steps: func(s *stage, t *target) ([]Step, error) {
			return []Step{step(s, t)}, nil
		},
	}
}

var flatMasterMarker = Marker{Label: "master frame", Present: func(_ *stage, t *target) (bool, error) {
	if !t.folder.ContainsMaster() {
		return false, nil
	}
	return t.role != RoleFlat || t.folder.SearchFlatNorm(), nil
}}

var calibratedMarker = Marker{Label: "OFC images", Present: func(_ *stage, t *target) (bool, error) {
	ok, err := t.folder.ContainsTag(t.scope, folder.BaseTag+"*")
	if err != nil || ok {
		return ok, err
	}
	return isDir(filepath.Join(t.folder.Abs(), folder.HoldingDir(folder.BaseTag))), nil
}}

func deleteMaster(_ *stage, t *target) error {
	return t.folder.DeleteMaster()
}

// brightnessCheck sorts out frames whose mode is outside the range.
func brightnessCheck(s *stage, t *target, mode ModeRange) []Step {
	if !mode.Enabled() {
		return nil
	}
	return []Step{{
		Title:    "Checking image brightness",
		Script:   "check_files_para.sh",
		Args:     []string{s.main(), t.name(), "empty", strings.TrimSpace(mode.Min), strings.TrimSpace(mode.Max)},
		Parallel: true,
	}}
}

func rejectCrossTalk(s *stage) error {
	for _, key := range []string{"V_PRE_XTALK_NOR_CHECKED", "V_PRE_XTALK_ROW_CHECKED", "V_PRE_XTALK_MULTI_CHECKED"} {
		value, err := s.param(key)
		if err != nil {
			return err
		}
		if value != "0" && value != "" {
			return s.fail(nil, services.ErrConfiguration, "cross-talk correction is not supported", nil)
		}
	}
	return nil
}

// requireMaster checks that role is configured and holds a master frame.
func requireMaster(s *stage, role Role) error {
	f := s.r.folders[role]
	if f == nil {
		return s.fail(nil, services.ErrConfiguration, fmt.Sprintf("%s folder not specified", role), nil)
	}
	if !f.ContainsMaster() {
		return s.fail(nil, services.ErrPrecondition, fmt.Sprintf("no master %s found", role), nil)
	}
	return nil
}

func requireBiasMaster(s *stage) error {
	doBias, err := s.param("V_DO_BIAS")
	if err != nil {
		return err
	}
	if doBias == "Y" {
		return requireMaster(s, RoleBias)
	}
	return nil
}

func requireCalibrationMasters(s *stage) error {
	doFlat, err := s.param("V_DO_FLAT")
	if err != nil {
		return err
	}
	if doFlat == "Y" {
		if err := requireMaster(s, RoleFlat); err != nil {
			return err
		}
	}
	doBias, err := s.param("V_DO_BIAS")
	if err != nil {
		return err
	}
	if doBias == "Y" {
		role := RoleBias
		if s.opts.UseDark {
			role = RoleDark
		}
		return requireMaster(s, role)
	}
	return nil
}

func requireFlatForWeights(s *stage) error {
	uniform, err := s.param("V_GLOBW_UNIFORMWEIGHT")
	if err != nil {
		return err
	}
	if uniform != "FALSE" {
		return nil
	}
	if err := requireMaster(s, RoleFlat); err != nil {
		return err
	}
	if !s.r.folders[RoleFlat].SearchFlatNorm() {
		return s.fail(nil, services.ErrPrecondition, "no normalised master flat found", nil)
	}
	return nil
}

// processableTags lists the tags of split or processed files.
func processableTags(t *target, ignoreSub bool) ([]string, error) {
	tags, err := t.folder.Tags(t.scope, ignoreSub)
	if err != nil {
		return nil, err
	}
	delete(tags, folder.TagRaw)
	return tags.Sorted(), nil
}

// sequenceTag is the tag of the folder, or of its first sequence folder when
// every file was spread out.
func sequenceTag(s *stage, t *target) (string, error) {
	tags, err := processableTags(t, true)
	if err != nil {
		return "", err
	}
	if len(tags) > 0 {
		return s.tag(t), nil
	}
	first, err := s.r.openFolder(t.folder.SequenceDir(1))
	if err != nil {
		return "", err
	}
	seqTags, err := processableTags(&target{folder: first, scope: t.scope + "/S1"}, true)
	if err != nil || len(seqTags) == 0 {
		return folder.BaseTag, err
	}
	return seqTags[0], nil
}

func createLinks(ctx context.Context, s *stage) error {
	s.r.reporter.Header("Creating links")
	chip, err := strconv.Atoi(strings.TrimSpace(s.opts.LinksChips))
	if err != nil {
		return s.fail(nil, services.ErrConfiguration, fmt.Sprintf("invalid chip specification: %s", s.opts.LinksChips), nil)
	}
	if strings.TrimSpace(s.opts.LinksScratchDir) == "" {
		return s.fail(nil, services.ErrConfiguration, "scratch folder for links not specified", nil)
	}
	scratch, err := filepath.Abs(s.opts.LinksScratchDir)
	if err != nil {
		return s.fail(nil, services.ErrConfiguration, "scratch folder for links", err)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return s.fail(nil, services.ErrConfiguration, fmt.Sprintf("could not create target folder '%s'", scratch), err)
	}
	for _, role := range allRoles {
		f := s.r.folders[role]
		if f == nil {
			continue
		}
		t := s.newTarget(role, f, string(role))
		s.header(t, "Creating links")
		s.decide(t, DecisionExecute, "create links")
		if err := s.invoke(t, Step{Script: "createlinks.sh", Args: []string{f.Abs(), scratch, strconv.Itoa(chip)}}); err != nil {
			t.result.Status = StatusFailed
			return err
		}
		t.result.Status = StatusExecuted
	}
	return nil
}
