package reduction

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"theli/internal/folder"
	"theli/internal/services"
)

const (
	sdssCatalog   = "SDSS-DR9"
	sdssServer    = "vizier.u-strasbg.fr"
	dnsFailure    = "Temporary failure in name resolution"
	webRetries    = 10
	scampSegfault = "Segmentation fault"
)

func checkRefImage(s *stage) error {
	if s.opts.RefCat != RefCatImage {
		return nil
	}
	if strings.TrimSpace(s.opts.RefImage) == "" {
		return s.fail(nil, services.ErrConfiguration, "reference image not specified", nil)
	}
	if _, err := os.Stat(s.opts.RefImage); err != nil {
		return s.fail(nil, services.ErrConfiguration, fmt.Sprintf("reference image '%s' not found", s.opts.RefImage), err)
	}
	return nil
}

func refCatalogSteps(s *stage, t *target) ([]Step, error) {
	catalog := t.folder.RefCatalogPath()
	before, hadBefore := modTime(catalog)

	var step Step
	detected := "no sources detected"
	if s.opts.RefCat == RefCatImage {
		image, err := filepath.Abs(s.opts.RefImage)
		if err != nil {
			return nil, err
		}
		dt, dmin := s.opts.RefDetectThresh, s.opts.RefDetectMinArea
		if dt <= 0 || dmin <= 0 {
			s.r.reporter.Warning("parameters dt, dmin not set, use defaults")
			if dt <= 0 {
				dt = 5
			}
			if dmin <= 0 {
				dmin = 10
			}
		}
		step = Step{
			Script: "create_astrorefcat_fromIMAGE.sh",
			Args:   []string{image, formatFloat(dt), formatFloat(dmin), filepath.Join(t.folder.Abs(), "cat")},
		}
	} else {
		server := s.opts.RefServer
		if s.opts.RefCat == sdssCatalog && server != sdssServer {
			server = sdssServer
			s.r.reporter.Warning(fmt.Sprintf("switching to '%s' for catalog '%s'", server, sdssCatalog))
		}
		detected = "no sources returned"
		step = Step{
			Script:  "create_astrorefcat_fromWEB.sh",
			Args:    []string{s.main(), t.name(), s.tag(t), s.opts.RefCat, server},
			Retries: webRetries,
			RetryOn: dnsFailure,
		}
	}

	check := Step{Action: func(context.Context) error {
		after, ok := modTime(catalog)
		if !ok || (hadBefore && !after.After(before)) {
			return s.fail(t, services.ErrInsufficientData, detected, nil)
		}
		lowNum, err := s.param("V_AP_LOWNUM")
		if err != nil {
			return err
		}
		stars := countLines(catalog) - 2
		if low, err := strconv.Atoi(strings.TrimSpace(lowNum)); err == nil && low >= stars {
			return s.fail(t, services.ErrInsufficientData,
				fmt.Sprintf("received insufficient number of sources (%d)", max(stars, 0)), nil)
		}
		s.r.reporter.Message(fmt.Sprintf("%d reference sources retrieved", stars))
		return nil
	}}
	return []Step{step, check}, nil
}

func astrometrySteps(s *stage, t *target) ([]Step, error) {
	tag := s.tag(t)
	base := []string{s.main(), t.name(), tag}
	with := func(extra ...string) []string {
		return append(append([]string{}, base...), extra...)
	}
	var steps []Step
	switch s.opts.AstrometryMethod {
	case MethodAstrometryNet:
		steps = []Step{
			{Title: "Astrometry.net", Script: "create_astrometrynet.sh", Args: with(), Parallel: true},
			{Title: "Astrometry.net photometry", Script: "create_astrometrynet_photom.sh", Args: with()},
		}
	case MethodShiftFloat:
		steps = []Step{{Title: "Zero-order astrometry (float)", Script: "create_zeroorderastrom.sh", Args: with("float")}}
	case MethodShiftInt:
		steps = []Step{{Title: "Zero-order astrometry (int)", Script: "create_zeroorderastrom.sh", Args: with("int")}}
	case MethodXCorr:
		steps = []Step{{Title: "Cross-correlation astrometry", Script: "create_xcorrastrom.sh", Args: with()}}
	case MethodHeader:
		steps = []Step{{Title: "Header astrometry", Script: "create_headerastrom.sh", Args: with()}}
	default:
		step := Step{Title: "Scamp", Script: "create_scamp.sh", Args: with("")}
		if s.opts.IgnoreScampSegfault {
			step.IgnoreErrors = []string{scampSegfault}
			step.IgnoreMessages = []string{"ignored segmentation fault in scamp"}
		}
		steps = []Step{step}
	}
	return append(steps,
		Step{Title: "Creating statistics table", Script: "create_stats_table.sh", Args: with("headers")},
		Step{Title: "Absolute photometry", Script: "create_absphotom_coadd.sh", Args: []string{s.main(), t.name()}},
	), nil
}

// coaddIdent is the coaddition identifier, with the unset value mapped to the
// folder suffix the scripts use.
func coaddIdent(s *stage) (string, error) {
	ident, err := s.param("V_COADD_IDENT")
	if err != nil {
		return "", err
	}
	if ident == "(null)" {
		ident = "null"
	}
	return ident, nil
}

func deleteCoadd(s *stage, t *target) error {
	ident, err := coaddIdent(s)
	if err != nil {
		return err
	}
	return t.folder.Delete("coadd_" + ident)
}

func coaddSteps(s *stage, t *target) ([]Step, error) {
	smooth, err := s.param("V_COADD_SMOOTHEDGE")
	if err != nil {
		return nil, err
	}
	cosmics, err := s.param("V_COADD_FILTERTHRESHOLD")
	if err != nil {
		return nil, err
	}
	tag := s.tag(t)
	subtag := tag
	if ok, err := t.folder.ContainsTag(t.scope, tag+folder.SubSuffix); err != nil {
		return nil, err
	} else if ok {
		subtag = tag + folder.SubSuffix
	}
	args := func(tag string) []string { return []string{s.main(), t.name(), tag} }

	var steps []Step
	if strings.TrimSpace(smooth) != "" {
		steps = append(steps, Step{Title: "Smoothing overlap edges", Script: "create_smoothedge_para.sh", Args: args(tag), Parallel: true})
	}
	if s.opts.PosAngleFromImage {
		steps = append(steps, Step{Action: func(ctx context.Context) error {
			angle, err := s.r.tools.PosAngle(ctx, filepath.Join(t.folder.Abs(), folder.HeadersDir))
			if err != nil {
				s.r.reporter.Warning("sky position angle could not be obtained")
				angle = 0
			}
			if err := s.r.params.Set(map[string]string{"V_COADD_SKYPOSANGLE": formatFloat(angle)}); err != nil {
				return services.Wrap(services.ErrConfiguration, string(s.d.Code), t.label, "set sky position angle", err)
			}
			return nil
		}})
	}
	steps = append(steps,
		Step{Title: "Preparing coaddition", Script: "prepare_coadd_swarp.sh", Args: args(subtag)},
		Step{Title: "Resampling images", Script: "resample_coadd_swarp_para.sh", Args: args(subtag), Parallel: true},
	)
	if strings.TrimSpace(cosmics) != "" {
		steps = append(steps, Step{Title: "Rejecting outliers", Script: "resample_filtercosmics.sh", Args: []string{s.main(), t.name()}})
	}
	return append(steps,
		Step{Title: "Coadding images", Script: "perform_coadd_swarp.sh", Args: []string{s.main(), t.name()}},
		Step{Title: "Updating coadd header", Script: "update_coadd_header.sh", Args: args(tag)},
	), nil
}

// averageDetections averages the source count per exposure over the DS9
// catalogues in dir. Chip catalogues <exposure>_<chip>.reg count together.
func averageDetections(dir string) (int, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	sums := map[string]int{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.Contains(name, "theli") {
			continue
		}
		base := name
		if i := strings.LastIndex(name, "_"); i > 0 {
			base = name[:i]
		}
		sums[base] += max(countLines(filepath.Join(dir, name))-1, 0)
	}
	if len(sums) == 0 {
		return 0, false
	}
	total := 0
	for _, n := range sums {
		total += n
	}
	return total / len(sums), true
}

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		n++
	}
	return n
}

func modTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
