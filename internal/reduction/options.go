package reduction

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"theli/internal/services"
)

// ModeRange bounds the accepted image mode of calibration frames. Frames
// outside the range are sorted out before combination; empty bounds disable
// the check.
type ModeRange struct {
	Min string
	Max string
}

// Enabled reports whether both bounds are given.
func (m ModeRange) Enabled() bool {
	return strings.TrimSpace(m.Min) != "" && strings.TrimSpace(m.Max) != ""
}

// Astrometry methods.
const (
	MethodScamp         = "scamp"
	MethodAstrometryNet = "astrometry.net"
	MethodShiftFloat    = "shift-float"
	MethodShiftInt      = "shift-int"
	MethodXCorr         = "xcoor"
	MethodHeader        = "header"
)

// AstrometryMethods lists the accepted astrometry methods.
var AstrometryMethods = []string{MethodScamp, MethodAstrometryNet, MethodShiftFloat, MethodShiftInt, MethodXCorr, MethodHeader}

// RefCatImage selects a reference catalogue built from an image instead of a
// web query.
const RefCatImage = "Image"

// RefCatalogs lists the web reference catalogues.
var RefCatalogs = []string{"SDSS-DR9", "ISGL", "PPMXL", "USNO-B1", "2MASS", "URATI", "SPM4", "UCAC4", "GSC-2.3", "TYC"}

// RefServers lists the catalogue mirrors.
var RefServers = []string{
	"vizier.u-strasbg.fr", "vizier.cfa.harvard.edu", "vizier.hia.nrc.ca",
	"vizier.nao.ac.jp", "vizier.iucaa.ernet.in", "vizier.ast.cam.ac.uk",
	"data.bao.ac.cn", "www.ukirt.jach.hawaii.edu", "vizier.inasan.ru",
}

// ChopPatterns lists the chop/nod patterns (0 sky, 1 on target).
var ChopPatterns = []string{"0110", "1001", "0101", "1010"}

// StageOptions are the per-run job arguments. One set applies to every job of
// a run; each job reads the fields it needs.
type StageOptions struct {
	// Redo reprocesses folders whose output already exists.
	Redo bool
	// Params are written to the parameter store before each job.
	Params map[string]string

	BiasMode ModeRange
	DarkMode ModeRange
	FlatMode ModeRange
	DataMode ModeRange
	// UseDark calibrates with the master dark instead of the master bias.
	UseDark bool

	LinksChips      string
	LinksScratchDir string

	NGroups  int
	GroupLen int

	ChopPattern string
	ChopInvert  bool

	Saturation float64
	MinOverlap float64

	RefCat           string
	RefServer        string
	RefImage         string
	RefDetectThresh  float64
	RefDetectMinArea float64

	AstrometryMethod    string
	IgnoreScampSegfault bool

	SkyModelConst     bool
	PosAngleFromImage bool
}

// DefaultStageOptions returns the job defaults of the THELI command line.
func DefaultStageOptions() StageOptions {
	return StageOptions{
		ChopPattern:      "0110",
		Saturation:       55000,
		RefCat:           "SDSS-DR9",
		RefServer:        "vizier.u-strasbg.fr",
		RefDetectThresh:  -1,
		RefDetectMinArea: -1,
		AstrometryMethod: MethodScamp,
	}
}

// Validate checks the enumerated choices.
func (o StageOptions) Validate() error {
	if o.ChopPattern != "" && !slices.Contains(ChopPatterns, o.ChopPattern) {
		return choiceError("chop pattern", o.ChopPattern, ChopPatterns)
	}
	if o.AstrometryMethod != "" && !slices.Contains(AstrometryMethods, o.AstrometryMethod) {
		return choiceError("astrometry method", o.AstrometryMethod, AstrometryMethods)
	}
	if o.RefCat != "" && o.RefCat != RefCatImage && !slices.Contains(RefCatalogs, o.RefCat) {
		return choiceError("reference catalogue", o.RefCat, append(slices.Clone(RefCatalogs), RefCatImage))
	}
	if o.RefServer != "" && !slices.Contains(RefServers, o.RefServer) {
		return choiceError("reference server", o.RefServer, RefServers)
	}
	return nil
}

func choiceError(what, value string, choices []string) error {
	return services.Wrap(services.ErrConfiguration, "", "validate options",
		fmt.Sprintf("invalid %s %q (choose from %s)", what, value, strings.Join(choices, ", ")), nil)
}

// formatFloat renders a float the way the scripts expect, always with a
// decimal part.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
