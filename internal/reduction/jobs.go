package reduction

import (
	"fmt"
	"strings"

	"theli/internal/services"
)

// Code is the two-letter identifier of a reduction job.
type Code string

// Job codes in pipeline order.
const (
	SortRawData        Code = "Fr"
	SplitImages        Code = "Fs"
	CreateLinks        Code = "Lc"
	ProcessBiases      Code = "Cb"
	ProcessDarks       Code = "Cd"
	ProcessFlats       Code = "Cf"
	CalibrateData      Code = "Cs"
	SpreadSequence     Code = "Gs"
	BackgroundModel    Code = "Bm"
	MergeSequence      Code = "Gm"
	ChopNodSubtraction Code = "Bn"
	CollapseCorrection Code = "Bc"
	Debloom            Code = "Di"
	BinnedPreview      Code = "Vb"
	IndirectPhotometry Code = "Pi"
	DirectPhotometry   Code = "Pd"
	GlobalWeights      Code = "Wg"
	CreateWeights      Code = "Wc"
	DistributeSets     Code = "Ds"
	UpdateHeader       Code = "Hu"
	RestoreHeader      Code = "Hr"
	SkySubHelper       Code = "Sh"
	AstromRefCatalog   Code = "Ar"
	SourceCatalogs     Code = "As"
	Astrometry         Code = "Ac"
	SkySubtraction     Code = "Ss"
	Coaddition         Code = "Ca"
	ResolveLinks       Code = "Lr"
)

// JobInfo describes a job for help output.
type JobInfo struct {
	Code        Code
	Title       string
	Description string
	Supported   bool
}

// Catalogue lists every job theli knows in pipeline order.
var Catalogue = []JobInfo{
	{SortRawData, "Sort data using FITS key", "sort data in the main folder into bias, flat, science... folders", true},
	{SplitImages, "Split FITS / correct header", "split multi-extension files and write the THELI header", true},
	{CreateLinks, "Create links", "distribute chips over several disks via links", true},
	{ProcessBiases, "Process biases", "combine bias exposures into a master bias", true},
	{ProcessDarks, "Process darks", "combine dark exposures into a master dark", true},
	{ProcessFlats, "Process flats", "combine flat exposures into a normalised master flat", true},
	{CalibrateData, "Calibrate data", "apply master bias/dark and flat to the data", true},
	{SpreadSequence, "Spread sequence (NIR)", "spread a NIR exposure sequence into groups", true},
	{BackgroundModel, "Background model correction", "create and apply a background model", true},
	{MergeSequence, "Merge sequence (NIR)", "merge a spread NIR sequence back together", true},
	{ChopNodSubtraction, "Chop/nod sky subtraction", "MIR chop/nod sky subtraction", true},
	{CollapseCorrection, "Collapse correction", "remove row and column gradients", true},
	{Debloom, "Debloom images", "remove blooming spikes from saturated stars", true},
	{BinnedPreview, "Create binned preview", "create binned mosaics and TIFF previews", true},
	{IndirectPhotometry, "Absolute photometry (indirect)", "calibrate against standard star fields", false},
	{DirectPhotometry, "Absolute photometry (direct)", "calibrate against a photometric reference catalogue", false},
	{GlobalWeights, "Create global weights", "create global weight maps from the master flat", true},
	{CreateWeights, "Create weights", "create individual weight maps", true},
	{DistributeSets, "Distribute target sets", "separate exposures into pointing sets", true},
	{UpdateHeader, "Update header", "write the astrometric solution into the image headers", false},
	{RestoreHeader, "Restore header", "restore the original image headers", false},
	{SkySubHelper, "Sky subtraction helper", "interactive sky subtraction helper", false},
	{AstromRefCatalog, "Get reference catalogue", "retrieve an astrometric reference catalogue", true},
	{SourceCatalogs, "Create source catalogue", "detect sources in every exposure", true},
	{Astrometry, "Astro+photometry", "compute astrometric and relative photometric solutions", true},
	{SkySubtraction, "Sky subtraction", "model and subtract the sky", true},
	{Coaddition, "Coaddition", "resample and coadd the exposures", true},
	{ResolveLinks, "Resolve links", "replace chip links by the files they point to", true},
}

// Info returns the catalogue entry for code.
func Info(code Code) (JobInfo, bool) {
	for _, info := range Catalogue {
		if info.Code == code {
			return info, true
		}
	}
	return JobInfo{}, false
}

// ParseJobs splits a job string such as "CbCfCs" into codes. Unknown and
// unsupported codes are configuration errors; nothing runs in that case.
func ParseJobs(s string) ([]Code, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "parse jobs", "job list is empty", nil)
	}
	if len(s)%2 != 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "parse jobs",
			fmt.Sprintf("job list %q is not a sequence of two-letter codes", s), nil)
	}
	codes := make([]Code, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		code := Code(s[i : i+2])
		info, ok := Info(code)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "", "parse jobs",
				fmt.Sprintf("unknown job %q", code), nil)
		}
		if !info.Supported {
			return nil, services.Wrap(services.ErrConfiguration, "", "parse jobs",
				fmt.Sprintf("job %s (%s) is not supported", code, info.Title), nil)
		}
		codes = append(codes, code)
	}
	return codes, nil
}
