package deps

// Binaries are the THELI programs the scripts and the controller call
// directly, located in the THELI binaries directory.
var Binaries = []Requirement{
	{Name: "SExtractor", Command: "sex", Description: "Source detection"},
	{Name: "Scamp", Command: "scamp", Description: "Astrometric calibration"},
	{Name: "SWarp", Command: "swarp", Description: "Resampling and coaddition"},
	{Name: "ldactoasc", Command: "ldactoasc", Description: "Catalogue conversion"},
	{Name: "get_posangle", Command: "get_posangle", Description: "Sky position angle of the coaddition"},
	{Name: "fitsdebloom", Command: "fitsdebloom", Description: "Deblooming of saturated stars", Optional: true},
}

// Scripts are the wrappers every reduction needs, located in the scripts
// directory.
var Scripts = []Requirement{
	{Name: "parallel manager", Command: "parallel_manager.sh", Description: "Runs scripts on all CPUs"},
	{Name: "sort raw data", Command: "sort_rawdata.sh", Description: "Sorts raw frames by type"},
	{Name: "calibration", Command: "process_science_para.sh", Description: "Bias, dark and flat correction"},
}

// Host are the tools resolved from PATH.
var Host = []Requirement{
	{Name: "gawk", Command: "gawk", Description: "Used throughout the scripts"},
	{Name: "wget", Command: "wget", Description: "Downloads web reference catalogs", Optional: true},
}

// THELIRequirements combines Binaries, Scripts and Host with their lookup
// directories filled in.
func THELIRequirements(binDir, scriptsDir string) []Requirement {
	reqs := make([]Requirement, 0, len(Binaries)+len(Scripts)+len(Host))
	for _, r := range Binaries {
		r.Dir = binDir
		reqs = append(reqs, r)
	}
	for _, r := range Scripts {
		r.Dir = scriptsDir
		reqs = append(reqs, r)
	}
	return append(reqs, Host...)
}
