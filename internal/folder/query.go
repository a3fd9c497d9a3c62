package folder

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Well-known subdirectories written by the processing scripts.
const (
	OriginalsDir  = "ORIGINALS"
	SplitDir      = "SPLIT_IMAGES"
	WeightsDir    = "WEIGHTS"
	HeadersDir    = "headers"
	ScampHeadsDir = "headers_scamp"
	BinnedFITSDir = "BINNED_FITS"
	BinnedTIFFDir = "BINNED_TIFF"
)

// HoldingDir names the subfolder that keeps files of tag while a later stage
// is redone.
func HoldingDir(tag string) string {
	if tag == TagSplit {
		return SplitDir
	}
	return tag + "_IMAGES"
}

// ContainsMaster reports whether a master calibration frame is present.
func (f *Folder) ContainsMaster() bool {
	return containsMaster(f.abs)
}

// SearchFlatNorm reports whether the normalised flat folder (<abs>_norm)
// holds a master frame.
func (f *Folder) SearchFlatNorm() bool {
	return containsMaster(f.NormDir())
}

// NormDir is the folder receiving normalised flats.
func (f *Folder) NormDir() string {
	return f.abs + "_norm"
}

func containsMaster(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsFITS(entry.Name()) && IsMaster(entry.Name()) {
			return true
		}
	}
	return false
}

// ContainsPreview reports whether binned TIFF previews exist and none is older
// than the FITS image it was made from.
func (f *Folder) ContainsPreview() bool {
	tiffDir := filepath.Join(f.abs, BinnedTIFFDir)
	entries, err := os.ReadDir(tiffDir)
	if err != nil {
		return false
	}
	found := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".tif") {
			continue
		}
		base, _, _ := strings.Cut(name, "binned")
		if base == name {
			base = strings.TrimSuffix(name, ".tif")
		}
		source := filepath.Join(f.abs, base+".fits")
		if !notOlder(filepath.Join(tiffDir, name), source) {
			return false
		}
		found++
	}
	return found > 0
}

// RefCatalogPath is the DS9 region file of the reference catalogue.
func (f *Folder) RefCatalogPath() string {
	return filepath.Join(f.abs, "cat", "ds9cat", "theli_mystd.reg")
}

// ContainsRefCatalog reports whether a reference catalogue was retrieved.
func (f *Folder) ContainsRefCatalog() bool {
	return exists(f.RefCatalogPath()) && exists(filepath.Join(f.abs, "cat", "skycat", "theli_mystd.skycat"))
}

// ContainsCatalogs reports whether source catalogues were extracted.
func (f *Folder) ContainsCatalogs() bool {
	count := 0
	count += countSuffix(filepath.Join(f.abs, "cat", "ds9cat"), ".reg")
	count += countSuffix(filepath.Join(f.abs, "cat", "skycat"), ".skycat")
	return count > 2
}

// ContainsAstrometry reports whether scamp headers exist.
func (f *Folder) ContainsAstrometry() bool {
	return countSuffix(filepath.Join(f.abs, ScampHeadsDir), ".head") > 0
}

// ContainsCoadds reports whether a coaddition exists, for one filter
// identifier or, with an empty filter, for any.
func (f *Folder) ContainsCoadds(filter string) bool {
	if filter != "" {
		return exists(filepath.Join(f.abs, "coadd_"+filter, "coadd.fits"))
	}
	entries, err := os.ReadDir(f.abs)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "coadd") &&
			exists(filepath.Join(f.abs, entry.Name(), "coadd.fits")) {
			return true
		}
	}
	return false
}

// WeightsDir returns the sibling folder holding weight images.
func (f *Folder) WeightsDir() string {
	return filepath.Join(f.Parent(), WeightsDir)
}

// CheckWeights reports whether every image has a weight map that is not older
// than the image itself.
func (f *Folder) CheckWeights(scope Scope) (bool, error) {
	weights := f.WeightsDir()
	if !isDir(weights) {
		return false, nil
	}
	images, err := f.Fits(scope, "*", true)
	if err != nil {
		return false, err
	}
	for _, image := range images {
		name := filepath.Base(image)
		ext := filepath.Ext(name)
		weight := filepath.Join(weights, strings.TrimSuffix(name, ext)+".weight"+ext)
		if !notOlder(weight, image) {
			return false, nil
		}
	}
	return true, nil
}

// CheckGlobalWeights reports whether global weight maps exist and are all
// newer than the images of this folder.
func (f *Folder) CheckGlobalWeights(scope Scope) (bool, error) {
	weights := f.WeightsDir()
	entries, err := os.ReadDir(weights)
	if err != nil {
		return false, nil
	}
	images, err := f.Fits(scope, "*", true)
	if err != nil {
		return false, err
	}
	var newest int64
	for _, image := range images {
		if info, err := os.Stat(image); err == nil && info.ModTime().UnixNano() > newest {
			newest = info.ModTime().UnixNano()
		}
	}
	good := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.Contains(name, "_dummy_") {
			continue
		}
		if ok, _ := path.Match("globalweight*[0-9].fits", name); !ok {
			continue
		}
		info, err := os.Stat(filepath.Join(weights, name))
		if err != nil || info.ModTime().UnixNano() < newest {
			return false, nil
		}
		good++
	}
	return good > 0, nil
}

// SequenceDir returns the folder of sequence group n (1-based).
func (f *Folder) SequenceDir(n int) string {
	return f.abs + "_S" + strconv.Itoa(n)
}

// CountGroups counts the consecutive sequence folders <abs>_S1, <abs>_S2, ...
func (f *Folder) CountGroups() int {
	n := 0
	for isDir(f.SequenceDir(n + 1)) {
		n++
	}
	return n
}

func countSuffix(dir, suffix string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), suffix) {
			count++
		}
	}
	return count
}

// notOlder reports whether derived exists and was modified no earlier than source.
func notOlder(derived, source string) bool {
	d, err := os.Stat(derived)
	if err != nil {
		return false
	}
	s, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !d.ModTime().Before(s.ModTime())
}
