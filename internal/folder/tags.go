package folder

import (
	"path/filepath"
	"sort"
	"strings"

	"theli/internal/fitsheader"
)

// Special tags.
const (
	// TagRaw marks files without a chip suffix (not yet split).
	TagRaw = "none"
	// TagSplit marks freshly split, unprocessed chip files.
	TagSplit = ""
	// SubSuffix marks sky-subtracted variants.
	SubSuffix = ".sub"
	// BaseTag is the calibrated tag every later flag builds on.
	BaseTag = "OFC"
)

// Flags are the processing markers appended after OFC, in their fixed order.
var Flags = []string{"B", "H", "C", "D", "P", SubSuffix}

// FITSExtensions lists the file extensions indexed as FITS images.
var FITSExtensions = []string{".fits", ".FITS", ".fit", ".FIT", ".fts", ".FTS"}

// MasterPrefixes identify combined calibration frames, which are never indexed.
var MasterPrefixes = []string{"BIAS_", "FLAT_", "DARK_"}

// IsFITS reports whether name carries one of the FITS extensions.
func IsFITS(name string) bool {
	for _, ext := range FITSExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// IsMaster reports whether name is a master calibration frame.
func IsMaster(name string) bool {
	for _, prefix := range MasterPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ExtractTag derives the progress tag of a FITS file from its name. Files whose
// suffix is purely numeric are told apart by the mefsplit HISTORY marker the
// splitting scripts leave in the header.
func ExtractTag(path string) string {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return TagRaw
	}
	suffix := stem[idx+1:]
	if allDigits(suffix) {
		header, err := fitsheader.ReadPrimary(path)
		if err != nil || !header.HistoryContains("mefsplit") {
			return TagRaw
		}
		return TagSplit
	}
	return stripDigits(suffix)
}

// chipNumber returns the digits of the chip suffix of a file name.
func chipNumber(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range stem[idx+1:] {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < '0' || r > '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InputTags lists every tag that may precede flag: OFC followed by any ordered
// subset of the flags that come before it.
func InputTags(flag string) []string {
	n := -1
	for i, f := range Flags {
		if f == flag {
			n = i
			break
		}
	}
	if n < 0 {
		return nil
	}
	earlier := Flags[:n]
	var tags []string
	for mask := 0; mask < 1<<len(earlier); mask++ {
		var b strings.Builder
		b.WriteString(BaseTag)
		for i, f := range earlier {
			if mask&(1<<i) != 0 {
				b.WriteString(f)
			}
		}
		tags = append(tags, b.String())
	}
	sort.SliceStable(tags, func(i, j int) bool { return len(tags[i]) < len(tags[j]) })
	return tags
}

// OutputTags lists the tags produced by appending flag to each input tag.
func OutputTags(flag string) []string {
	inputs := InputTags(flag)
	out := make([]string, len(inputs))
	for i, tag := range inputs {
		out[i] = tag + flag
	}
	return out
}

// TagSet is a set of progress tags.
type TagSet map[string]struct{}

// NewTagSet builds a set from tags.
func NewTagSet(tags ...string) TagSet {
	set := TagSet{}
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

// Len returns the number of distinct tags.
func (s TagSet) Len() int { return len(s) }

// Has reports membership.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Only returns the single tag of a one-element set.
func (s TagSet) Only() (string, bool) {
	if len(s) != 1 {
		return "", false
	}
	for tag := range s {
		return tag, true
	}
	return "", false
}

// Match reports whether any tag matches the glob pattern.
func (s TagSet) Match(pattern string) bool {
	for tag := range s {
		if matchTag(pattern, tag) {
			return true
		}
	}
	return false
}

// Fold maps every output tag of flag back onto the input tag it was derived
// from, leaving other tags unchanged.
func (s TagSet) Fold(flag string) TagSet {
	inputs := NewTagSet(InputTags(flag)...)
	out := TagSet{}
	for tag := range s {
		if base, ok := strings.CutSuffix(tag, flag); ok && flag != "" && inputs.Has(base) {
			out[base] = struct{}{}
			continue
		}
		out[tag] = struct{}{}
	}
	return out
}

// Label renders a tag for messages, showing the empty tag explicitly.
func Label(tag string) string {
	switch tag {
	case TagSplit:
		return `""`
	default:
		return tag
	}
}
