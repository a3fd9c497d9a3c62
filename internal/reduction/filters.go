package reduction

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"theli/internal/fitsheader"
	"theli/internal/folder"
)

// filterReaders handle instruments whose filter is not in the FILTER key.
var filterReaders = map[string]func(fitsheader.Header) (string, bool){
	"ACAM@WHT":              acamFilter,
	"GMOS-S-HAM@GEMINI":     gmosFilter,
	"GMOS-S-HAM_1x1@GEMINI": gmosFilter,
}

func acamFilter(h fitsheader.Header) (string, bool) {
	all, ok := h.Get("ACAMFILT")
	if !ok {
		return h.Get("FILTER")
	}
	first, second, found := strings.Cut(all, "+")
	if !found {
		return h.Get("FILTER")
	}
	if first == "CLEAR" {
		return "+" + second, true
	}
	return "+" + first, true
}

func gmosFilter(h fitsheader.Header) (string, bool) {
	first, ok1 := h.Get("FILTER1")
	second, ok2 := h.Get("FILTER2")
	if !ok1 || !ok2 {
		return h.Get("FILTER")
	}
	if strings.Contains(first, "open") {
		return second, true
	}
	return first, true
}

// ListFilters collects the distinct filters of the FITS files in dir, sorted.
// Files without a readable header or filter keyword are ignored.
func ListFilters(dir, instrument string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	read := filterReaders[instrument]
	if read == nil {
		read = func(h fitsheader.Header) (string, bool) { return h.Get("FILTER") }
	}
	seen := map[string]struct{}{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !folder.IsFITS(entry.Name()) {
			continue
		}
		header, err := fitsheader.ReadPrimary(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if name, ok := read(header); ok && strings.TrimSpace(name) != "" {
			seen[strings.TrimSpace(name)] = struct{}{}
		}
	}
	filters := make([]string, 0, len(seen))
	for name := range seen {
		filters = append(filters, name)
	}
	sort.Strings(filters)
	return filters, nil
}
