// Package instrument discovers the camera definitions shipped with THELI.
//
// Every instrument has a splitting script process_split_<NAME>.sh in the
// scripts directory and a shell-style .ini file describing the detector.
package instrument

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"theli/internal/services"
)

// Types of instrument.
const (
	TypeOptical  = "OPT"
	TypeNearIR   = "NIR"
	TypeNearIRMP = "NIRMPIA"
	TypeMIR      = "MIR"
)

const splitPrefix = "process_split_"

// Instrument is the detector geometry of one camera.
type Instrument struct {
	Name     string
	SizeX    int
	SizeY    int
	Chips    int
	Type     string
	PixScale float64
	// Source is the .ini file the values were read from.
	Source string
}

// IsNearIR reports whether the camera needs NIR sequence handling.
func (i Instrument) IsNearIR() bool {
	return i.Type == TypeNearIR || i.Type == TypeNearIRMP
}

// FrameBytes is the memory one chip occupies as 32-bit floats.
func (i Instrument) FrameBytes() int64 {
	return int64(i.SizeX) * int64(i.SizeY) * 4
}

// CrossIDRadius is the scamp cross-identification radius in arcseconds for
// the pixel scale.
func (i Instrument) CrossIDRadius() float64 {
	return CrossIDRadius(i.PixScale)
}

// CrossIDRadius maps a pixel scale in arcseconds to the scamp
// cross-identification radius.
func CrossIDRadius(pixscale float64) float64 {
	switch {
	case pixscale >= 0.7:
		return 2.5 * pixscale
	case pixscale >= 0.2:
		return 2.0
	default:
		return 10.0 * pixscale
	}
}

// Catalog maps instrument names to their definitions.
type Catalog struct {
	byName map[string]Instrument
}

// NewCatalog builds a catalog from explicit definitions.
func NewCatalog(instruments ...Instrument) *Catalog {
	c := &Catalog{byName: make(map[string]Instrument, len(instruments))}
	for _, inst := range instruments {
		c.byName[inst.Name] = inst
	}
	return c
}

// Discover lists the splitting scripts in scriptsDir and loads the matching
// definition files from scriptsDir/instruments_professional,
// scriptsDir/instruments_commercial and userDir, in that order. Instruments
// without a complete definition are left out.
func Discover(scriptsDir, userDir string) (*Catalog, error) {
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "discover instruments", "read scripts directory", err)
	}
	dirs := []string{
		filepath.Join(scriptsDir, "instruments_professional"),
		filepath.Join(scriptsDir, "instruments_commercial"),
	}
	if userDir != "" {
		dirs = append(dirs, userDir)
	}
	catalog := NewCatalog()
	for _, entry := range entries {
		name, ok := nameFromScript(entry.Name())
		if !ok || !entry.Type().IsRegular() {
			continue
		}
		for _, dir := range dirs {
			path := filepath.Join(dir, name+".ini")
			inst, err := LoadINI(path, name)
			if err != nil {
				continue
			}
			catalog.byName[name] = inst
			break
		}
	}
	return catalog, nil
}

func nameFromScript(file string) (string, bool) {
	rest, ok := strings.CutPrefix(file, splitPrefix)
	if !ok {
		return "", false
	}
	name := strings.TrimSuffix(rest, filepath.Ext(rest))
	if name == "" || !unicode.IsUpper([]rune(name)[0]) {
		return "", false
	}
	return name, true
}

// Lookup returns the named instrument or a configuration error.
func (c *Catalog) Lookup(name string) (Instrument, error) {
	if c != nil {
		if inst, ok := c.byName[name]; ok {
			return inst, nil
		}
	}
	return Instrument{}, services.Wrap(services.ErrConfiguration, "", "resolve instrument",
		fmt.Sprintf("instrument '%s' not recognized", name), nil)
}

// Names returns the instrument names in lexical order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of instruments.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}

// LoadINI reads one definition file.
func LoadINI(path, name string) (Instrument, error) {
	file, err := os.Open(path)
	if err != nil {
		return Instrument{}, err
	}
	defer file.Close()
	inst, err := ParseINI(file, name)
	if err != nil {
		return Instrument{}, fmt.Errorf("%s: %w", path, err)
	}
	inst.Source = path
	return inst, nil
}

// ParseINI reads NCHIPS, SIZEX, SIZEY, TYPE and PIXSCALE from a definition.
// SIZEX and SIZEY may be bash arrays, in which case the first chip is used.
// A missing TYPE means optical.
func ParseINI(r io.Reader, name string) (Instrument, error) {
	inst := Instrument{Name: name, Type: TypeOptical}
	var seen struct{ sizeX, sizeY, chips, pixscale bool }
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "SIZEX":
			inst.SizeX, err = firstArrayInt(value)
			seen.sizeX = err == nil
		case "SIZEY":
			inst.SizeY, err = firstArrayInt(value)
			seen.sizeY = err == nil
		case "NCHIPS":
			inst.Chips, err = strconv.Atoi(value)
			seen.chips = err == nil
		case "TYPE":
			inst.Type = strings.Trim(value, `"'`)
		case "PIXSCALE":
			inst.PixScale, err = strconv.ParseFloat(value, 64)
			seen.pixscale = err == nil
		}
		if err != nil {
			return Instrument{}, fmt.Errorf("parse %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Instrument{}, err
	}
	if !seen.sizeX || !seen.sizeY || !seen.chips || !seen.pixscale {
		return Instrument{}, fmt.Errorf("incomplete definition of %s", name)
	}
	return inst, nil
}

// firstArrayInt parses "2048", "([1]=2048)" or "( [1]=2048 [2]=2048 )".
func firstArrayInt(value string) (int, error) {
	value = strings.Trim(value, "() ")
	if _, rest, ok := strings.Cut(value, "="); ok {
		value = rest
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.Atoi(strings.Trim(fields[0], "()[]"))
}
