// Package preset loads run presets: YAML files holding command line options
// and THELI parameters shared between projects.
//
//	# wfi.yaml
//	threads: 8
//	redo: false
//	astrometry-method: scamp
//	params:
//	  V_DO_BIAS: "Y"
//	  V_COADD_SMOOTHEDGE: ""
//
// Presets describe how to reduce, never what: data folder keys are rejected.
package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"theli/internal/services"
)

// FolderKeys name the data folders a preset must not set.
var FolderKeys = []string{"main", "bias", "dark", "flat", "flatoff", "science", "sky", "standard"}

const paramsKey = "params"

// Preset is a parsed preset file.
type Preset struct {
	Path string
	// Options maps long flag names to their values.
	Options map[string]string
	// Params are THELI parameter assignments.
	Params map[string]string
}

// Resolve finds a preset: name itself when it exists, otherwise name,
// name.yaml or name.yml inside dir.
func Resolve(name, dir string) (string, error) {
	candidates := []string{name}
	if dir != "" && !filepath.IsAbs(name) {
		base := filepath.Join(dir, name)
		candidates = append(candidates, base, base+".yaml", base+".yml")
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", services.Wrap(services.ErrConfiguration, "", "load preset",
		fmt.Sprintf("preset file not found: %s", name), nil)
}

// Load resolves and parses a preset.
func Load(name, dir string) (*Preset, error) {
	path, err := Resolve(name, dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, services.Wrap(services.ErrConfiguration, "", "load preset",
				fmt.Sprintf("cannot read from preset file: %s", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "", "load preset", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "load preset", path, err)
	}
	p.Path = path
	return p, nil
}

// Parse decodes preset YAML. The document must be a mapping of scalar
// options plus an optional params mapping.
func Parse(data []byte) (*Preset, error) {
	p := &Preset{Options: map[string]string{}, Params: map[string]string{}}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	if doc.Kind == 0 {
		return p, nil
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: preset must be a mapping", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		name := strings.TrimPrefix(strings.TrimSpace(key.Value), "--")
		if slices.Contains(FolderKeys, name) {
			return nil, fmt.Errorf("line %d: parsing data folders in preset files is not allowed (%s)", key.Line, name)
		}
		if name == paramsKey {
			if err := decodeParams(value, p.Params); err != nil {
				return nil, err
			}
			continue
		}
		text, err := scalar(value)
		if err != nil {
			return nil, fmt.Errorf("line %d: option %s: %w", key.Line, name, err)
		}
		p.Options[name] = text
	}
	return p, nil
}

func decodeParams(node *yaml.Node, into map[string]string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		text, err := scalar(value)
		if err != nil {
			return fmt.Errorf("line %d: parameter %s: %w", key.Line, key.Value, err)
		}
		into[strings.TrimSpace(key.Value)] = text
	}
	return nil
}

// scalar renders a scalar node; null becomes the empty string and sequences
// are joined with commas.
func scalar(node *yaml.Node) (string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return "", nil
		}
		return node.Value, nil
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return "", errors.New("nested values are not supported")
			}
			parts = append(parts, item.Value)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", errors.New("expected a scalar value")
	}
}

// Names lists the presets available in dir.
func Names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list presets: %w", err)
	}
	var names []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.Type().IsRegular() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, strings.TrimSuffix(entry.Name(), ext))
		}
	}
	slices.Sort(names)
	return names, nil
}
