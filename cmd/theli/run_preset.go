package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/pflag"

	"theli/internal/preset"
	"theli/internal/services"
)

// applyPreset copies the preset options onto the run flags the command line
// left unset and returns the parameter assignments for the run: preset
// parameters overridden by --param.
func applyPreset(flags *pflag.FlagSet, run *runFlags, presetDir string) (map[string]string, error) {
	merged := map[string]string{}
	if run.preset != "" {
		p, err := preset.Load(run.preset, presetDir)
		if err != nil {
			return nil, err
		}
		for _, name := range slices.Sorted(maps.Keys(p.Options)) {
			if name == "preset" || name == "config" {
				return nil, presetError(p.Path, fmt.Sprintf("option %q cannot be set from a preset", name))
			}
			flag := flags.Lookup(name)
			if flag == nil {
				return nil, presetError(p.Path, fmt.Sprintf("unknown option %q", name))
			}
			if flag.Changed {
				continue
			}
			if err := flags.Set(name, p.Options[name]); err != nil {
				return nil, presetError(p.Path, fmt.Sprintf("option %q: %v", name, err))
			}
		}
		maps.Copy(merged, p.Params)
	}
	maps.Copy(merged, run.params)
	return merged, nil
}

func presetError(path, message string) error {
	return services.Wrap(services.ErrConfiguration, "", "load preset", path+": "+message, nil)
}
