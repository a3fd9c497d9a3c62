package reduction

import (
	"os"
	"path/filepath"

	"theli/internal/folder"
)

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// tagMarker is present when a file carries a tag matching pattern, or when
// the holding folder of the tag exists.
func tagMarker(label, tag string, holding bool) Marker {
	return tagsMarker(label, []string{tag}, holding)
}

// tagsMarker is present when any of tags is found, by files or holding folder.
func tagsMarker(label string, tags []string, holding bool) Marker {
	return Marker{Label: label, Present: func(_ *stage, t *target) (bool, error) {
		for _, tag := range tags {
			ok, err := t.folder.ContainsTag(t.scope, tag)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			if holding && isDir(filepath.Join(t.folder.Abs(), folder.HoldingDir(tag))) {
				return true, nil
			}
		}
		return false, nil
	}}
}

// flagInput is present when any tag the flag may be applied to is found.
func flagInput(flag, label string) Marker {
	return tagsMarker(label, folder.InputTags(flag), flag != folder.SubSuffix)
}

// flagOutput is present when any tag carrying flag is found.
func flagOutput(flag, label string) Marker {
	return tagsMarker(label, folder.OutputTags(flag), flag != folder.SubSuffix)
}

func predicate(label string, fn func(f *folder.Folder) bool) Marker {
	return Marker{Label: label, Present: func(_ *stage, t *target) (bool, error) {
		return fn(t.folder), nil
	}}
}

var (
	masterMarker = predicate("master frame", (*folder.Folder).ContainsMaster)

	imagesMarker = Marker{Label: "images", Present: func(_ *stage, t *target) (bool, error) {
		tags, err := t.folder.Tags(t.scope, false)
		if err != nil {
			return false, err
		}
		delete(tags, folder.TagRaw)
		return tags.Len() > 0, nil
	}}

	splitMarker = tagMarker("split images", folder.TagSplit, true)

	originalsMarker = Marker{Label: "original images", Present: func(_ *stage, t *target) (bool, error) {
		ok, err := t.folder.ContainsTag(t.scope, folder.TagRaw)
		if err != nil || ok {
			return ok, err
		}
		return isDir(filepath.Join(t.folder.Abs(), folder.OriginalsDir)), nil
	}}

	sequenceMarker = predicate("image sequence", func(f *folder.Folder) bool { return f.CountGroups() > 0 })

	weightsMarker = Marker{Label: "weight maps", Present: func(_ *stage, t *target) (bool, error) {
		return t.folder.CheckWeights(t.scope)
	}}

	globalWeightsMarker = Marker{Label: "global weights", Present: func(_ *stage, t *target) (bool, error) {
		return t.folder.CheckGlobalWeights(t.scope)
	}}

	headersMarker = predicate("astrometric header files", func(f *folder.Folder) bool {
		return isDir(filepath.Join(f.Abs(), folder.HeadersDir))
	})
)

// relocateFlag moves the previous output of a flag stage aside and restores
// its input: the input holding folder is lifted up, then every output file
// goes into the holding folder named after the input tag.
func relocateFlag(flag string) func(s *stage, t *target) error {
	return func(s *stage, t *target) error {
		f := t.folder
		input := folder.BaseTag
		tags, err := s.tags(t)
		if err != nil {
			return err
		}
		inputs := folder.NewTagSet(folder.InputTags(flag)...)
		if only, ok := tags.Only(); ok && inputs.Has(only) {
			input = only
		} else {
			for _, tag := range folder.InputTags(flag) {
				if isDir(filepath.Join(f.Abs(), folder.HoldingDir(tag))) {
					input = tag
					break
				}
			}
		}
		holding := folder.HoldingDir(input)
		if err := f.LiftContent(holding); err != nil {
			return err
		}
		for _, out := range folder.OutputTags(flag) {
			ok, err := f.ContainsTag(t.scope, out)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := f.MoveTag(out, holding, true); err != nil {
				return err
			}
		}
		return nil
	}
}
