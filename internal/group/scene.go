package group

import (
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Action is the direction of a group command.
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// SelectScene picks the best scene for a label and action:
//   - only scenes carrying the label are considered,
//   - for ON the scene name must not contain "off" (case-insensitive),
//   - for OFF the scene name must contain "off",
//   - ties resolve to the lexicographically first scene id, so selection is
//     stable across restarts.
//
// Returns ok=false when nothing matches; the caller falls back to direct
// member toggling. The ON and OFF name filters are evaluated independently
// per action, so a name like "Office Lights" is excluded from ON candidates
// purely by substring; such exclusions are logged for diagnosis.
func SelectScene(label string, action Action, scenes []Scene) (string, bool) {
	slug := Slugify(label)

	var candidates []string
	for i := range scenes {
		sc := &scenes[i]
		if !labelsMatch(sc.Labels, slug) {
			continue
		}

		hasOff := strings.Contains(strings.ToLower(sc.Name), "off")
		if action == ActionOn && hasOff {
			log.Debug().
				Str("scene", sc.ID).
				Str("name", sc.Name).
				Str("label", label).
				Msg("Scene excluded from ON candidates by 'off' substring")
			continue
		}
		if action == ActionOff && !hasOff {
			continue
		}

		candidates = append(candidates, sc.ID)
	}

	if len(candidates) == 0 {
		return "", false
	}

	sort.Strings(candidates)
	return candidates[0], true
}

// SelectFirstScene picks the lexicographically first scene carrying the
// label, with no name filter. Used for scene-type groups on the ON path,
// where OFF is defined as deactivating every aggregated member instead of
// activating an off-scene.
func SelectFirstScene(label string, scenes []Scene) (string, bool) {
	slug := Slugify(label)

	var candidates []string
	for i := range scenes {
		if labelsMatch(scenes[i].Labels, slug) {
			candidates = append(candidates, scenes[i].ID)
		}
	}

	if len(candidates) == 0 {
		return "", false
	}

	sort.Strings(candidates)
	return candidates[0], true
}

// LabeledScenes returns all scenes carrying the label.
func LabeledScenes(label string, scenes []Scene) []Scene {
	slug := Slugify(label)

	var out []Scene
	for i := range scenes {
		if labelsMatch(scenes[i].Labels, slug) {
			out = append(out, scenes[i])
		}
	}
	return out
}
