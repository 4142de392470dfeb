package group

import "sort"

// Membership is the resolved set of entities a group counts and controls at
// a point in time. Recomputed on every change, never persisted.
type Membership struct {
	// EntityIDs is sorted and duplicate-free.
	EntityIDs []string

	// SourceSceneIDs records which scenes contributed members (scene type
	// only), for diagnostics. Sorted.
	SourceSceneIDs []string
}

// Resolve computes the current membership for a group config against a
// snapshot. It is deterministic for a fixed snapshot and config, and total:
// a label matching nothing yields an empty membership, not an error.
func Resolve(cfg Config, snap *Snapshot) Membership {
	if cfg.Type == TypeScene {
		return resolveSceneUnion(cfg, snap)
	}
	return resolveLabeled(cfg, snap)
}

// resolveLabeled selects entities carrying the label directly or through
// their device, filtered to the allowed domains.
func resolveLabeled(cfg Config, snap *Snapshot) Membership {
	slug := cfg.Slug()
	allowed := cfg.AllowedDomains()

	seen := make(map[string]bool)
	var ids []string

	for i := range snap.Entities {
		ent := &snap.Entities[i]
		if !allowed[ent.Domain()] || seen[ent.ID] {
			continue
		}

		matched := labelsMatch(ent.Labels, slug)
		if !matched && ent.DeviceID != "" {
			if dev, ok := snap.Device(ent.DeviceID); ok {
				matched = labelsMatch(dev.Labels, slug)
			}
		}
		if !matched {
			continue
		}

		seen[ent.ID] = true
		ids = append(ids, ent.ID)
	}

	sort.Strings(ids)
	return Membership{EntityIDs: ids}
}

// resolveSceneUnion unions the effective entity sets of all scenes carrying
// the label, deduplicating across overlapping scenes.
func resolveSceneUnion(cfg Config, snap *Snapshot) Membership {
	slug := cfg.Slug()
	allowed := cfg.AllowedDomains()

	seen := make(map[string]bool)
	var ids []string
	var sceneIDs []string

	for i := range snap.Scenes {
		sc := &snap.Scenes[i]
		if !labelsMatch(sc.Labels, slug) {
			continue
		}
		sceneIDs = append(sceneIDs, sc.ID)

		for _, eid := range EffectiveEntities(sc, snap) {
			if seen[eid] {
				continue
			}
			if ent, ok := snap.Entity(eid); !ok || !allowed[ent.Domain()] {
				continue
			}
			seen[eid] = true
			ids = append(ids, eid)
		}
	}

	sort.Strings(ids)
	sort.Strings(sceneIDs)
	return Membership{EntityIDs: ids, SourceSceneIDs: sceneIDs}
}

// EffectiveUnion returns the deduplicated union of the effective entity
// sets of every scene carrying the label, sorted. Unlike Resolve, no domain
// filter applies: this is the turn-off target set for scene groups, and a
// scene deactivates every entity it touches, countable member or not.
func EffectiveUnion(label string, snap *Snapshot) []string {
	slug := Slugify(label)

	seen := make(map[string]bool)
	var ids []string

	for i := range snap.Scenes {
		sc := &snap.Scenes[i]
		if !labelsMatch(sc.Labels, slug) {
			continue
		}
		for _, eid := range EffectiveEntities(sc, snap) {
			if seen[eid] {
				continue
			}
			seen[eid] = true
			ids = append(ids, eid)
		}
	}

	sort.Strings(ids)
	return ids
}

// EffectiveEntities returns a scene's direct entity targets plus the
// expansion of its device targets into member entities. Targets that do not
// exist in the snapshot are skipped; devices with no members contribute
// nothing. The result may contain duplicates; callers deduplicate.
func EffectiveEntities(sc *Scene, snap *Snapshot) []string {
	var ids []string

	for _, eid := range sc.EntityTargets {
		if _, ok := snap.Entity(eid); ok {
			ids = append(ids, eid)
		}
	}
	for _, did := range sc.DeviceTargets {
		ids = append(ids, snap.DeviceEntities(did)...)
	}

	return ids
}
