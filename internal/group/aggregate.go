package group

// State is the published aggregate of a group. Always a pure function of
// membership, snapshot and config; never mutated independently.
type State struct {
	IsOn        bool `json:"is_on"`
	ActiveCount int  `json:"active_count"`
	TotalCount  int  `json:"total_count"`

	// Brightness and ColorHex are set for light groups only.
	Brightness *int   `json:"brightness,omitempty"`
	ColorHex   string `json:"color_hex,omitempty"`

	// Targets lists the member entity ids backing the counts.
	Targets []string `json:"targets"`

	// SourceScenes lists the scenes that contributed members (scene type).
	SourceScenes []string `json:"source_scenes,omitempty"`
}

// Aggregate computes the group state from a resolved membership and the
// entity states in the snapshot. Pure and side-effect-free.
func Aggregate(m Membership, snap *Snapshot, cfg Config) State {
	st := State{
		TotalCount:   len(m.EntityIDs),
		Targets:      m.EntityIDs,
		SourceScenes: m.SourceSceneIDs,
	}

	var briSum, briCount int
	for _, eid := range m.EntityIDs {
		ent, ok := snap.Entity(eid)
		if !ok || ent.State != StateOn {
			// Unavailable and unknown entities count toward the total
			// but never toward the active count.
			continue
		}
		st.ActiveCount++

		if b, ok := attributeNumber(ent.Attributes, "brightness"); ok {
			briSum += b
			briCount++
		}
	}

	st.IsOn = st.ActiveCount > 0

	if cfg.Type == TypeLight {
		bri := 0
		if st.ActiveCount > 0 {
			if briCount > 0 {
				// Members may report values outside [0, 255]; only the
				// mean is clamped.
				bri = clampBrightness(briSum / briCount)
			} else {
				bri = cfg.FallbackBrightness()
			}
		}
		st.Brightness = &bri
		st.ColorHex = cfg.Color()
	}

	return st
}

func clampBrightness(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// attributeNumber reads a numeric attribute. Hub payloads arrive as JSON, so
// numbers are usually float64, but fixtures may use int.
func attributeNumber(attrs map[string]any, key string) (int, bool) {
	v, ok := attrs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
