package group

import "strings"

// Slugify normalizes a label for matching: lowercase, runs of
// non-alphanumeric characters collapsed to single underscores, leading and
// trailing underscores trimmed. Labels are matched by slug so that
// "Patio Lights" and "patio-lights" refer to the same group key.
func Slugify(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	return b.String()
}

// labelsMatch reports whether any label in the set slugifies to target.
func labelsMatch(labels []string, target string) bool {
	for _, l := range labels {
		if Slugify(l) == target {
			return true
		}
	}
	return false
}
