package group

// GroupType controls how membership is resolved and which state attributes
// the group publishes.
type GroupType string

const (
	TypeSwitch GroupType = "switch"
	TypeLight  GroupType = "light"
	TypeScene  GroupType = "scene"
)

// Valid reports whether t is a known group type.
func (t GroupType) Valid() bool {
	switch t {
	case TypeSwitch, TypeLight, TypeScene:
		return true
	}
	return false
}

// DefaultColorHex is the group display color when none is configured
// (warm white).
const DefaultColorHex = "#ffb478"

// DefaultBrightness is published for a light group when no active member
// exposes a brightness attribute.
const DefaultBrightness = 255

// Config describes one label group. Immutable after creation; a single
// engine instance owns each config.
type Config struct {
	ID    string
	Label string
	Type  GroupType

	// Domains overrides DefaultDomains when non-empty.
	Domains []Domain

	// ColorHex is the group's display color (light type only).
	ColorHex string

	// DefaultBrightness is used when no active member reports brightness.
	DefaultBrightness int
}

// Slug returns the normalized match key for the configured label.
func (c Config) Slug() string {
	return Slugify(c.Label)
}

// AllowedDomains returns the effective domain allow-set.
func (c Config) AllowedDomains() map[Domain]bool {
	domains := c.Domains
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	allowed := make(map[Domain]bool, len(domains))
	for _, d := range domains {
		allowed[d] = true
	}
	return allowed
}

// Color returns the configured color or the default.
func (c Config) Color() string {
	if c.ColorHex != "" {
		return c.ColorHex
	}
	return DefaultColorHex
}

// FallbackBrightness returns the configured default brightness, clamped
// to [0, 255].
func (c Config) FallbackBrightness() int {
	b := c.DefaultBrightness
	if b <= 0 {
		return DefaultBrightness
	}
	if b > 255 {
		return 255
	}
	return b
}
