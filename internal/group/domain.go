package group

import "strings"

// Domain is the category tag of an entity, taken from the entity id prefix
// ("light.kitchen" -> "light").
type Domain string

const (
	DomainLight        Domain = "light"
	DomainSwitch       Domain = "switch"
	DomainFan          Domain = "fan"
	DomainInputBoolean Domain = "input_boolean"
	DomainScene        Domain = "scene"
)

// DefaultDomains are the domains a label group controls unless the group
// config overrides them. Scenes are never countable members.
var DefaultDomains = []Domain{DomainLight, DomainSwitch, DomainFan, DomainInputBoolean}

func (d Domain) String() string { return string(d) }

// Countable reports whether entities of this domain can be group members.
func (d Domain) Countable() bool {
	switch d {
	case DomainLight, DomainSwitch, DomainFan, DomainInputBoolean:
		return true
	}
	return false
}

// EntityDomain extracts the domain from an entity id.
// Returns "" if the id has no domain prefix.
func EntityDomain(entityID string) Domain {
	idx := strings.IndexByte(entityID, '.')
	if idx <= 0 {
		return ""
	}
	return Domain(entityID[:idx])
}
