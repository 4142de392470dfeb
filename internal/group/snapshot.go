package group

// EntityState is the lifecycle state of an entity as reported by the hub.
type EntityState string

const (
	StateOn          EntityState = "on"
	StateOff         EntityState = "off"
	StateUnavailable EntityState = "unavailable"
	StateUnknown     EntityState = "unknown"
)

// Entity is a controllable or observable endpoint known to the hub.
type Entity struct {
	ID         string
	Labels     []string
	DeviceID   string
	State      EntityState
	Attributes map[string]any
}

// Domain returns the entity's domain, derived from its id.
func (e Entity) Domain() Domain {
	return EntityDomain(e.ID)
}

// Device is a container grouping of entities. It contributes its member
// entities to membership, never itself.
type Device struct {
	ID     string
	Labels []string
}

// Scene is a named preset targeting entities and/or devices.
type Scene struct {
	ID            string
	Name          string
	Labels        []string
	EntityTargets []string
	DeviceTargets []string
}

// Snapshot is a point-in-time view of the hub's registries and states.
// It is assembled fresh for every resolution and never mutated afterwards.
// Lookup maps are built once so resolution stays O(1) per reference.
type Snapshot struct {
	Entities []Entity
	Devices  []Device
	Scenes   []Scene

	entityByID       map[string]int
	deviceByID       map[string]int
	entitiesByDevice map[string][]string
}

// NewSnapshot builds a snapshot with its lookup indexes.
func NewSnapshot(entities []Entity, devices []Device, scenes []Scene) *Snapshot {
	s := &Snapshot{
		Entities:         entities,
		Devices:          devices,
		Scenes:           scenes,
		entityByID:       make(map[string]int, len(entities)),
		deviceByID:       make(map[string]int, len(devices)),
		entitiesByDevice: make(map[string][]string),
	}

	for i := range entities {
		s.entityByID[entities[i].ID] = i
		if devID := entities[i].DeviceID; devID != "" {
			s.entitiesByDevice[devID] = append(s.entitiesByDevice[devID], entities[i].ID)
		}
	}
	for i := range devices {
		s.deviceByID[devices[i].ID] = i
	}

	return s
}

// Entity looks up an entity by id.
func (s *Snapshot) Entity(id string) (*Entity, bool) {
	idx, ok := s.entityByID[id]
	if !ok {
		return nil, false
	}
	return &s.Entities[idx], true
}

// Device looks up a device by id.
func (s *Snapshot) Device(id string) (*Device, bool) {
	idx, ok := s.deviceByID[id]
	if !ok {
		return nil, false
	}
	return &s.Devices[idx], true
}

// DeviceEntities returns the ids of all entities belonging to a device.
// Unknown devices yield nil, which is a valid empty contribution.
func (s *Snapshot) DeviceEntities(deviceID string) []string {
	return s.entitiesByDevice[deviceID]
}
