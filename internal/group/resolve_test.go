package group

import (
	"reflect"
	"testing"
)

func entity(id string, labels ...string) Entity {
	return Entity{ID: id, Labels: labels, State: StateOff}
}

func TestResolve_LabelMatch(t *testing.T) {
	snap := NewSnapshot(
		[]Entity{
			entity("light.porch", "patio"),
			entity("switch.fountain", "Patio"),
			entity("light.kitchen", "kitchen"),
			entity("fan.ceiling"),
		},
		nil, nil,
	)
	cfg := Config{Label: "patio", Type: TypeSwitch}

	m := Resolve(cfg, snap)
	expected := []string{"light.porch", "switch.fountain"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
	if len(m.SourceSceneIDs) != 0 {
		t.Errorf("Switch group should have no source scenes, got %v", m.SourceSceneIDs)
	}
}

func TestResolve_DomainFilter(t *testing.T) {
	// A labeled entity outside the allowed domains never becomes a member.
	snap := NewSnapshot(
		[]Entity{
			entity("light.porch", "patio"),
			entity("sensor.patio_temp", "patio"),
			entity("scene.patio_evening", "patio"),
		},
		nil, nil,
	)
	cfg := Config{Label: "patio", Type: TypeSwitch}

	m := Resolve(cfg, snap)
	expected := []string{"light.porch"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
}

func TestResolve_DomainOverride(t *testing.T) {
	snap := NewSnapshot(
		[]Entity{
			entity("light.porch", "patio"),
			entity("switch.fountain", "patio"),
		},
		nil, nil,
	)
	cfg := Config{Label: "patio", Type: TypeSwitch, Domains: []Domain{DomainSwitch}}

	m := Resolve(cfg, snap)
	expected := []string{"switch.fountain"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
}

func TestResolve_DeviceLabelInheritance(t *testing.T) {
	// An entity is a member when its device carries the label.
	snap := NewSnapshot(
		[]Entity{
			{ID: "light.strip", DeviceID: "dev1", State: StateOff},
			{ID: "light.bulb", DeviceID: "dev2", State: StateOff},
		},
		[]Device{
			{ID: "dev1", Labels: []string{"patio"}},
			{ID: "dev2", Labels: []string{"kitchen"}},
		},
		nil,
	)
	cfg := Config{Label: "patio", Type: TypeSwitch}

	m := Resolve(cfg, snap)
	expected := []string{"light.strip"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
}

func TestResolve_EmptyLabelMatch(t *testing.T) {
	// A label matching nothing is a valid steady state, not an error.
	snap := NewSnapshot([]Entity{entity("light.porch", "patio")}, nil, nil)
	cfg := Config{Label: "attic", Type: TypeSwitch}

	m := Resolve(cfg, snap)
	if len(m.EntityIDs) != 0 {
		t.Errorf("Expected empty membership, got %v", m.EntityIDs)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	snap := NewSnapshot(
		[]Entity{
			entity("switch.b", "garage"),
			entity("switch.a", "garage"),
			entity("light.c", "garage"),
		},
		nil, nil,
	)
	cfg := Config{Label: "garage", Type: TypeSwitch}

	first := Resolve(cfg, snap)
	second := Resolve(cfg, snap)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Resolve not idempotent: %v vs %v", first, second)
	}
	expected := []string{"light.c", "switch.a", "switch.b"}
	if !reflect.DeepEqual(first.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want sorted %v", first.EntityIDs, expected)
	}
}

func TestResolve_SceneUnion(t *testing.T) {
	// Two scenes sharing a label with sets {a,b} and {b,c} union to {a,b,c}.
	snap := NewSnapshot(
		[]Entity{
			entity("light.a"),
			entity("light.b"),
			entity("light.c"),
		},
		nil,
		[]Scene{
			{ID: "scene.one", Name: "One", Labels: []string{"patio"}, EntityTargets: []string{"light.a", "light.b"}},
			{ID: "scene.two", Name: "Two", Labels: []string{"patio"}, EntityTargets: []string{"light.b", "light.c"}},
			{ID: "scene.other", Name: "Other", Labels: []string{"kitchen"}, EntityTargets: []string{"light.a"}},
		},
	)
	cfg := Config{Label: "patio", Type: TypeScene}

	m := Resolve(cfg, snap)
	expectedIDs := []string{"light.a", "light.b", "light.c"}
	if !reflect.DeepEqual(m.EntityIDs, expectedIDs) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expectedIDs)
	}
	expectedScenes := []string{"scene.one", "scene.two"}
	if !reflect.DeepEqual(m.SourceSceneIDs, expectedScenes) {
		t.Errorf("SourceSceneIDs = %v, want %v", m.SourceSceneIDs, expectedScenes)
	}
}

func TestResolve_SceneDeviceExpansion(t *testing.T) {
	// A scene targeting a device with members {e1,e2} resolves the same as a
	// scene targeting {e1,e2} directly.
	entities := []Entity{
		{ID: "light.e1", DeviceID: "dev1", State: StateOff},
		{ID: "light.e2", DeviceID: "dev1", State: StateOff},
	}
	devices := []Device{{ID: "dev1"}}

	byDevice := NewSnapshot(entities, devices, []Scene{
		{ID: "scene.s", Name: "S", Labels: []string{"patio"}, DeviceTargets: []string{"dev1"}},
	})
	direct := NewSnapshot(entities, devices, []Scene{
		{ID: "scene.s", Name: "S", Labels: []string{"patio"}, EntityTargets: []string{"light.e1", "light.e2"}},
	})

	cfg := Config{Label: "patio", Type: TypeScene}
	if got, want := Resolve(cfg, byDevice), Resolve(cfg, direct); !reflect.DeepEqual(got, want) {
		t.Errorf("Device expansion mismatch: %v vs %v", got, want)
	}
}

func TestResolve_SceneDanglingTargets(t *testing.T) {
	// Targets unknown to the snapshot and devices without members contribute
	// nothing and cause no error.
	snap := NewSnapshot(
		[]Entity{entity("light.real")},
		[]Device{{ID: "dev_empty"}},
		[]Scene{
			{
				ID: "scene.s", Name: "S", Labels: []string{"patio"},
				EntityTargets: []string{"light.real", "light.ghost"},
				DeviceTargets: []string{"dev_empty", "dev_missing"},
			},
		},
	)
	cfg := Config{Label: "patio", Type: TypeScene}

	m := Resolve(cfg, snap)
	expected := []string{"light.real"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
}

func TestResolve_SceneDomainFilter(t *testing.T) {
	// Scene targets outside the allowed domains are excluded even though the
	// scene itself matched the label.
	snap := NewSnapshot(
		[]Entity{
			entity("light.a"),
			entity("media_player.tv"),
		},
		nil,
		[]Scene{
			{ID: "scene.s", Name: "S", Labels: []string{"patio"}, EntityTargets: []string{"light.a", "media_player.tv"}},
		},
	)
	cfg := Config{Label: "patio", Type: TypeScene}

	m := Resolve(cfg, snap)
	expected := []string{"light.a"}
	if !reflect.DeepEqual(m.EntityIDs, expected) {
		t.Errorf("EntityIDs = %v, want %v", m.EntityIDs, expected)
	}
}

func TestEffectiveUnion_NoDomainFilter(t *testing.T) {
	snap := NewSnapshot(
		[]Entity{
			entity("light.a", "den"),
			entity("media_player.tv"),
			entity("light.b"),
		},
		nil,
		[]Scene{
			{ID: "scene.den_movie", Name: "Movie", Labels: []string{"den"}, EntityTargets: []string{"light.a", "media_player.tv"}},
			{ID: "scene.den_read", Name: "Reading", Labels: []string{"den"}, EntityTargets: []string{"light.a", "light.b"}},
		},
	)

	// The union carries everything the scenes touch, media player included
	got := EffectiveUnion("den", snap)
	want := []string{"light.a", "light.b", "media_player.tv"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EffectiveUnion = %v, want %v", got, want)
	}

	// Resolve keeps the domain filter for membership and counts
	m := Resolve(Config{Label: "den", Type: TypeScene}, snap)
	if !reflect.DeepEqual(m.EntityIDs, []string{"light.a", "light.b"}) {
		t.Errorf("Resolve membership = %v, want lights only", m.EntityIDs)
	}
}
