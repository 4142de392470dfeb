package hub

import "encoding/json"

// Wire messages for the hub WebSocket API.

// message is the envelope for everything the hub sends.
type message struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authMessage is sent in response to auth_required.
type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// stateObject is one entry of a get_states result.
type stateObject struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// entityRegistryEntry is one entry of config/entity_registry/list.
type entityRegistryEntry struct {
	EntityID string   `json:"entity_id"`
	DeviceID string   `json:"device_id"`
	Name     string   `json:"name"`
	Labels   []string `json:"labels"`
}

// deviceRegistryEntry is one entry of config/device_registry/list.
type deviceRegistryEntry struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels"`
}

// eventPayload is the inner payload of an event message.
type eventPayload struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// stateChangedData carries the subject of a state_changed event.
type stateChangedData struct {
	EntityID string `json:"entity_id"`
}

// registryUpdatedData carries the subject of a registry update event.
type registryUpdatedData struct {
	Action   string `json:"action"`
	EntityID string `json:"entity_id"`
	DeviceID string `json:"device_id"`
	LabelID  string `json:"label_id"`
}
