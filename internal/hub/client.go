package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/labelmate/labeld/internal/group"
)

// ErrNotConnected is returned for requests issued while the hub connection
// is down. Callers treat it as a degraded snapshot, not a fatal fault.
var ErrNotConnected = errors.New("hub: not connected")

// ErrAuthFailed is returned when the hub rejects the access token.
var ErrAuthFailed = errors.New("hub: authentication failed")

// Client speaks the hub's WebSocket API: an auth handshake followed by
// id-correlated request/response commands and pushed events. A single
// connection is shared between snapshot requests, service calls and the
// event subscription; Run owns the connection lifecycle.
type Client struct {
	url     string
	token   string
	timeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan message
	nextID  int64

	// onEvent receives pushed events. Set once before Run.
	onEvent func(eventPayload)
}

// NewClient creates a new hub client.
func NewClient(url, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:     url,
		token:   token,
		timeout: timeout,
		pending: make(map[int64]chan message),
	}
}

// OnEvent registers the handler for pushed events. Must be called before Run.
func (c *Client) OnEvent(fn func(eventType string, data json.RawMessage)) {
	c.onEvent = func(p eventPayload) {
		fn(p.EventType, p.Data)
	}
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// connect dials the hub and performs the auth handshake. On success the
// connection becomes available for requests; the caller must start the read
// loop before issuing any.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return conn, nil
}

// authenticate performs the auth_required/auth/auth_ok exchange.
func (c *Client) authenticate(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	defer conn.SetReadDeadline(time.Time{})

	var hello message
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	switch hello.Type {
	case "auth_required":
		if err := conn.WriteJSON(authMessage{Type: "auth", AccessToken: c.token}); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		var reply message
		if err := conn.ReadJSON(&reply); err != nil {
			return fmt.Errorf("read auth reply: %w", err)
		}
		if reply.Type != "auth_ok" {
			return ErrAuthFailed
		}
	case "auth_ok":
		// Hub does not require auth
	default:
		return fmt.Errorf("unexpected greeting %q", hello.Type)
	}

	return nil
}

// subscribedEvents are the hub event types forwarded to the engine layer.
// A superset of what any single group needs; false positives only cost an
// extra recompute.
var subscribedEvents = []string{
	"state_changed",
	"entity_registry_updated",
	"device_registry_updated",
	"label_registry_updated",
	"scene_reloaded",
}

func (c *Client) subscribeEvents(ctx context.Context) error {
	for _, et := range subscribedEvents {
		_, err := c.call(ctx, map[string]any{
			"type":       "subscribe_events",
			"event_type": et,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// readLoop dispatches incoming messages until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case "result":
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case "event":
			if c.onEvent == nil || msg.Event == nil {
				continue
			}
			var payload eventPayload
			if err := json.Unmarshal(msg.Event, &payload); err != nil {
				log.Warn().Err(err).Msg("Malformed event payload")
				continue
			}
			c.onEvent(payload)
		case "pong":
			// Keepalive reply, nothing to route
		default:
			log.Debug().Str("type", msg.Type).Msg("Unhandled hub message")
		}
	}
}

// teardown discards the connection and fails all pending requests.
func (c *Client) teardown(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// call issues one request and waits for its correlated result.
func (c *Client) call(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}

	c.nextID++
	id := c.nextID
	req["id"] = id

	ch := make(chan message, 1)
	c.pending[id] = ch

	err := conn.WriteJSON(req)
	c.mu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if msg.Success != nil && !*msg.Success {
			if msg.Error != nil {
				return nil, fmt.Errorf("hub: %s: %s", msg.Error.Code, msg.Error.Message)
			}
			return nil, fmt.Errorf("hub: request %d failed", id)
		}
		return msg.Result, nil
	case <-time.After(c.timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("hub: request %d timed out", id)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Snapshot assembles a fresh registry/state snapshot: current states joined
// with entity-registry labels and device links, the device registry, and
// the scene set with its targets. Nothing is cached between calls.
func (c *Client) Snapshot(ctx context.Context) (*group.Snapshot, error) {
	var states []stateObject
	if err := c.callInto(ctx, map[string]any{"type": "get_states"}, &states); err != nil {
		return nil, fmt.Errorf("get_states: %w", err)
	}

	var entReg []entityRegistryEntry
	if err := c.callInto(ctx, map[string]any{"type": "config/entity_registry/list"}, &entReg); err != nil {
		return nil, fmt.Errorf("entity registry: %w", err)
	}

	var devReg []deviceRegistryEntry
	if err := c.callInto(ctx, map[string]any{"type": "config/device_registry/list"}, &devReg); err != nil {
		return nil, fmt.Errorf("device registry: %w", err)
	}

	regByID := make(map[string]*entityRegistryEntry, len(entReg))
	for i := range entReg {
		regByID[entReg[i].EntityID] = &entReg[i]
	}

	var entities []group.Entity
	var scenes []group.Scene

	for i := range states {
		st := &states[i]
		reg := regByID[st.EntityID]

		if strings.HasPrefix(st.EntityID, "scene.") {
			scenes = append(scenes, sceneFromState(st, reg))
			continue
		}

		ent := group.Entity{
			ID:         st.EntityID,
			State:      group.EntityState(st.State),
			Attributes: st.Attributes,
		}
		if reg != nil {
			ent.Labels = reg.Labels
			ent.DeviceID = reg.DeviceID
		}
		entities = append(entities, ent)
	}

	devices := make([]group.Device, 0, len(devReg))
	for _, d := range devReg {
		devices = append(devices, group.Device{ID: d.ID, Labels: d.Labels})
	}

	return group.NewSnapshot(entities, devices, scenes), nil
}

// sceneFromState builds a scene definition from a scene entity's state and
// registry entry. Scene attributes vary across hub versions: targets may be
// an id->state map, a list, or a single id, and device targets may appear
// under device_ids.
func sceneFromState(st *stateObject, reg *entityRegistryEntry) group.Scene {
	sc := group.Scene{ID: st.EntityID, Name: st.EntityID}

	if name, ok := st.Attributes["friendly_name"].(string); ok && name != "" {
		sc.Name = name
	} else if reg != nil && reg.Name != "" {
		sc.Name = reg.Name
	}
	if reg != nil {
		sc.Labels = reg.Labels
	}

	targets := st.Attributes["entities"]
	if targets == nil {
		targets = st.Attributes["entity_id"]
	}
	switch t := targets.(type) {
	case map[string]any:
		for eid := range t {
			sc.EntityTargets = append(sc.EntityTargets, eid)
		}
	case []any:
		for _, v := range t {
			if eid, ok := v.(string); ok {
				sc.EntityTargets = append(sc.EntityTargets, eid)
			}
		}
	case string:
		sc.EntityTargets = append(sc.EntityTargets, t)
	}

	if devIDs, ok := st.Attributes["device_ids"].([]any); ok {
		for _, v := range devIDs {
			if did, ok := v.(string); ok {
				sc.DeviceTargets = append(sc.DeviceTargets, did)
			}
		}
	}

	return sc
}

func (c *Client) callInto(ctx context.Context, req map[string]any, out any) error {
	raw, err := c.call(ctx, req)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// ActivateScene activates a scene. Delivery of the service call is the
// success criterion; the resulting entity states arrive later as events.
func (c *Client) ActivateScene(ctx context.Context, sceneID string) error {
	_, err := c.call(ctx, map[string]any{
		"type":         "call_service",
		"domain":       "scene",
		"service":      "turn_on",
		"service_data": map[string]any{"entity_id": sceneID},
	})
	return err
}

// SetEntityState turns a single entity on or off.
func (c *Client) SetEntityState(ctx context.Context, entityID string, on bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	_, err := c.call(ctx, map[string]any{
		"type":         "call_service",
		"domain":       "homeassistant",
		"service":      service,
		"service_data": map[string]any{"entity_id": entityID},
	})
	return err
}

// Close tears down the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.teardown(conn)
	}
	return nil
}
