package hub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/labelmate/labeld/internal/eventbus"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect
// attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// ReconnectConfig controls the connection retry behavior.
type ReconnectConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultReconnectConfig returns sensible defaults for reconnection.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// Run maintains the hub connection, translating pushed hub events into bus
// events. It reconnects with exponential backoff and blocks until the
// context is cancelled or the reconnect budget is exhausted.
func (c *Client) Run(ctx context.Context, bus *eventbus.Bus, cfg ReconnectConfig) error {
	c.OnEvent(func(eventType string, data json.RawMessage) {
		publishHubEvent(bus, eventType, data)
	})

	retryCount := 0
	currentBackoff := cfg.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn, err := c.connect(ctx)
		if err == nil {
			readErr := make(chan error, 1)
			go func() { readErr <- c.readLoop(conn) }()

			if err = c.subscribeEvents(ctx); err == nil {
				// Reset retry budget once the subscription is live
				retryCount = 0
				currentBackoff = cfg.MinBackoff

				log.Info().Str("url", c.url).Msg("Connected to hub")
				err = <-readErr
				c.teardown(conn)
			} else {
				c.teardown(conn)
				<-readErr
			}
		}

		if ctx.Err() != nil {
			return nil
		}

		retryCount++
		if cfg.MaxReconnects > 0 && retryCount > cfg.MaxReconnects {
			log.Error().
				Int("max_reconnects", cfg.MaxReconnects).
				Msg("Hub connection: max reconnects exceeded, terminating")
			return ErrMaxReconnectsExceeded
		}

		log.Warn().
			Err(err).
			Dur("backoff", currentBackoff).
			Int("retry", retryCount).
			Int("max_reconnects", cfg.MaxReconnects).
			Msg("Hub connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(currentBackoff):
		}

		nextBackoff := time.Duration(float64(currentBackoff) * cfg.Multiplier)
		if nextBackoff > cfg.MaxBackoff {
			nextBackoff = cfg.MaxBackoff
		}
		currentBackoff = nextBackoff
	}
}

// publishHubEvent maps a raw hub event onto the internal bus. Scene-related
// registry updates are published as scene events so engines can react to
// scene set changes distinctly from plain registry churn.
func publishHubEvent(bus *eventbus.Bus, eventType string, data json.RawMessage) {
	switch eventType {
	case "state_changed":
		var d stateChangedData
		if err := json.Unmarshal(data, &d); err != nil || d.EntityID == "" {
			return
		}
		busType := eventbus.EventTypeStateChanged
		if strings.HasPrefix(d.EntityID, "scene.") {
			busType = eventbus.EventTypeScene
		}
		bus.Publish(eventbus.Event{
			Type: busType,
			Data: map[string]any{"entity_id": d.EntityID},
		})

	case "entity_registry_updated":
		var d registryUpdatedData
		_ = json.Unmarshal(data, &d)
		busType := eventbus.EventTypeRegistry
		if strings.HasPrefix(d.EntityID, "scene.") {
			busType = eventbus.EventTypeScene
		}
		bus.Publish(eventbus.Event{
			Type: busType,
			Data: map[string]any{"entity_id": d.EntityID, "action": d.Action},
		})

	case "device_registry_updated", "label_registry_updated":
		var d registryUpdatedData
		_ = json.Unmarshal(data, &d)
		bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeRegistry,
			Data: map[string]any{"device_id": d.DeviceID, "label_id": d.LabelID, "action": d.Action},
		})

	case "scene_reloaded":
		bus.Publish(eventbus.Event{Type: eventbus.EventTypeScene, Data: map[string]any{}})
	}
}
