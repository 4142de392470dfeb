// Package engine runs one recompute-and-control loop per configured label
// group: it watches change notifications, re-resolves membership, publishes
// the aggregate state and executes scene-first group commands.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/labelmate/labeld/internal/eventbus"
	"github.com/labelmate/labeld/internal/group"
)

// SnapshotProvider supplies fresh registry/state snapshots on demand.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*group.Snapshot, error)
}

// Options tunes engine timing.
type Options struct {
	// Debounce is the fixed window that coalesces notification bursts.
	Debounce time.Duration
	// Suppression is the optimistic window after a command dispatch during
	// which recomputed publications are dropped.
	Suppression time.Duration
}

const (
	defaultDebounce    = 250 * time.Millisecond
	defaultSuppression = 1 * time.Second
)

// Engine is the aggregation engine for one label group. Recomputations are
// strictly serialized on a single goroutine: a new resolution never starts
// before the previous publication completed.
type Engine struct {
	cfg      group.Config
	provider SnapshotProvider
	exec     *Executor
	pub      Publisher

	debounce    time.Duration
	suppression time.Duration

	// trigger coalesces pending recompute requests (capacity 1).
	trigger chan struct{}

	mu            sync.Mutex
	targets       map[string]bool // last resolved members, for the relevance filter
	sceneMembers  map[string]bool // members of labeled scenes, for the relevance filter
	resolvedOnce  bool
	lastOnScene   string
	lastOffScene  string
	suppressUntil time.Time
}

// New creates an engine for one group config.
func New(cfg group.Config, provider SnapshotProvider, exec *Executor, pub Publisher, opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Suppression <= 0 {
		opts.Suppression = defaultSuppression
	}
	return &Engine{
		cfg:          cfg,
		provider:     provider,
		exec:         exec,
		pub:          pub,
		debounce:     opts.Debounce,
		suppression:  opts.Suppression,
		trigger:      make(chan struct{}, 1),
		targets:      make(map[string]bool),
		sceneMembers: make(map[string]bool),
	}
}

// Config returns the engine's group config.
func (e *Engine) Config() group.Config {
	return e.cfg
}

// LastScenes returns the last scene used for ON and OFF.
func (e *Engine) LastScenes() (on, off string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOnScene, e.lastOffScene
}

// Attach subscribes the engine to change notifications on the bus.
func (e *Engine) Attach(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeStateChanged, e.Notify)
	bus.Subscribe(eventbus.EventTypeRegistry, e.Notify)
	bus.Subscribe(eventbus.EventTypeScene, e.Notify)
}

// Notify requests a recompute if the event plausibly concerns this group.
// Safe to call from any goroutine.
func (e *Engine) Notify(evt eventbus.Event) {
	if !e.relevant(evt) {
		return
	}
	e.poke()
}

// relevant is a superset filter: false positives only cost a recompute,
// false negatives would freeze the display, so anything uncertain passes.
func (e *Engine) relevant(evt eventbus.Event) bool {
	switch evt.Type {
	case eventbus.EventTypeRegistry, eventbus.EventTypeScene:
		// Registry and scene churn can change membership in ways the
		// subject metadata cannot rule out
		return true
	case eventbus.EventTypeStateChanged:
		id := evt.EntityID()
		if id == "" {
			return true
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.resolvedOnce {
			return true
		}
		return e.targets[id] || e.sceneMembers[id]
	}
	return false
}

// poke coalesces a recompute request.
func (e *Engine) poke() {
	select {
	case e.trigger <- struct{}{}:
	default:
		// Already pending
	}
}

// Run executes the Idle -> Pending -> Resolving cycle until the context is
// cancelled. An initial recompute runs immediately so the group publishes
// without waiting for the first notification.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Str("label", e.cfg.Label).
		Str("type", string(e.cfg.Type)).
		Dur("debounce", e.debounce).
		Msg("Group engine started")

	e.recompute(ctx)

	for {
		// Idle: wait for the first notification
		select {
		case <-ctx.Done():
			log.Info().Str("label", e.cfg.Label).Msg("Group engine stopping")
			return nil
		case <-e.trigger:
		}

		// Pending: absorb the burst for one fixed window
		timer := time.NewTimer(e.debounce)
	absorb:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-e.trigger:
				// Coalesced into the same window
			case <-timer.C:
				break absorb
			}
		}

		// Resolving
		e.recompute(ctx)
	}
}

// recompute resolves membership, aggregates state and publishes it. A
// provider failure degrades to the empty membership so the group reports
// totalCount=0 rather than freezing stale.
func (e *Engine) recompute(ctx context.Context) {
	var st group.State

	snap, err := e.provider.Snapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Str("label", e.cfg.Label).Msg("Snapshot failed, publishing degraded state")
		st = group.Aggregate(group.Membership{}, group.NewSnapshot(nil, nil, nil), e.cfg)
	} else {
		m := group.Resolve(e.cfg, snap)
		st = group.Aggregate(m, snap, e.cfg)
		e.updateFilterCache(m, snap)

		log.Debug().
			Str("label", e.cfg.Label).
			Int("total", st.TotalCount).
			Int("active", st.ActiveCount).
			Int("scenes", len(m.SourceSceneIDs)).
			Msg("Recomputed group state")
	}

	// Liveness: never publish after teardown began
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Now().Before(e.suppressUntil) {
		log.Debug().Str("label", e.cfg.Label).Msg("Publication suppressed during optimistic window")
		return
	}
	e.publishLocked(st)
}

// updateFilterCache refreshes the relevance filter's view of which entities
// belong to the group or to any labeled scene.
func (e *Engine) updateFilterCache(m group.Membership, snap *group.Snapshot) {
	targets := make(map[string]bool, len(m.EntityIDs))
	for _, id := range m.EntityIDs {
		targets[id] = true
	}

	sceneMembers := make(map[string]bool)
	for _, sc := range group.LabeledScenes(e.cfg.Label, snap.Scenes) {
		for _, id := range group.EffectiveEntities(&sc, snap) {
			sceneMembers[id] = true
		}
	}

	e.mu.Lock()
	e.targets = targets
	e.sceneMembers = sceneMembers
	e.resolvedOnce = true
	e.mu.Unlock()
}

// publishLocked emits the state. The caller holds e.mu: the suppression
// check (or window set) and the write to the publisher form one critical
// section, so command-path and recompute-path publications never interleave.
func (e *Engine) publishLocked(st group.State) {
	e.pub.Publish(e.cfg.ID, Published{
		GroupID:      e.cfg.ID,
		Label:        e.cfg.Label,
		Type:         e.cfg.Type,
		State:        st,
		LastOnScene:  e.lastOnScene,
		LastOffScene: e.lastOffScene,
		UpdatedAt:    time.Now().UTC(),
	})
}

// TurnOn activates the group: a matching scene when one exists, otherwise
// one toggle per resolved member.
func (e *Engine) TurnOn(ctx context.Context) error {
	snap, err := e.provider.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if e.cfg.Type == group.TypeScene {
		// Scene groups activate the alphabetically-first labeled scene,
		// with no name filter
		sceneID, ok := group.SelectFirstScene(e.cfg.Label, snap.Scenes)
		if !ok {
			log.Debug().Str("label", e.cfg.Label).Msg("Turn ON: no labeled scenes")
			return nil
		}
		if err := e.exec.ActivateScene(ctx, sceneID); err != nil {
			return err
		}
		e.noteScene(sceneID, group.ActionOn)
		e.beginSuppression(true, snap)
		return nil
	}

	if sceneID, ok := group.SelectScene(e.cfg.Label, group.ActionOn, snap.Scenes); ok {
		if err := e.exec.ActivateScene(ctx, sceneID); err != nil {
			return err
		}
		e.noteScene(sceneID, group.ActionOn)
		e.beginSuppression(true, snap)
		return nil
	}
	e.clearScene(group.ActionOn)

	m := group.Resolve(e.cfg, snap)
	if len(m.EntityIDs) == 0 {
		log.Debug().Str("label", e.cfg.Label).Msg("Turn ON: no targets")
		return nil
	}
	if err := e.exec.SetMembers(ctx, m.EntityIDs, true); err != nil {
		return err
	}
	e.beginSuppression(true, snap)
	return nil
}

// TurnOff deactivates the group. Scene groups turn off the union of every
// matching scene's effective entity set; other groups prefer an off-scene
// and fall back to per-member toggles.
func (e *Engine) TurnOff(ctx context.Context) error {
	snap, err := e.provider.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if e.cfg.Type == group.TypeScene {
		// Turn off everything the labeled scenes touch, not just the
		// domain-filtered membership backing the counts.
		targets := group.EffectiveUnion(e.cfg.Label, snap)
		if len(targets) == 0 {
			log.Debug().Str("label", e.cfg.Label).Msg("Turn OFF: no aggregated scene members")
			return nil
		}
		if err := e.exec.SetMembers(ctx, targets, false); err != nil {
			return err
		}
		e.beginSuppression(false, snap)
		return nil
	}

	if sceneID, ok := group.SelectScene(e.cfg.Label, group.ActionOff, snap.Scenes); ok {
		if err := e.exec.ActivateScene(ctx, sceneID); err != nil {
			return err
		}
		e.noteScene(sceneID, group.ActionOff)
		e.beginSuppression(false, snap)
		return nil
	}
	e.clearScene(group.ActionOff)

	m := group.Resolve(e.cfg, snap)
	if len(m.EntityIDs) == 0 {
		log.Debug().Str("label", e.cfg.Label).Msg("Turn OFF: no targets")
		return nil
	}
	if err := e.exec.SetMembers(ctx, m.EntityIDs, false); err != nil {
		return err
	}
	e.beginSuppression(false, snap)
	return nil
}

func (e *Engine) noteScene(sceneID string, action group.Action) {
	e.mu.Lock()
	if action == group.ActionOn {
		e.lastOnScene = sceneID
		e.lastOffScene = ""
	} else {
		e.lastOffScene = sceneID
		e.lastOnScene = ""
	}
	e.mu.Unlock()
}

func (e *Engine) clearScene(action group.Action) {
	e.mu.Lock()
	if action == group.ActionOn {
		e.lastOnScene = ""
	} else {
		e.lastOffScene = ""
	}
	e.mu.Unlock()
}

// beginSuppression publishes the expected state immediately and drops
// recomputed publications until the window elapses, hiding the flicker
// between command dispatch and the hub reporting the effect. One refresh is
// scheduled after the window so the real state takes over.
func (e *Engine) beginSuppression(on bool, snap *group.Snapshot) {
	m := group.Resolve(e.cfg, snap)
	st := group.Aggregate(m, snap, e.cfg)
	st.IsOn = on

	e.mu.Lock()
	e.suppressUntil = time.Now().Add(e.suppression)
	e.publishLocked(st)
	e.mu.Unlock()

	time.AfterFunc(e.suppression, e.poke)
}
