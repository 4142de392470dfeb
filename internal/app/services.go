package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/labelmate/labeld/internal/api"
	"github.com/labelmate/labeld/internal/config"
	"github.com/labelmate/labeld/internal/engine"
	"github.com/labelmate/labeld/internal/eventbus"
	"github.com/labelmate/labeld/internal/group"
	"github.com/labelmate/labeld/internal/hub"
	"github.com/labelmate/labeld/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Store *store.Store
	Bus   *eventbus.Bus
	Hub   *hub.Client

	// Group engines and their published states
	Registry *engine.Registry
	Manager  *engine.Manager

	// Presentation layer
	API *api.Server

	runners sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Persistence
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.Store = st

	// Event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Hub client: snapshot provider, command interface and event source
	s.Hub = hub.NewClient(cfg.Hub.URL, cfg.Hub.Token, cfg.Hub.Timeout.Duration())

	// Published state: in-memory registry for the API, sqlite for restarts
	s.Registry = engine.NewRegistry()
	publisher := engine.MultiPublisher{s.Registry, statePersister{st}}

	// One engine per configured group
	s.Manager = engine.NewManager()
	for _, gc := range cfg.Groups {
		groupCfg, err := s.buildGroupConfig(gc)
		if err != nil {
			return nil, err
		}

		exec := engine.NewExecutor(groupCfg.ID, s.Hub, cfg.Engine.RateLimitRPS, st)
		eng := engine.New(groupCfg, s.Hub, exec, publisher, engine.Options{
			Debounce:    cfg.Engine.Debounce.Duration(),
			Suppression: cfg.Engine.Suppression.Duration(),
		})
		s.Manager.Add(eng)

		// Surface the last persisted state until the first recompute
		var persisted engine.Published
		if ok, err := st.LoadState(groupCfg.ID, &persisted); err != nil {
			log.Warn().Err(err).Str("label", gc.Label).Msg("Failed to load persisted state")
		} else if ok {
			s.Registry.Seed(groupCfg.ID, persisted)
		}
	}

	// API server
	if cfg.API.Enabled {
		s.API = api.NewServer(cfg.API.Host, cfg.API.Port, s.Registry, s.Manager, st)
	}

	return s, nil
}

// buildGroupConfig maps a declared group onto a core config with its stable
// persisted identity.
func (s *Services) buildGroupConfig(gc config.GroupConfig) (group.Config, error) {
	gt := gc.GroupType()

	id, err := s.Store.EnsureGroup(group.Slugify(gc.Label), string(gt))
	if err != nil {
		return group.Config{}, err
	}

	var domains []group.Domain
	for _, d := range gc.Domains {
		domains = append(domains, group.Domain(d))
	}

	return group.Config{
		ID:                id,
		Label:             gc.Label,
		Type:              gt,
		Domains:           domains,
		ColorHex:          gc.Color,
		DefaultBrightness: s.cfg.Engine.DefaultBrightness,
	}, nil
}

// Start launches the hub connection, the engines and the API server.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Engines subscribe before the hub starts delivering events
	for _, eng := range s.Manager.All() {
		eng.Attach(s.Bus)

		e := eng
		s.runners.Add(1)
		go func() {
			defer s.runners.Done()
			if err := e.Run(ctx); err != nil {
				onFatalError(err)
			}
		}()
	}

	// Hub connection with reconnect loop
	reconnect := hub.ReconnectConfig{
		MinBackoff:    s.cfg.Hub.MinRetryBackoff.Duration(),
		MaxBackoff:    s.cfg.Hub.MaxRetryBackoff.Duration(),
		Multiplier:    s.cfg.Hub.RetryMultiplier,
		MaxReconnects: s.cfg.Hub.MaxReconnects,
	}
	s.runners.Add(1)
	go func() {
		defer s.runners.Done()
		if err := s.Hub.Run(ctx, s.Bus, reconnect); err != nil {
			onFatalError(err)
		}
	}()

	if s.API != nil {
		s.runners.Add(1)
		go func() {
			defer s.runners.Done()
			if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				onFatalError(err)
			}
		}()
	}

	return nil
}

// Stop shuts down all services in reverse dependency order.
func (s *Services) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	s.Bus.Close(shutdownCtx)
	s.Hub.Close()
	s.runners.Wait()

	if err := s.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}

	log.Info().Msg("All services stopped")
	return nil
}

// ClearStates drops the persisted group states.
func (s *Services) ClearStates() error {
	return s.Store.ClearStates()
}

// statePersister writes each publication to the store so the last known
// state survives restarts.
type statePersister struct {
	store *store.Store
}

func (p statePersister) Publish(groupID string, st engine.Published) {
	if err := p.store.SaveState(groupID, st); err != nil {
		log.Warn().Err(err).Str("group", groupID).Msg("Failed to persist group state")
	}
}
