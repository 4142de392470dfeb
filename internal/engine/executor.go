package engine

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Commander is the external device-control interface. Success means the
// command was delivered; device-side effects arrive later as change events.
type Commander interface {
	ActivateScene(ctx context.Context, sceneID string) error
	SetEntityState(ctx context.Context, entityID string, on bool) error
}

// CommandLedger records dispatched commands for auditing.
type CommandLedger interface {
	LogCommand(groupID, action, target string, ok bool, cmdErr error) error
}

// Executor dispatches group commands: a single scene activation, or one
// toggle per member entity. Dispatch is rate limited; failures are logged
// per target and never retried.
type Executor struct {
	groupID   string
	commander Commander
	limiter   *rate.Limiter
	ledger    CommandLedger // optional
}

// NewExecutor creates an executor for one group.
func NewExecutor(groupID string, commander Commander, rps float64, ledger CommandLedger) *Executor {
	if rps <= 0 {
		rps = 10.0
	}
	return &Executor{
		groupID:   groupID,
		commander: commander,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)),
		ledger:    ledger,
	}
}

// ActivateScene issues a single scene activation. The command's result is
// the whole operation's result.
func (x *Executor) ActivateScene(ctx context.Context, sceneID string) error {
	if err := x.limiter.Wait(ctx); err != nil {
		return err
	}

	err := x.commander.ActivateScene(ctx, sceneID)
	x.record("activate_scene", sceneID, err)
	if err != nil {
		log.Warn().Err(err).Str("scene", sceneID).Str("group", x.groupID).Msg("Scene activation failed")
		return err
	}

	log.Debug().Str("scene", sceneID).Str("group", x.groupID).Msg("Scene activated")
	return nil
}

// SetMembers toggles every member entity independently. A member failing to
// dispatch is logged and does not abort the remaining commands; the
// operation fails only when the context is cancelled mid-dispatch.
func (x *Executor) SetMembers(ctx context.Context, entityIDs []string, on bool) error {
	action := "turn_off"
	if on {
		action = "turn_on"
	}

	failed := 0
	for _, eid := range entityIDs {
		if err := x.limiter.Wait(ctx); err != nil {
			return err
		}

		err := x.commander.SetEntityState(ctx, eid, on)
		x.record(action, eid, err)
		if err != nil {
			failed++
			log.Warn().Err(err).Str("entity", eid).Str("group", x.groupID).Msg("Entity toggle failed")
		}
	}

	log.Debug().
		Str("group", x.groupID).
		Str("action", action).
		Int("targets", len(entityIDs)).
		Int("failed", failed).
		Msg("Member toggles dispatched")
	return nil
}

func (x *Executor) record(action, target string, cmdErr error) {
	if x.ledger == nil {
		return
	}
	if err := x.ledger.LogCommand(x.groupID, action, target, cmdErr == nil, cmdErr); err != nil {
		log.Warn().Err(err).Msg("Failed to write command ledger")
	}
}
