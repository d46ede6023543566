package checkout

import (
	"context"
	"errors"

	"github.com/dmitrymomot/paywall/pkg/statemachine"
)

// Transition names an order state change.
type Transition string

const (
	TransitionActivate       Transition = "activate"
	TransitionMarkIncomplete Transition = "mark_incomplete"
	TransitionCancel         Transition = "cancel"
	TransitionExpire         Transition = "expire"
	TransitionResetPending   Transition = "reset_pending"
)

var orderMachine = statemachine.MustDefinition(
	statemachine.WithTransition(TransitionActivate, StatusActive,
		[]Status{StatusPending, StatusActive, StatusIncomplete, StatusExpired}),
	// A failed payment on an expired order leaves it expired.
	statemachine.WithTransition(TransitionMarkIncomplete, StatusIncomplete,
		[]Status{StatusPending, StatusActive, StatusIncomplete}),
	// canceled only accepts a repeated cancel.
	statemachine.WithTransition(TransitionCancel, StatusCanceled,
		[]Status{StatusPending, StatusActive, StatusIncomplete, StatusExpired, StatusCanceled}),
	statemachine.WithTransition(TransitionExpire, StatusExpired,
		[]Status{StatusActive}),
	statemachine.WithTransition(TransitionResetPending, StatusPending,
		[]Status{StatusPending, StatusActive, StatusIncomplete}),
)

// CanTransition reports whether t is allowed from status.
func CanTransition(status Status, t Transition) bool {
	return orderMachine.Machine(status).CanFire(context.Background(), t, nil)
}

// transitionFor maps a target status to the transition that reaches it.
func transitionFor(target Status) Transition {
	switch target {
	case StatusActive:
		return TransitionActivate
	case StatusCanceled:
		return TransitionCancel
	case StatusIncomplete:
		return TransitionMarkIncomplete
	case StatusExpired:
		return TransitionExpire
	default:
		return TransitionResetPending
	}
}

// applyTransition moves o through t in memory. It does not persist.
func applyTransition(ctx context.Context, o *Order, t Transition) error {
	next, err := orderMachine.Machine(o.Status).Fire(ctx, t, o)
	if err != nil {
		if statemachine.IsNoTransitionAvailableError(err) || statemachine.IsTransitionRejectedError(err) {
			return errors.Join(ErrInvalidTransition, err)
		}
		return err
	}
	o.Status = next
	return nil
}
