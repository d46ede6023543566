package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Definition is an immutable transition table. It is safe for concurrent
// use and is shared by every Machine created from it.
type Definition[S, E ~string] struct {
	transitions map[S]map[E][]Transition[S, E]
	terminal    map[S]struct{}
}

// Option configures a Definition.
type Option[S, E ~string] func(*Definition[S, E]) error

// TransitionOption configures a single transition.
type TransitionOption[S, E ~string] func(*Transition[S, E])

// WithGuards attaches guards to a transition.
func WithGuards[S, E ~string](guards ...Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		t.Guards = append(t.Guards, guards...)
	}
}

// WithActions attaches actions to a transition.
func WithActions[S, E ~string](actions ...Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		t.Actions = append(t.Actions, actions...)
	}
}

// WithTransition registers event as moving the machine from each of the
// given states to `to`. Registering the same pair twice is allowed; the
// first transition whose guards pass wins.
func WithTransition[S, E ~string](event E, to S, from []S, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(d *Definition[S, E]) error {
		if event == "" || to == "" || len(from) == 0 {
			return ErrInvalidTransition
		}
		for _, f := range from {
			if f == "" {
				return ErrInvalidTransition
			}
			t := Transition[S, E]{From: f, To: to, Event: event}
			for _, opt := range opts {
				opt(&t)
			}
			if d.transitions[f] == nil {
				d.transitions[f] = make(map[E][]Transition[S, E])
			}
			d.transitions[f][event] = append(d.transitions[f][event], t)
		}
		return nil
	}
}

// WithTerminal marks states that accept no events at all.
func WithTerminal[S, E ~string](states ...S) Option[S, E] {
	return func(d *Definition[S, E]) error {
		for _, s := range states {
			d.terminal[s] = struct{}{}
		}
		return nil
	}
}

// NewDefinition builds a transition table.
func NewDefinition[S, E ~string](opts ...Option[S, E]) (*Definition[S, E], error) {
	d := &Definition[S, E]{
		transitions: make(map[S]map[E][]Transition[S, E]),
		terminal:    make(map[S]struct{}),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	for s := range d.terminal {
		if len(d.transitions[s]) > 0 {
			return nil, fmt.Errorf("%w: terminal state %q has outgoing transitions", ErrInvalidTransition, s)
		}
	}
	return d, nil
}

// MustDefinition is NewDefinition that panics on error.
func MustDefinition[S, E ~string](opts ...Option[S, E]) *Definition[S, E] {
	d, err := NewDefinition(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to build state machine definition: %v", err))
	}
	return d
}

// IsTerminal reports whether s accepts no events.
func (d *Definition[S, E]) IsTerminal(s S) bool {
	_, ok := d.terminal[s]
	return ok
}

// Events returns the events that have at least one transition out of s, sorted.
func (d *Definition[S, E]) Events(s S) []E {
	events := make([]E, 0, len(d.transitions[s]))
	for e := range d.transitions[s] {
		events = append(events, e)
	}
	slices.Sort(events)
	return events
}

// Resolve finds the transition that event would take from state without
// running actions.
func (d *Definition[S, E]) Resolve(ctx context.Context, from S, event E, data any) (Transition[S, E], error) {
	if event == "" {
		return Transition[S, E]{}, ErrInvalidEvent
	}
	candidates := d.transitions[from][event]
	if len(candidates) == 0 {
		return Transition[S, E]{}, NewErrNoTransitionAvailable(string(from), string(event))
	}
	for _, t := range candidates {
		if guardsPass(ctx, t, data) {
			return t, nil
		}
	}
	return Transition[S, E]{}, NewErrTransitionRejected(string(from), string(event))
}

// Machine starts a machine positioned at current.
func (d *Definition[S, E]) Machine(current S) *Machine[S, E] {
	return &Machine[S, E]{def: d, current: current}
}

func guardsPass[S, E ~string](ctx context.Context, t Transition[S, E], data any) bool {
	for _, g := range t.Guards {
		if g != nil && !g(ctx, t.From, t.Event, data) {
			return false
		}
	}
	return true
}
