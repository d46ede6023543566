// Package statemachine implements typed finite state machines.
//
// A Definition is an immutable transition table over string-backed state
// and event types. It is built once and shared; per-entity Machines are
// created from it positioned at the entity's persisted state:
//
//	type Status string
//	type Event string
//
//	def := statemachine.MustDefinition(
//		statemachine.WithTransition[Status, Event]("activate", "active", []Status{"pending"}),
//		statemachine.WithTerminal[Status, Event]("canceled"),
//	)
//
//	m := def.Machine(order.Status)
//	next, err := m.Fire(ctx, "activate", order)
//
// Transitions may carry guards, which must all pass, and actions, which run
// before the state changes and abort the transition on error. When several
// transitions share a state/event pair the first one whose guards pass is
// taken.
//
// Fire returns *ErrNoTransitionAvailable when nothing is registered for the
// pair and *ErrTransitionRejected when guards blocked every candidate.
package statemachine
