package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine tracks the current state of one entity.
type Machine[S, E ~string] struct {
	def     *Definition[S, E]
	mu      sync.RWMutex
	current S
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanFire reports whether event would be accepted in the current state.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.def.Resolve(ctx, m.current, event, data)
	return err == nil
}

// Fire applies event. On success it returns the new state; on failure the
// machine stays where it was.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.def.Resolve(ctx, m.current, event, data)
	if err != nil {
		return m.current, err
	}
	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, t.From, t.To, event, data); err != nil {
			return m.current, fmt.Errorf("action failed: %w", err)
		}
	}
	m.current = t.To
	return m.current, nil
}
