package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/paywall/pkg/checkout"
)

// ClaimEvent inserts a processing row. A stale processing row left by a
// crashed instance is taken over.
func (s *Store) ClaimEvent(ctx context.Context, e checkout.ProcessedEvent, staleBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_webhook_events (event_id, event_type, order_id, outcome, processed_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (event_id) DO UPDATE
		SET event_type = EXCLUDED.event_type, processed_at = EXCLUDED.processed_at
		WHERE checkout_webhook_events.outcome = $4 AND checkout_webhook_events.processed_at < $6`,
		e.EventID, e.EventType, e.OrderID, checkout.OutcomeProcessing, e.ProcessedAt, staleBefore)
	if err != nil {
		return false, fmt.Errorf("pgstore: claim event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ReleaseEvent(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkout_webhook_events WHERE event_id = $1 AND outcome = $2`,
		eventID, checkout.OutcomeProcessing)
	if err != nil {
		return fmt.Errorf("pgstore: release event: %w", err)
	}
	return nil
}

func (s *Store) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM checkout_webhook_events WHERE event_id = $1 AND outcome <> $2)`,
		eventID, checkout.OutcomeProcessing).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("pgstore: event lookup: %w", err)
	}
	return ok, nil
}

func (s *Store) RecordEvent(ctx context.Context, e checkout.ProcessedEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_webhook_events (event_id, event_type, order_id, outcome, processed_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (event_id) DO UPDATE
		SET event_type = EXCLUDED.event_type, order_id = EXCLUDED.order_id,
			outcome = EXCLUDED.outcome, processed_at = EXCLUDED.processed_at
		WHERE checkout_webhook_events.outcome = $6`,
		e.EventID, e.EventType, e.OrderID, e.Outcome, e.ProcessedAt, checkout.OutcomeProcessing)
	if err != nil {
		return fmt.Errorf("pgstore: record event: %w", err)
	}
	return nil
}

func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM checkout_webhook_events WHERE processed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("pgstore: prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}
