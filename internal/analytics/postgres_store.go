package analytics

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed analytics store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the analytics tables if they don't exist. Production
// deployments run the goose migrations instead; this keeps ad-hoc and test
// databases usable.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_events (
			id BIGSERIAL PRIMARY KEY,
			event_type TEXT NOT NULL,
			actor TEXT,
			order_id TEXT,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_order ON analytics_events(order_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_type ON analytics_events(event_type);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (event_type, actor, order_id, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, event.EventType, event.Actor, event.OrderID, event.Detail)
	return err
}

func (s *PostgresStore) ByOrder(ctx context.Context, orderID string, since time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, COALESCE(actor, ''), COALESCE(order_id, ''), COALESCE(detail, ''), created_at
		FROM analytics_events
		WHERE order_id = $1 AND created_at >= $2
		ORDER BY id ASC
	`, orderID, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &e.OrderID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) CountByType(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM analytics_events GROUP BY event_type
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}
