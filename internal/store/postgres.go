package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lobbysim/eventpipe/internal/events"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the optional ingress-side archive of accepted
// envelopes. Archival is best-effort; the durable delivery path is the
// broker, not this table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.pool.Exec(context.Background(), schemaSQL)
	return err
}

// Ping is used by readiness endpoint to validate DB connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// ArchiveEvent persists one accepted envelope and returns
// inserted=false when the event id was already archived.
//
// Duplicate detection rides on the event_id uniqueness constraint,
// which is compatible with client retries and at-least-once delivery.
func (p *PostgresStore) ArchiveEvent(ctx context.Context, envelope events.Envelope) (bool, error) {
	if envelope.EventID == "" || envelope.Type == "" {
		return false, errors.New("eventId/type required")
	}

	payload := envelope.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	ts := time.UnixMilli(envelope.Timestamp).UTC()

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err = p.pool.QueryRow(ctx, `
		INSERT INTO events(event_id, session_id, user_id, source, event_type, ts, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING 1
	`, envelope.EventID, envelope.SessionID, envelope.UserID,
		string(envelope.Source), envelope.Type, ts, payloadJSON).Scan(&one)

	if err == nil {
		return true, nil
	}

	// Conflict produces "no rows in result set" because RETURNING returns nothing.
	if err.Error() == "no rows in result set" {
		return false, nil
	}

	return false, err
}

// CountEvents returns the number of archived events of event_type in
// the time window [from,to). Half-open interval avoids double counting
// at window boundaries.
func (p *PostgresStore) CountEvents(
	ctx context.Context,
	eventType string,
	from time.Time,
	to time.Time,
) (int64, error) {

	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM events
		WHERE event_type=$1
		  AND ts >= $2
		  AND ts <  $3
	`, eventType, from, to).Scan(&count)

	return count, err
}
