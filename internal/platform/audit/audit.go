// Package audit records identifier reveal events. Events carry only opaque
// handles and actor metadata, never decrypted identifier values.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Outcome codes for reveal attempts.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// RevealEvent is a single audited access to a protected identifier.
type RevealEvent struct {
	ID        uuid.UUID `json:"id"`
	Handle    string    `json:"handle"`
	ActorID   string    `json:"actor_id"`
	Outcome   string    `json:"outcome"`
	RequestID string    `json:"request_id"`
	Recorded  time.Time `json:"recorded"`
}

// Recorder persists reveal events.
type Recorder interface {
	Record(ctx context.Context, event *RevealEvent) error
}

// PGRecorder writes reveal events to the reveal_audit table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) Record(ctx context.Context, event *RevealEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}

	const query = `
		INSERT INTO reveal_audit (id, handle, actor_id, outcome, request_id, recorded)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Handle, event.ActorID, event.Outcome, event.RequestID, event.Recorded)
	if err != nil {
		return fmt.Errorf("inserting reveal event: %w", err)
	}
	return nil
}

// LogRecorder emits reveal events to a structured logger. Useful when no
// database is configured.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(_ context.Context, event *RevealEvent) error {
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}
	r.logger.Info().
		Str("handle", event.Handle).
		Str("actor_id", event.ActorID).
		Str("outcome", event.Outcome).
		Str("request_id", event.RequestID).
		Time("recorded", event.Recorded).
		Msg("identifier reveal")
	return nil
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *RevealEvent) error { return nil }
