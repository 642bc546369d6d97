package theatre

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casecoord/casecoord/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `slot_id, hospital_name, date, start_time, duration_minutes, created_at, updated_at`

func (r *repoPG) scanSlot(ctx context.Context, row pgx.Row) (*TheatreSlot, error) {
	var s TheatreSlot
	err := row.Scan(&s.SlotID, &s.HospitalName, &s.Date, &s.StartTime,
		&s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.AssignedCaseIDs, err = r.assignments(ctx, s.SlotID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) assignments(ctx context.Context, slotID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT case_id FROM slot_assignment WHERE slot_id = $1 ORDER BY position ASC`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, s *TheatreSlot) error {
	s.SlotID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO theatre_slot (slot_id, hospital_name, date, start_time, duration_minutes)
		VALUES ($1,$2,$3,$4,$5) RETURNING created_at, updated_at`,
		s.SlotID, s.HospitalName, s.Date, s.StartTime, s.DurationMinutes).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, slotID uuid.UUID) (*TheatreSlot, error) {
	return r.scanSlot(ctx, r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM theatre_slot WHERE slot_id = $1`, slotID))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*TheatreSlot, int, error) {
	where := ""
	args := []interface{}{}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where += fmt.Sprintf(" AND date <= $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM theatre_slot WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT `+slotCols+` FROM theatre_slot WHERE 1=1%s
		ORDER BY date ASC, start_time ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	var slots []*TheatreSlot
	for rows.Next() {
		var s TheatreSlot
		if err := rows.Scan(&s.SlotID, &s.HospitalName, &s.Date, &s.StartTime,
			&s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			rows.Close()
			return nil, 0, err
		}
		slots = append(slots, &s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, s := range slots {
		if s.AssignedCaseIDs, err = r.assignments(ctx, s.SlotID); err != nil {
			return nil, 0, err
		}
	}
	return slots, total, nil
}

func (r *repoPG) Delete(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM theatre_slot WHERE slot_id = $1`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *repoPG) Assign(ctx context.Context, slotID, caseID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO slot_assignment (slot_id, case_id, position)
		VALUES ($1, $2, (SELECT COALESCE(MAX(position), 0) + 1 FROM slot_assignment WHERE slot_id = $1))`,
		slotID, caseID)
	return err
}

func (r *repoPG) Release(ctx context.Context, caseID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM slot_assignment WHERE case_id = $1`, caseID)
	return err
}

func (r *repoPG) SlotForCase(ctx context.Context, caseID uuid.UUID) (*TheatreSlot, error) {
	return r.scanSlot(ctx, r.conn(ctx).QueryRow(ctx, `
		SELECT `+slotCols+` FROM theatre_slot s
		JOIN slot_assignment a ON a.slot_id = s.slot_id
		WHERE a.case_id = $1`, caseID))
}
