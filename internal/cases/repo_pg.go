package cases

import (
	"context"
	"errors"

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

const caseCols = `case_id, handle, status, procedure_type, lesion_classification, target_count, imaging_quality, gland_volume, created_at, updated_at`

func scanCase(row pgx.Row) (*CaseRecord, error) {
	var cr CaseRecord
	err := row.Scan(&cr.CaseID, &cr.Handle, &cr.Status, &cr.ProcedureType,
		&cr.LesionClassification, &cr.TargetCount, &cr.ImagingQuality,
		&cr.GlandVolume, &cr.CreatedAt, &cr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *repoPG) Create(ctx context.Context, cr *CaseRecord) error {
	cr.CaseID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_record (case_id, handle, status, procedure_type, lesion_classification, target_count, imaging_quality, gland_volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		cr.CaseID, cr.Handle, cr.Status, cr.ProcedureType, cr.LesionClassification,
		cr.TargetCount, cr.ImagingQuality, cr.GlandVolume).
		Scan(&cr.CreatedAt, &cr.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, caseID uuid.UUID) (*CaseRecord, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM case_record WHERE case_id = $1`, caseID))
}

func (r *repoPG) Update(ctx context.Context, cr *CaseRecord) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_record SET handle=$2, procedure_type=$3, lesion_classification=$4,
			target_count=$5, imaging_quality=$6, gland_volume=$7, updated_at=NOW()
		WHERE case_id = $1`,
		cr.CaseID, cr.Handle, cr.ProcedureType, cr.LesionClassification,
		cr.TargetCount, cr.ImagingQuality, cr.GlandVolume)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*CaseRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM case_record`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseCols+` FROM case_record
		ORDER BY updated_at ASC, case_id ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CaseRecord
	for rows.Next() {
		cr, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cr)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByStatus(ctx context.Context, status Status) ([]*CaseRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseCols+` FROM case_record WHERE status = $1
		ORDER BY updated_at ASC, case_id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CaseRecord
	for rows.Next() {
		cr, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cr)
	}
	return items, rows.Err()
}

// UpdateStatus moves a case from one status to another as a compare-and-set,
// so concurrent transitions cannot both apply.
func (r *repoPG) UpdateStatus(ctx context.Context, caseID uuid.UUID, from, to Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_record SET status = $3, updated_at = NOW()
		WHERE case_id = $1 AND status = $2`, caseID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *repoPG) CountByStatus(ctx context.Context) (*StatusCounts, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM case_record GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts StatusCounts
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case StatusDraft:
			counts.Draft = n
		case StatusPlanning:
			counts.Planning = n
		case StatusScheduled:
			counts.Scheduled = n
		case StatusConfirmed:
			counts.Confirmed = n
		case StatusCompleted:
			counts.Completed = n
		}
	}
	return &counts, rows.Err()
}

// -- Email events --

type emailRepoPG struct{ pool *pgxpool.Pool }

func NewEmailRepoPG(pool *pgxpool.Pool) EmailRepository { return &emailRepoPG{pool: pool} }

func (r *emailRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *emailRepoPG) Add(ctx context.Context, e *EmailEvent) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO email_event (id, case_id, subject)
		VALUES ($1, $2, $3) RETURNING created_at`,
		e.ID, e.CaseID, e.Subject).Scan(&e.CreatedAt)
}

func (r *emailRepoPG) PendingCount(ctx context.Context, caseID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM email_event WHERE case_id = $1 AND NOT resolved`,
		caseID).Scan(&n)
	return n, err
}

func (r *emailRepoPG) ListPending(ctx context.Context) ([]*EmailEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, subject, created_at, resolved, resolved_at
		FROM email_event WHERE NOT resolved ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []*EmailEvent
	for rows.Next() {
		var e EmailEvent
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Subject, &e.CreatedAt, &e.Resolved, &e.ResolvedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *emailRepoPG) MarkResolved(ctx context.Context, caseID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE email_event SET resolved = TRUE, resolved_at = NOW()
		WHERE case_id = $1 AND NOT resolved`, caseID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
