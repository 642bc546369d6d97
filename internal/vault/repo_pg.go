package vault

import (
	"context"
	"errors"

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

func (r *repoPG) Save(ctx context.Context, rec *IdentifierRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO identifier_record (handle, ciphertext)
		VALUES ($1, $2)`,
		rec.Handle, rec.Ciphertext)
	return err
}

func (r *repoPG) GetByHandle(ctx context.Context, handle string) (*IdentifierRecord, error) {
	var rec IdentifierRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT handle, ciphertext, created_at FROM identifier_record WHERE handle = $1`,
		handle).Scan(&rec.Handle, &rec.Ciphertext, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) First(ctx context.Context) (*IdentifierRecord, error) {
	var rec IdentifierRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT handle, ciphertext, created_at FROM identifier_record
		ORDER BY created_at ASC, handle ASC LIMIT 1`).
		Scan(&rec.Handle, &rec.Ciphertext, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM identifier_record`).Scan(&n)
	return n, err
}

func (r *repoPG) Salt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT salt FROM vault_meta WHERE id = 1`).Scan(&salt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return salt, nil
}

func (r *repoPG) SaveSalt(ctx context.Context, salt []byte) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO vault_meta (id, salt) VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING`, salt)
	return err
}
