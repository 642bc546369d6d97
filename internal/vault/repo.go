package vault

import (
	"context"
	"time"
)

// IdentifierRecord is one encrypted identifier addressed by an opaque handle.
// The plaintext value never appears in this struct.
type IdentifierRecord struct {
	Handle     string    `json:"handle"`
	Ciphertext string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, rec *IdentifierRecord) error
	GetByHandle(ctx context.Context, handle string) (*IdentifierRecord, error)
	// First returns the oldest record, or ErrNotFound when the vault is empty.
	// Used to verify a password by trial decryption.
	First(ctx context.Context) (*IdentifierRecord, error)
	Count(ctx context.Context) (int, error)

	// Salt returns the per-vault key derivation salt, or ErrNotFound when the
	// vault has never been initialised.
	Salt(ctx context.Context) ([]byte, error)
	SaveSalt(ctx context.Context, salt []byte) error
}
