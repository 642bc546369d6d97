// Package vault holds encrypted identifiers behind opaque handles. The vault
// is locked until a coordinator supplies the password; while locked, the key
// is not held in memory and identifiers cannot be added or revealed.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

// RevealObserver is notified of every reveal attempt. Implementations receive
// the handle and whether decryption succeeded, never the plaintext.
type RevealObserver func(ctx context.Context, handle string, ok bool)

// Vault manages identifier encryption under a password-derived key.
type Vault struct {
	mu       sync.Mutex
	repo     Repository
	enc      *Encryptor
	autoLock time.Duration
	timer    *time.Timer
	observer RevealObserver
	onLock   func()
}

// New creates a locked Vault. autoLock of zero disables inactivity locking.
func New(repo Repository, autoLock time.Duration) *Vault {
	return &Vault{repo: repo, autoLock: autoLock}
}

// SetRevealObserver installs an observer for reveal attempts.
func (v *Vault) SetRevealObserver(obs RevealObserver) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observer = obs
}

// SetLockObserver installs a hook that runs each time the vault moves from
// unlocked to locked, including auto-lock. The hook must not call back into
// the vault.
func (v *Vault) SetLockObserver(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onLock = fn
}

// Unlock derives a key from the password and verifies it by decrypting the
// oldest stored record. An empty vault accepts any password; the first stored
// identifier then fixes the password for the vault's lifetime. Returns false
// with no error when the password is wrong.
func (v *Vault) Unlock(ctx context.Context, password string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	salt, err := v.repo.Salt(ctx)
	if err == ErrNotFound {
		if salt, err = NewSalt(); err != nil {
			return false, err
		}
		if err = v.repo.SaveSalt(ctx, salt); err != nil {
			return false, fmt.Errorf("persisting vault salt: %w", err)
		}
	} else if err != nil {
		return false, err
	}

	enc, err := NewEncryptor(DeriveKey(password, salt))
	if err != nil {
		return false, err
	}

	first, err := v.repo.First(ctx)
	switch {
	case err == ErrNotFound:
		// Empty vault: nothing to verify against.
	case err != nil:
		return false, err
	default:
		if _, err := enc.Decrypt(first.Ciphertext); err != nil {
			return false, nil
		}
	}

	v.enc = enc
	v.resetTimerLocked()
	return true, nil
}

// Lock discards the key. Safe to call on an already locked vault.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockLocked()
}

func (v *Vault) lockLocked() {
	wasUnlocked := v.enc != nil
	v.enc = nil
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	if wasUnlocked && v.onLock != nil {
		v.onLock()
	}
}

// IsUnlocked reports whether the key is currently held.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enc != nil
}

// Touch restarts the inactivity timer without reading or writing any
// record. Call it on user activity elsewhere in the app so an open session
// does not lock mid-work. Does nothing while locked.
func (v *Vault) Touch() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.enc == nil {
		return
	}
	v.resetTimerLocked()
}

// resetTimerLocked restarts the inactivity timer. Caller holds v.mu.
func (v *Vault) resetTimerLocked() {
	if v.autoLock <= 0 {
		return
	}
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(v.autoLock, v.Lock)
}

// AddIdentifier encrypts value and stores it under a fresh random handle.
func (v *Vault) AddIdentifier(ctx context.Context, value string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return "", ErrVaultLocked
	}
	v.resetTimerLocked()

	ciphertext, err := v.enc.Encrypt(value)
	if err != nil {
		return "", err
	}
	handle, err := newHandle()
	if err != nil {
		return "", err
	}
	rec := &IdentifierRecord{Handle: handle, Ciphertext: ciphertext}
	if err := v.repo.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("storing identifier: %w", err)
	}
	return handle, nil
}

// RevealIdentifier decrypts the identifier stored under handle. Decryption
// happens under the vault mutex so a concurrent Lock cannot race the reveal.
func (v *Vault) RevealIdentifier(ctx context.Context, handle string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		v.notifyLocked(ctx, handle, false)
		return "", ErrVaultLocked
	}
	v.resetTimerLocked()

	rec, err := v.repo.GetByHandle(ctx, handle)
	if err != nil {
		v.notifyLocked(ctx, handle, false)
		return "", err
	}
	value, err := v.enc.Decrypt(rec.Ciphertext)
	if err != nil {
		v.notifyLocked(ctx, handle, false)
		return "", err
	}
	v.notifyLocked(ctx, handle, true)
	return value, nil
}

func (v *Vault) notifyLocked(ctx context.Context, handle string, ok bool) {
	if v.observer != nil {
		v.observer(ctx, handle, ok)
	}
}

// HasHandle reports whether a record exists for handle. Works on a locked
// vault since it touches no plaintext.
func (v *Vault) HasHandle(ctx context.Context, handle string) (bool, error) {
	_, err := v.repo.GetByHandle(ctx, handle)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of stored identifiers.
func (v *Vault) Count(ctx context.Context) (int, error) {
	return v.repo.Count(ctx)
}

func newHandle() (string, error) {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", fmt.Errorf("generating handle: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
