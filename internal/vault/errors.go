package vault

import "errors"

var (
	// ErrVaultLocked is returned when an operation requires an unlocked vault.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrNotFound is returned when no identifier record exists for a handle.
	ErrNotFound = errors.New("identifier not found")

	// ErrDecryption is returned when stored ciphertext cannot be decrypted
	// with the current key.
	ErrDecryption = errors.New("decryption failed")
)
