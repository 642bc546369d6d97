package agent

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

const anonymousIDHexLen = 12

// Anonymizer derives stable anonymous IDs for case IDs. The derivation is
// HMAC-SHA256 keyed per deployment, so the agent can track a case across
// calls but cannot recover the case ID, and IDs do not correlate across
// deployments.
type Anonymizer struct {
	mu      sync.RWMutex
	key     []byte
	reverse map[string]uuid.UUID
}

// NewAnonymizer creates an Anonymizer with the given HMAC key. An empty key
// gets a random per-process key, which still anonymizes but loses ID
// stability across restarts.
func NewAnonymizer(key []byte) (*Anonymizer, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generating anonymizer key: %w", err)
		}
	}
	return &Anonymizer{key: key, reverse: make(map[string]uuid.UUID)}, nil
}

// AnonymousID returns the anonymous ID for a case, of the form "#" followed
// by a short hex digest. The reverse mapping is retained in memory so
// accepted agent proposals can be applied to real cases.
func (a *Anonymizer) AnonymousID(caseID uuid.UUID) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write(caseID[:])
	id := "#" + hex.EncodeToString(mac.Sum(nil))[:anonymousIDHexLen]

	a.mu.Lock()
	a.reverse[id] = caseID
	a.mu.Unlock()
	return id
}

// Resolve maps an anonymous ID back to the case ID it was derived from.
func (a *Anonymizer) Resolve(anonymousID string) (uuid.UUID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	caseID, ok := a.reverse[anonymousID]
	return caseID, ok
}

// Reset drops the reverse mapping. Wired to the vault lock, so the map
// lives for one coordinator session and outstanding agent proposals stop
// resolving once the session ends.
func (a *Anonymizer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reverse = make(map[string]uuid.UUID)
}
