package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

// KeyEntry is one signing secret plus the window in which it is accepted.
// A zero window never expires, which is the common single-secret setup.
type KeyEntry struct {
	KeyID  string
	Secret []byte
	Window KeyRotationWindow
}

// SecretKeyring holds the active and previous signing secrets during a
// rotation. Verification tries every secret whose window covers the current
// instant, so deliveries signed with the outgoing secret keep verifying until
// its window closes.
type SecretKeyring struct {
	mu      sync.RWMutex
	entries []KeyEntry
	Now     func() time.Time
}

func NewSecretKeyring(entries ...KeyEntry) (*SecretKeyring, error) {
	keyring := &SecretKeyring{
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, entry := range entries {
		if err := keyring.Add(entry); err != nil {
			return nil, err
		}
	}
	return keyring, nil
}

// NewSecretKeyringFromStrings builds a keyring of never-expiring secrets,
// ordered newest first the way config lists them.
func NewSecretKeyringFromStrings(secrets ...string) (*SecretKeyring, error) {
	entries := make([]KeyEntry, 0, len(secrets))
	for i, secret := range secrets {
		trimmed := strings.TrimSpace(secret)
		if trimmed == "" {
			continue
		}
		entries = append(entries, KeyEntry{
			KeyID:  fmt.Sprintf("key-%d", i+1),
			Secret: []byte(trimmed),
		})
	}
	return NewSecretKeyring(entries...)
}

func (k *SecretKeyring) Add(entry KeyEntry) error {
	if k == nil {
		return fmt.Errorf("security: keyring is nil")
	}
	if len(entry.Secret) == 0 {
		return fmt.Errorf("security: key entry secret is required")
	}
	if !entry.Window.NotBefore.IsZero() && !entry.Window.NotAfter.IsZero() &&
		entry.Window.NotAfter.Before(entry.Window.NotBefore) {
		return fmt.Errorf("security: key entry window closes before it opens")
	}
	copied := entry
	copied.KeyID = strings.TrimSpace(entry.KeyID)
	copied.Secret = append([]byte(nil), entry.Secret...)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries = append(k.entries, copied)
	return nil
}

// Retire closes the window of the named key at the given instant. Deliveries
// signed with it stop verifying once the instant passes.
func (k *SecretKeyring) Retire(keyID string, at time.Time) error {
	if k == nil {
		return fmt.Errorf("security: keyring is nil")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fmt.Errorf("security: key id is required")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.entries {
		if k.entries[i].KeyID == keyID {
			k.entries[i].Window.NotAfter = at.UTC()
			return nil
		}
	}
	return fmt.Errorf("security: no key entry with id %q", keyID)
}

// Secrets returns the secrets whose rotation window covers the current
// instant, in insertion order.
func (k *SecretKeyring) Secrets(_ context.Context) ([][]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("security: keyring is nil")
	}
	now := k.now()
	k.mu.RLock()
	defer k.mu.RUnlock()

	active := make([][]byte, 0, len(k.entries))
	for _, entry := range k.entries {
		if !entry.Window.Allows(now) {
			continue
		}
		active = append(active, append([]byte(nil), entry.Secret...))
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("security: no active signing secrets")
	}
	return active, nil
}

func (k *SecretKeyring) now() time.Time {
	if k != nil && k.Now != nil {
		return k.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.SecretSource = (*SecretKeyring)(nil)
