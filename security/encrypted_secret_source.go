package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-webhook-ingest/core"
)

// EncryptedSecretSource decrypts stored signing-secret envelopes on load.
// Secrets live encrypted in config or the database and only exist as
// plaintext inside the verification path.
type EncryptedSecretSource struct {
	cipher      *AppKeyCipher
	ciphertexts [][]byte
}

func NewEncryptedSecretSource(appCipher *AppKeyCipher, ciphertexts ...[]byte) (*EncryptedSecretSource, error) {
	if appCipher == nil {
		return nil, fmt.Errorf("security: app key cipher is required")
	}
	if len(ciphertexts) == 0 {
		return nil, fmt.Errorf("security: at least one encrypted secret is required")
	}
	copied := make([][]byte, len(ciphertexts))
	for i, ciphertext := range ciphertexts {
		if len(ciphertext) == 0 {
			return nil, fmt.Errorf("security: encrypted secret %d is empty", i)
		}
		copied[i] = append([]byte(nil), ciphertext...)
	}
	return &EncryptedSecretSource{
		cipher:      appCipher,
		ciphertexts: copied,
	}, nil
}

func (s *EncryptedSecretSource) Secrets(ctx context.Context) ([][]byte, error) {
	if s == nil || s.cipher == nil {
		return nil, fmt.Errorf("security: encrypted secret source is not configured")
	}
	secrets := make([][]byte, 0, len(s.ciphertexts))
	for i, ciphertext := range s.ciphertexts {
		plaintext, err := s.cipher.Decrypt(ctx, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("security: decrypt secret %d: %w", i, err)
		}
		secrets = append(secrets, plaintext)
	}
	return secrets, nil
}

var _ core.SecretSource = (*EncryptedSecretSource)(nil)
