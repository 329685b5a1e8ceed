// Package secrets encrypts configuration values with age.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// ErrNoIdentity is returned when a key file holds no X25519 identity.
var ErrNoIdentity = errors.New("no X25519 identity in key file")

// AgeEncryptor encrypts to and decrypts with a single X25519 identity.
type AgeEncryptor struct {
	identity *age.X25519Identity
}

// NewAgeEncryptor loads the identity stored at keyPath.
func NewAgeEncryptor(keyPath string) (*AgeEncryptor, error) {
	f, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age key: %w", err)
	}
	for _, id := range ids {
		if x, ok := id.(*age.X25519Identity); ok {
			return &AgeEncryptor{identity: x}, nil
		}
	}
	return nil, ErrNoIdentity
}

// NewEphemeralEncryptor generates a throwaway identity.
func NewEphemeralEncryptor() (*AgeEncryptor, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	return &AgeEncryptor{identity: id}, nil
}

// EnsureKeyFile creates an identity at path if none exists. It reports
// whether a new key was written.
func EnsureKeyFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat age key: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return false, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create key dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# created: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# public key: %s\n", id.Recipient())
	fmt.Fprintf(&b, "%s\n", id)
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return false, fmt.Errorf("write age key: %w", err)
	}
	return true, nil
}

// Recipient returns the public key values are encrypted to.
func (e *AgeEncryptor) Recipient() string {
	return e.identity.Recipient().String()
}

// Encrypt returns plaintext encrypted and ASCII-armored.
func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, e.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("age write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age close: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("armor close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt accepts armored or binary age ciphertext.
func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	var src io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armor.Header)) {
		src = armor.NewReader(bytes.NewReader(bytes.TrimSpace(ciphertext)))
	}
	r, err := age.Decrypt(src, e.identity)
	if err != nil {
		return nil, fmt.Errorf("age decrypt: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("age read: %w", err)
	}
	return out, nil
}

// Resolve returns plain when it is set and otherwise decrypts encrypted.
// Both empty yields "".
func Resolve(enc *AgeEncryptor, plain, encrypted string) (string, error) {
	if plain != "" || encrypted == "" {
		return plain, nil
	}
	if enc == nil {
		return "", errors.New("encrypted value present but no age key configured")
	}
	out, err := enc.Decrypt([]byte(encrypted))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
