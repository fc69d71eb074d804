package pod

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keyboxSaltLen  = 16
	keyboxNonceLen = 24

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Passphraser supplies the keybox passphrase, possibly by prompting the
// user. Implementations may block for a long time; callers must treat an
// Unlock as a suspension point.
type Passphraser interface {
	Passphrase(ctx context.Context) (string, error)
}

// StaticPassphrase is a Passphraser returning a fixed value, used when
// the passphrase comes from the environment rather than a prompt.
type StaticPassphrase string

func (p StaticPassphrase) Passphrase(ctx context.Context) (string, error) {
	return string(p), nil
}

// Keybox keeps the pod vault key encrypted at rest. scrypt derives the
// sealing key from a passphrase and secretbox authenticates the payload,
// so a wrong passphrase is detected rather than yielding garbage.
type Keybox struct {
	path string

	mu  sync.Mutex
	key string
}

// NewKeybox works against the sealed key file at path. The file may not
// exist yet; Seal creates it.
func NewKeybox(path string) *Keybox {
	return &Keybox{path: path}
}

// Seal encrypts key under passphrase and writes the sealed file.
func (k *Keybox) Seal(key, passphrase string) error {
	salt := make([]byte, keyboxSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keybox salt: %w", err)
	}
	var nonce [keyboxNonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("keybox nonce: %w", err)
	}

	sealing, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	blob := make([]byte, 0, keyboxSaltLen+keyboxNonceLen+len(key)+secretbox.Overhead)
	blob = append(blob, salt...)
	blob = append(blob, nonce[:]...)
	blob = secretbox.Seal(blob, []byte(key), &nonce, sealing)

	if dir := filepath.Dir(k.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keybox dir: %w", err)
		}
	}
	if err := os.WriteFile(k.path, blob, 0o600); err != nil {
		return fmt.Errorf("write keybox: %w", err)
	}

	k.mu.Lock()
	k.key = key
	k.mu.Unlock()
	return nil
}

// Unlock returns the vault key, decrypting the sealed file on first use.
// The passphrase acquisition may suspend on a user prompt.
func (k *Keybox) Unlock(ctx context.Context, p Passphraser) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key != "" {
		return k.key, nil
	}

	blob, err := os.ReadFile(k.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrLocked
	}
	if err != nil {
		return "", fmt.Errorf("read keybox: %w", err)
	}
	if len(blob) < keyboxSaltLen+keyboxNonceLen+secretbox.Overhead {
		return "", ErrLocked
	}

	passphrase, err := p.Passphrase(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire passphrase: %w", err)
	}

	salt := blob[:keyboxSaltLen]
	var nonce [keyboxNonceLen]byte
	copy(nonce[:], blob[keyboxSaltLen:keyboxSaltLen+keyboxNonceLen])

	sealing, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", err
	}

	key, ok := secretbox.Open(nil, blob[keyboxSaltLen+keyboxNonceLen:], &nonce, sealing)
	if !ok {
		return "", ErrLocked
	}

	k.key = string(key)
	return k.key, nil
}

// Forget drops the in-memory key so the next Unlock reads the sealed
// file again.
func (k *Keybox) Forget() {
	k.mu.Lock()
	k.key = ""
	k.mu.Unlock()
}

func deriveKey(passphrase string, salt []byte) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
