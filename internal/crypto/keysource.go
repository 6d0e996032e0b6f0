package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"esign-sync/internal/common/errors"
)

// KeyFileName is the name of the generated master key inside KeyDir.
const KeyFileName = "master.key"

const (
	passphraseSalt       = "esign-sync-master-key"
	passphraseIterations = 100000
)

// KeyConfig lists the places a master key may come from, in priority order.
type KeyConfig struct {
	// KeyB64 is operator-supplied key material, base64 of 32 bytes.
	KeyB64 string
	// Passphrase derives the key with PBKDF2-SHA256 when KeyB64 is empty.
	Passphrase string
	// KeyDir holds a generated key file when neither of the above is set.
	KeyDir string
}

// KeySource resolves the master key once and caches it.
type KeySource struct {
	cfg  KeyConfig
	once sync.Once
	key  []byte
	err  error
}

// NewKeySource creates a KeySource for cfg. No I/O happens until Key is called.
func NewKeySource(cfg KeyConfig) *KeySource {
	return &KeySource{cfg: cfg}
}

// Key returns the master key, resolving it on first use:
//  1. KeyB64, if set (must decode to 32 bytes)
//  2. PBKDF2 of Passphrase, if set
//  3. KeyDir/master.key, created if absent
func (s *KeySource) Key() ([]byte, error) {
	s.once.Do(func() {
		s.key, s.err = s.resolve()
	})
	return s.key, s.err
}

func (s *KeySource) resolve() ([]byte, error) {
	if b64 := strings.TrimSpace(s.cfg.KeyB64); b64 != "" {
		return DecodeKey(b64)
	}

	if s.cfg.Passphrase != "" {
		return pbkdf2.Key([]byte(s.cfg.Passphrase), []byte(passphraseSalt), passphraseIterations, KeySize, sha256.New), nil
	}

	if strings.TrimSpace(s.cfg.KeyDir) == "" {
		return nil, errors.ConfigError("no master key configured and no key directory set")
	}
	return loadOrCreateKeyFile(filepath.Join(s.cfg.KeyDir, KeyFileName))
}

// DecodeKey parses base64 key material and checks its length.
func DecodeKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, errors.ConfigError("master key is not valid base64")
	}
	if len(key) != KeySize {
		return nil, errors.ConfigError(fmt.Sprintf("master key must decode to %d bytes, got %d", KeySize, len(key)))
	}
	return key, nil
}

// loadOrCreateKeyFile returns the key stored at path. When the file does not
// exist a new key is written to a temporary file and hard-linked into place,
// so the file appears with complete contents or not at all. A process that
// loses the race discards its key and reads the winner's.
func loadOrCreateKeyFile(path string) ([]byte, error) {
	if key, err := readKeyFile(path); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot create key directory %s: %v", dir, err))
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.InternalError("failed to generate master key", err)
	}

	tmp, err := os.CreateTemp(dir, ".master-*.tmp")
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot write key directory %s: %v", dir, err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, errors.InternalError("failed to restrict key file permissions", err)
	}
	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(key) + "\n"); err != nil {
		tmp.Close()
		return nil, errors.InternalError("failed to write key file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, errors.InternalError("failed to sync key file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.InternalError("failed to close key file", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if os.IsExist(err) {
			return readKeyFile(path)
		}
		return nil, errors.InternalError("failed to install key file", err)
	}
	return key, nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeKey(string(data))
}
