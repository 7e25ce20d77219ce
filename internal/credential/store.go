// Package credential manages the single API credential slot and the
// readiness gate consulted before any completion request.
//
// The credential lives in a fixed storage slot under the spatiality state
// directory, with an environment override for non-interactive use. Validity
// is a sanity check only: it defends against obviously truncated or
// placeholder values, not against well-formed but invalid keys.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// StorageKey is the fixed name of the credential slot on disk.
const StorageKey = "spatiality-openai-api-key"

// EnvKey overrides the stored credential when set.
const EnvKey = "OPENAI_API_KEY"

// MinKeyLength is the validity threshold: a usable key must be strictly
// longer than this. Real service keys are well past it; truncated pastes
// and placeholders are not.
const MinKeyLength = 40

// Sentinel errors.
var (
	// ErrMissingCredential indicates no usable credential is stored.
	ErrMissingCredential = errors.New("missing API credential")
)

// Valid reports whether key passes the minimum-length sanity check.
func Valid(key string) bool {
	return len(key) > MinKeyLength
}

// Mask returns a display-safe form of key, keeping only the edges.
func Mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Store reads and writes the credential slot.
//
// Writes are guarded with a file lock so concurrent spatiality processes
// (e.g. `key set` while a chat is open) do not interleave.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir (the spatiality state directory).
// The directory is created if missing.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("credential: state directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	path := filepath.Join(dir, StorageKey)
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}, nil
}

// Key returns the current credential. The environment override wins over the
// stored slot. An empty string with a nil error means no credential is set.
func (s *Store) Key() (string, error) {
	if env := strings.TrimSpace(os.Getenv(EnvKey)); env != "" {
		return env, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading credential slot: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetKey stores a credential in the slot, replacing any previous value.
func (s *Store) SetKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("credential: refusing to store an empty key")
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking credential slot: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("unlocking credential slot", "error", err)
		}
	}()

	if err := os.WriteFile(s.path, []byte(key+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing credential slot: %w", err)
	}
	s.logger.Debug("credential stored", "slot", StorageKey)
	return nil
}

// ClearKey removes the stored credential. Clearing an empty slot is not an
// error.
func (s *Store) ClearKey() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking credential slot: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("unlocking credential slot", "error", err)
		}
	}()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credential slot: %w", err)
	}
	return nil
}

// HasCredential reports whether a stored credential exists and passes the
// validity check.
func (s *Store) HasCredential() bool {
	key, err := s.Key()
	if err != nil {
		s.logger.Warn("reading credential", "error", err)
		return false
	}
	return Valid(key)
}
