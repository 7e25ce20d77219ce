package credential

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spatiality/spatiality/internal/openai"
)

// ClientFactory constructs a completion client from a credential. Injected so
// the gate stays independent of endpoint and rate-limit configuration.
type ClientFactory func(apiKey string) (*openai.Client, error)

// Gate is the precondition check in front of the completion service: it
// verifies a usable credential exists and lazily constructs the transport
// handle, caching it after the first success.
//
// The gate never retries and never prompts. When no credential is present it
// reports ErrMissingCredential and constructs nothing; the caller is
// responsible for surfacing that to the user.
type Gate struct {
	store   *Store
	factory ClientFactory
	logger  *slog.Logger

	mu     sync.Mutex
	client *openai.Client
}

// NewGate creates a Gate over the given credential store.
func NewGate(store *Store, factory ClientFactory, logger *slog.Logger) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("credential: store is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("credential: client factory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, factory: factory, logger: logger}, nil
}

// HasCredential reports whether a usable credential is available.
func (g *Gate) HasCredential() bool {
	return g.store.HasCredential()
}

// Transport returns the completion client, constructing it on first success.
// Failed attempts are not cached: storing a credential and resubmitting works
// without restarting the process.
func (g *Gate) Transport() (*openai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	key, err := g.store.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingCredential, err)
	}
	if !Valid(key) {
		return nil, ErrMissingCredential
	}

	client, err := g.factory(key)
	if err != nil {
		return nil, fmt.Errorf("constructing transport: %w", err)
	}

	g.client = client
	g.logger.Debug("transport handle constructed")
	return g.client, nil
}
