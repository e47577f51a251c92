// Package pool shares vector store handles across engine components.
//
// Opening a store is comparatively expensive (file creation, table setup)
// and concurrent opens of the same database file are unsafe, so all
// components obtain their handle through a process-wide pool keyed by
// backend, path and collection.
package pool

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnemo-labs/mnemo-go/pkg/logging"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/chromem"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/sqlite"
)

// Pool hands out shared VectorStore handles. The zero value is not usable;
// construct with New.
type Pool struct {
	mu     sync.RWMutex
	stores map[string]storage.VectorStore
	log    zerolog.Logger
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		stores: make(map[string]storage.VectorStore),
		log:    logging.Component("storage.pool"),
	}
}

// Get returns the shared store for (provider, path, collection), opening
// it on first use. Two callers asking for the same triple always receive
// the same handle. Open failures are returned to the caller and never
// cached, so a later call retries the open.
func (p *Pool) Get(provider, path, collection string) (storage.VectorStore, error) {
	key := provider + "|" + path + "|" + collection

	p.mu.RLock()
	store, ok := p.stores[key]
	p.mu.RUnlock()
	if ok {
		return store, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check under the write lock; another caller may have opened the
	// store while we waited.
	if store, ok := p.stores[key]; ok {
		return store, nil
	}

	store, err := open(provider, path, collection)
	if err != nil {
		return nil, err
	}
	p.stores[key] = store
	p.log.Debug().Str("provider", provider).Str("path", path).Str("collection", collection).Msg("store opened")
	return store, nil
}

// Close closes every pooled store and empties the pool. The first error
// encountered is returned after all stores have been closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, store := range p.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("pool: close %s: %w", key, err)
		}
	}
	p.stores = make(map[string]storage.VectorStore)
	return firstErr
}

func open(provider, path, collection string) (storage.VectorStore, error) {
	switch provider {
	case "", "sqlite":
		return sqlite.New(sqlite.Config{Path: path, Collection: collection})
	case "chromem":
		return chromem.New(chromem.Config{Collection: collection})
	default:
		return nil, fmt.Errorf("pool: unknown storage provider %q", provider)
	}
}
