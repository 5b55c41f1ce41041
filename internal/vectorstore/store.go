package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/model"
)

// Store is the aggregate index of all nodes. Every stored node carries
// an embedding of the index-wide dimensionality set by Init.
// ReplaceDocument is atomic per document id: readers observe either the
// full old node set or the full new one, never a half-replaced state.
type Store interface {
	Init(ctx context.Context, dimension int) error
	ReplaceDocument(ctx context.Context, documentID string, nodes []*model.Node) error
	DeleteDocument(ctx context.Context, documentID string) error
	// Search returns the topK nearest nodes by cosine similarity,
	// best-first; equal scores keep insertion order. An empty index
	// yields an empty result, not an error.
	Search(ctx context.Context, embedding []float32, topK int) ([]*model.ScoredNode, error)
	Count(ctx context.Context) (int, error)
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.VectorStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode store config: %w", err)
	}
	return nil
}
