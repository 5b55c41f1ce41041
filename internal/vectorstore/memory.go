package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type memoryEntry struct {
	node *model.Node
	seq  int64
}

// memoryStore is a brute-force cosine-similarity index guarded by one
// RWMutex, for tests and single-node deployments without Postgres.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string][]*memoryEntry
	nextSeq   int64
}

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		return NewMemory(), nil
	})
}

func NewMemory() Store {
	return &memoryStore{docs: make(map[string][]*memoryEntry)}
}

func (s *memoryStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension: %d", appErr.ErrStore, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	return nil
}

func (s *memoryStore) ReplaceDocument(ctx context.Context, documentID string, nodes []*model.Node) error {
	dimension := s.dim()
	entries := make([]*memoryEntry, 0, len(nodes))
	for _, node := range nodes {
		if len(node.Embedding) != dimension {
			return fmt.Errorf("%w: node %s embedding dimension %d, index expects %d",
				appErr.ErrStore, node.ID, len(node.Embedding), dimension)
		}
		entries = append(entries, &memoryEntry{node: cloneNode(node)})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	for _, entry := range entries {
		s.nextSeq++
		entry.seq = s.nextSeq
	}
	if len(entries) > 0 {
		s.docs[documentID] = entries
	}
	return nil
}

func (s *memoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}

func (s *memoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]*model.ScoredNode, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", appErr.ErrRetrieval)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []*model.ScoredNode
	seqs := make(map[*model.ScoredNode]int64)
	for _, entries := range s.docs {
		for _, entry := range entries {
			hit := &model.ScoredNode{
				Node:  cloneNode(entry.node),
				Score: cosineSimilarity(embedding, entry.node.Embedding),
			}
			hits = append(hits, hit)
			seqs[hit] = entry.seq
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return seqs[hits[i]] < seqs[hits[j]]
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *memoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, entries := range s.docs {
		total += len(entries)
	}
	return total, nil
}

func (s *memoryStore) dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func cloneNode(node *model.Node) *model.Node {
	clone := *node
	clone.Embedding = append([]float32(nil), node.Embedding...)
	if node.Metadata != nil {
		clone.Metadata = make(map[string]string, len(node.Metadata))
		for k, v := range node.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
