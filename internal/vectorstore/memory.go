package vectorstore

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used in tests and when no database is
// configured. Search scores by cosine similarity over stored embeddings.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Point)}
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		s.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[collection]
	return ok && len(coll) > 0, nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	results := make([]SearchResult, 0, len(coll))
	for _, p := range coll {
		score := cosineSimilarity(vector, p.Embedding)
		if opts.MinScore > 0 && score < opts.MinScore {
			continue
		}
		results = append(results, SearchResult{
			ID:      p.ID,
			Content: p.Content,
			Score:   score,
			Payload: p.Payload,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	p, ok := coll[id]
	if !ok {
		return nil, ErrPointNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Scroll(ctx context.Context, collection string, batchSize int, fn ScrollFunc) error {
	if batchSize <= 0 {
		batchSize = 200
	}

	s.mu.RLock()
	coll, ok := s.collections[collection]
	if !ok {
		s.mu.RUnlock()
		return ErrCollectionNotFound
	}

	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	points := make([]Point, 0, len(ids))
	for _, id := range ids {
		points = append(points, coll[id])
	}
	s.mu.RUnlock()

	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := fn(points[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collection])), nil
}

func (s *MemoryStore) DeleteByPrefix(ctx context.Context, collection, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		return nil
	}
	for id := range coll {
		if strings.HasPrefix(id, prefix) {
			delete(coll, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		return ErrCollectionNotFound
	}
	delete(s.collections, collection)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
