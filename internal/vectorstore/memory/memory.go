package memory

import (
	"errors"
	"sort"
	"sync"

	"pdfchat/internal/domain"
)

// Store is an in-memory vector store using brute-force cosine similarity.
// Vectors are assumed L2-normalized, so the dot product is the similarity.
type Store struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	segments  []domain.Segment
}

func NewStore() *Store { return &Store{} }

func (s *Store) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.segments = nil
	return nil
}

func (s *Store) Upsert(segments []domain.Segment, vectors [][]float64) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.segments = append(s.segments, segments...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *Store) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 3
	}
	results := make([]domain.SearchResult, len(s.vectors))
	for i := range s.vectors {
		results[i] = domain.SearchResult{Segment: s.segments[i], Score: dot(s.vectors[i], vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.segments = nil
	return nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
