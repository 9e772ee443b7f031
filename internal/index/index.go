package index

import (
	"fmt"

	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/progress"
)

// Index is a per-session vector index: a named collection of
// (embedding, segment) pairs over one set of uploaded documents.
// Queries embed with the same embedder used at build time.
type Index struct {
	collection string
	embedder   domain.Embedder
	store      domain.VectorStore
	count      int
	log        *zap.Logger
}

// Build embeds every segment and stores the pairs, replacing any prior
// content of the store. The progress sink receives coarse build stages.
func Build(collection string, segments []domain.Segment, embedder domain.Embedder, store domain.VectorStore, sink progress.Sink, log *zap.Logger) (*Index, error) {
	if sink == nil {
		sink = progress.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	ix := &Index{collection: collection, embedder: embedder, store: store, log: log}
	if len(segments) == 0 {
		return ix, nil
	}

	corpus := make([]string, len(segments))
	for i, seg := range segments {
		corpus[i] = seg.Text
	}
	if err := embedder.Prepare(corpus); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}

	sink.Report(0.5, "Generating vector database...")
	vectors := make([][]float64, len(segments))
	for i, seg := range segments {
		vec, err := embedder.Embed(seg.Text)
		if err != nil {
			return nil, fmt.Errorf("embed segment %d: %w", seg.Index, err)
		}
		vectors[i] = vec
		sink.Report(0.5+0.4*float64(i+1)/float64(len(segments)), "Generating vector database...")
	}

	// Remote embedders only know their dimension after the first embed.
	if err := store.Init(len(vectors[0])); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Clear(); err != nil {
		return nil, fmt.Errorf("clear vector store: %w", err)
	}
	if err := store.Upsert(segments, vectors); err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}
	ix.count = len(segments)
	log.Info("vector index built",
		zap.String("collection", collection),
		zap.Int("segments", len(segments)),
		zap.String("embedder", embedder.Name()))
	return ix, nil
}

// Query embeds the text and returns the k nearest stored segments, best
// match first. An empty index yields an empty result, not an error.
func (ix *Index) Query(text string, k int) ([]domain.SearchResult, error) {
	if ix.count == 0 {
		return nil, nil
	}
	vec, err := ix.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return ix.store.Search(vec, k)
}

// Collection returns the collection name this index was built under.
func (ix *Index) Collection() string { return ix.collection }

// Len returns the number of stored segments.
func (ix *Index) Len() int { return ix.count }
