package domain

// Page is one page of text extracted from an uploaded PDF document.
type Page struct {
	FileID string
	Number int // 0-based page index within the source file
	Text   string
}

// Segment is a bounded span of document text used as the unit of retrieval.
type Segment struct {
	Text   string
	FileID string
	Page   int // page the segment was primarily drawn from, 0-based
	Index  int
}

// SearchResult represents a matching segment with a similarity score.
type SearchResult struct {
	Segment Segment
	Score   float64
}

// Turn is one completed question/answer exchange.
type Turn struct {
	User      string
	Assistant string
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(text string) ([]float64, error)
}

// Chunker splits document pages into segments suitable for retrieval indexing.
type Chunker interface {
	Chunk(pages []Page) []Segment
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(dimension int) error
	Upsert(segments []Segment, vectors [][]float64) error
	Search(vector []float64, topK int) ([]SearchResult, error)
	Clear() error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
