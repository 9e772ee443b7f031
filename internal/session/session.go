package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/chunker"
	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/engine"
	"pdfchat/internal/index"
	"pdfchat/internal/llm"
	"pdfchat/internal/memory"
	"pdfchat/internal/progress"
)

// Stage is the position of a session in its three-step lifecycle.
type Stage int

const (
	// StageUpload: waiting for documents; no index exists yet.
	StageUpload Stage = iota
	// StageIndexed: a vector index exists; the engine is not initialized.
	StageIndexed
	// StageConversing: the answering engine is ready for chat.
	StageConversing
)

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageIndexed:
		return "indexed"
	case StageConversing:
		return "conversing"
	default:
		return "unknown"
	}
}

var (
	// ErrIndexNotReady is returned when the engine is initialized before any
	// vector index has been built.
	ErrIndexNotReady = errors.New("no vector index: process documents first")
	// ErrEngineNotReady is returned when a chat message is submitted before
	// the answering engine exists.
	ErrEngineNotReady = errors.New("engine not ready: initialize the question-answering engine first")
)

// Session holds all state for one interactive question-answering session.
// Handlers take a Session value and return the next one; a failed action
// returns the input unchanged.
type Session struct {
	Stage      Stage
	Collection string
	Digest     string
	Index      *index.Index
	Engine     *engine.Engine
	Memory     *memory.Conversation
}

// NewSession returns an empty session in the upload stage.
func NewSession() Session {
	return Session{Stage: StageUpload}
}

// Loader reads document files into per-page text records.
type Loader interface {
	Load(paths []string) ([]domain.Page, error)
}

// Settings are the controller-level knobs that are not per-action inputs.
type Settings struct {
	RetrieveK       int // segments fetched per question
	MaxTurns        int // conversation history cap
	DigestSentences int // length of the post-build document digest
}

// Controller wires the pipeline components behind the session state
// machine. It holds no per-session state itself, so it is callable and
// testable without any UI attached. Embedder and store are created per
// build through factories: a failed re-build must not touch the prior
// index, and the prior index keeps querying its own embedder and store.
type Controller struct {
	loader      Loader
	newEmbedder func() (domain.Embedder, error)
	newStore    func(collection string) domain.VectorStore
	summarizer  domain.Summarizer
	newLLM      func(model string) (llm.Client, error)
	settings    Settings
	log         *zap.Logger
}

func NewController(loader Loader, newEmbedder func() (domain.Embedder, error), newStore func(collection string) domain.VectorStore, summarizer domain.Summarizer, newLLM func(model string) (llm.Client, error), settings Settings, log *zap.Logger) *Controller {
	if settings.RetrieveK < config.MinRetrieveK {
		settings.RetrieveK = config.MinRetrieveK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		loader:      loader,
		newEmbedder: newEmbedder,
		newStore:    newStore,
		summarizer:  summarizer,
		newLLM:      newLLM,
		settings:    settings,
		log:         log,
	}
}

// BuildParams are the inputs of the build-index action.
type BuildParams struct {
	Paths        []string
	ChunkSize    int
	ChunkOverlap int
}

func (p BuildParams) validate() error {
	if len(p.Paths) == 0 {
		return errors.New("no documents selected")
	}
	if p.ChunkSize < config.MinChunkSize || p.ChunkSize > config.MaxChunkSize {
		return fmt.Errorf("chunk size %d out of range [%d, %d]", p.ChunkSize, config.MinChunkSize, config.MaxChunkSize)
	}
	if p.ChunkOverlap < config.MinChunkOverlap || p.ChunkOverlap > config.MaxChunkOverlap {
		return fmt.Errorf("chunk overlap %d out of range [%d, %d]", p.ChunkOverlap, config.MinChunkOverlap, config.MaxChunkOverlap)
	}
	return nil
}

// BuildIndex loads, chunks and embeds the documents into a fresh vector
// index. On success the prior index, engine and conversation are discarded
// and the session moves to the indexed stage. On failure the prior session
// is returned untouched.
func (c *Controller) BuildIndex(s Session, p BuildParams, sink progress.Sink) (Session, error) {
	if sink == nil {
		sink = progress.Discard
	}
	if err := p.validate(); err != nil {
		return s, err
	}
	ch, err := chunker.NewRecursiveChunker(p.ChunkSize, p.ChunkOverlap)
	if err != nil {
		return s, err
	}

	sink.Report(0.25, "Loading document...")
	pages, err := c.loader.Load(p.Paths)
	if err != nil {
		return s, fmt.Errorf("loading failed: %w", err)
	}
	segments := ch.Chunk(pages)
	collection := collectionName(p.Paths[0])

	emb, err := c.newEmbedder()
	if err != nil {
		return s, fmt.Errorf("embedder init failed: %w", err)
	}
	ix, err := index.Build(collection, segments, emb, c.newStore(collection), sink, c.log)
	if err != nil {
		return s, err
	}

	digest := ""
	if c.summarizer != nil {
		var b strings.Builder
		for _, pg := range pages {
			b.WriteString(pg.Text)
			b.WriteString("\n")
		}
		// the digest is presentational; a summarizer failure is not a build failure
		if d, err := c.summarizer.Summarize(b.String(), c.settings.DigestSentences); err == nil {
			digest = d
		}
	}
	sink.Report(0.9, "Done!")

	c.log.Info("session re-indexed",
		zap.String("collection", collection),
		zap.Int("pages", len(pages)),
		zap.Int("segments", len(segments)))
	return Session{
		Stage:      StageIndexed,
		Collection: collection,
		Digest:     digest,
		Index:      ix,
		Memory:     memory.NewConversation(c.settings.MaxTurns),
	}, nil
}

// EngineParams are the inputs of the initialize-engine action.
type EngineParams struct {
	Model        string
	Temperature  float64
	MaxNewTokens int
	TopK         int
	Timeout      time.Duration
}

func (p EngineParams) validate() error {
	if p.Model == "" {
		return errors.New("no model selected")
	}
	if p.Temperature < 0 || p.Temperature > 1 {
		return fmt.Errorf("temperature %.2f out of range [0, 1]", p.Temperature)
	}
	if p.MaxNewTokens < config.MinMaxNewTokens || p.MaxNewTokens > config.MaxMaxNewTokens {
		return fmt.Errorf("max tokens %d out of range [%d, %d]", p.MaxNewTokens, config.MinMaxNewTokens, config.MaxMaxNewTokens)
	}
	if p.TopK < config.MinSampleTopK || p.TopK > config.MaxSampleTopK {
		return fmt.Errorf("top_k %d out of range [%d, %d]", p.TopK, config.MinSampleTopK, config.MaxSampleTopK)
	}
	return nil
}

// InitEngine creates the answering engine over the session's vector index
// and moves the session to the conversing stage. It is a usage error to
// call it before an index has been built.
func (c *Controller) InitEngine(s Session, p EngineParams, sink progress.Sink) (Session, error) {
	if sink == nil {
		sink = progress.Discard
	}
	if s.Index == nil {
		return s, ErrIndexNotReady
	}
	if err := p.validate(); err != nil {
		return s, err
	}

	sink.Report(0.5, "Connecting to hosted model...")
	client, err := c.newLLM(p.Model)
	if err != nil {
		return s, fmt.Errorf("engine init failed: %w", err)
	}

	sink.Report(0.8, "Preparing answering engine...")
	s.Engine = engine.New(client, s.Index, engine.Params{
		Temperature:  p.Temperature,
		MaxNewTokens: p.MaxNewTokens,
		TopK:         p.TopK,
		RetrieveK:    c.settings.RetrieveK,
		Timeout:      p.Timeout,
	}, c.log)
	s.Stage = StageConversing
	sink.Report(0.9, "Done!")
	return s, nil
}

// Ask submits one chat message. The turn is appended to the conversation
// only after a successful answer; failures leave history untouched.
func (c *Controller) Ask(ctx context.Context, s Session, message string) (Session, engine.Answer, error) {
	if s.Engine == nil {
		return s, engine.Answer{}, ErrEngineNotReady
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		return s, engine.Answer{}, errors.New("empty message")
	}
	ans, err := s.Engine.Answer(ctx, msg, s.Memory.History())
	if err != nil {
		return s, engine.Answer{}, err
	}
	s.Memory.Append(msg, ans.Text)
	return s, ans, nil
}

// ClearChat empties the conversation log, leaving index and engine intact.
func (c *Controller) ClearChat(s Session) Session {
	if s.Memory != nil {
		s.Memory.Clear()
	}
	return s
}

// collectionName derives the collection identifier from the first uploaded
// file: its base name without extension, truncated to 50 characters.
func collectionName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}
