package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/llm"
	"pdfchat/internal/memory"
)

// Retriever is the engine-facing subset of the vector index.
type Retriever interface {
	Query(text string, k int) ([]domain.SearchResult, error)
}

// Params are the generation and retrieval parameters fixed at engine
// construction.
type Params struct {
	Temperature  float64
	MaxNewTokens int
	TopK         int // top-k sampling
	RetrieveK    int // segments fetched per question; minimum 2 for citations
	Timeout      time.Duration
}

// Answer is a synthesized answer together with the ordered segments that
// supported it. Sources carries everything retrieved so the caller can cite
// by position.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// Engine answers questions over a built vector index by retrieving relevant
// segments and conditioning the hosted model on them.
type Engine struct {
	client    llm.Client
	retriever Retriever
	params    Params
	log       *zap.Logger
}

func New(client llm.Client, retriever Retriever, params Params, log *zap.Logger) *Engine {
	if params.RetrieveK < 2 {
		params.RetrieveK = 2
	}
	if params.Timeout <= 0 {
		params.Timeout = 120 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{client: client, retriever: retriever, params: params, log: log}
}

// Model returns the id of the hosted model this engine calls.
func (e *Engine) Model() string { return e.client.Model() }

// Answer retrieves the top segments for the question, builds a single
// combined prompt from them, the formatted history and the question, and
// invokes the hosted model. A failed generation returns an error without
// touching any session state.
func (e *Engine) Answer(ctx context.Context, question string, history []domain.Turn) (Answer, error) {
	results, err := e.retriever.Query(question, e.params.RetrieveK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}

	prompt := buildPrompt(question, history, results)

	ctx, cancel := context.WithTimeout(ctx, e.params.Timeout)
	defer cancel()
	text, err := e.client.GenerateInference(ctx, prompt,
		llm.WithTemperature(e.params.Temperature),
		llm.WithMaxNewTokens(e.params.MaxNewTokens),
		llm.WithTopK(e.params.TopK),
	)
	if err != nil {
		return Answer{}, fmt.Errorf("generation failed: %w", err)
	}
	e.log.Info("answered question",
		zap.String("model", e.client.Model()),
		zap.Int("sources", len(results)))
	return Answer{Text: text, Sources: results}, nil
}

func buildPrompt(question string, history []domain.Turn, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Use the following excerpts from the uploaded documents to answer the question. ")
	b.WriteString("If the answer is not contained in the excerpts, say you don't know.\n\n")
	b.WriteString("Context:\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		b.WriteString(r.Segment.Text)
	}
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, line := range memory.FormatHistory(history) {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(question)
	b.WriteString("\nAssistant:")
	return b.String()
}
