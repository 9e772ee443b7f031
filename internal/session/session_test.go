package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/llm"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/vectorstore/memory"
)

type stubLoader struct {
	pages []domain.Page
	err   error
}

func (s *stubLoader) Load(paths []string) ([]domain.Page, error) {
	return s.pages, s.err
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) GenerateInference(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLM) Model() string { return "stub-model" }

func pages(texts ...string) []domain.Page {
	out := make([]domain.Page, len(texts))
	for i, t := range texts {
		out[i] = domain.Page{FileID: "report.pdf", Number: i, Text: t}
	}
	return out
}

func newTestController(loader Loader, newLLM func(string) (llm.Client, error)) *Controller {
	return NewController(
		loader,
		func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func(string) domain.VectorStore { return memory.NewStore() },
		summarizer.NewFrequencySummarizer(),
		newLLM,
		Settings{RetrieveK: 3, MaxTurns: 20, DigestSentences: 3},
		nil,
	)
}

func goodLLM(reply string) func(string) (llm.Client, error) {
	return func(model string) (llm.Client, error) { return &stubLLM{reply: reply}, nil }
}

func buildParams(paths ...string) BuildParams {
	return BuildParams{Paths: paths, ChunkSize: 600, ChunkOverlap: 40}
}

func engineParams() EngineParams {
	return EngineParams{
		Model:        "mistralai/Mixtral-8x7B-Instruct-v0.1",
		Temperature:  0.7,
		MaxNewTokens: 1024,
		TopK:         3,
		Timeout:      time.Second,
	}
}

func TestBuildIndex(t *testing.T) {
	loader := &stubLoader{pages: pages(
		"The first quarter showed steady revenue growth across all regions.",
		"Operating costs were dominated by cloud infrastructure spending.",
	)}
	ctrl := newTestController(loader, goodLLM("ok"))

	next, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/report.pdf"), nil)
	require.NoError(t, err)
	require.Equal(t, StageIndexed, next.Stage)
	require.Equal(t, "report", next.Collection)
	require.NotNil(t, next.Index)
	require.Positive(t, next.Index.Len())
	require.NotNil(t, next.Memory)
	require.Nil(t, next.Engine)
	require.NotEmpty(t, next.Digest)
}

func TestBuildIndex_CollectionNameTruncated(t *testing.T) {
	loader := &stubLoader{pages: pages("Some page content to index here.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	long := strings.Repeat("x", 80) + ".pdf"
	next, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/"+long), nil)
	require.NoError(t, err)
	require.Len(t, next.Collection, 50)
}

func TestBuildIndex_InvalidParams(t *testing.T) {
	ctrl := newTestController(&stubLoader{}, goodLLM("ok"))
	prior := NewSession()

	cases := []BuildParams{
		{Paths: nil, ChunkSize: 600, ChunkOverlap: 40},
		{Paths: []string{"a.pdf"}, ChunkSize: 50, ChunkOverlap: 40},
		{Paths: []string{"a.pdf"}, ChunkSize: 600, ChunkOverlap: 500},
	}
	for _, p := range cases {
		next, err := ctrl.BuildIndex(prior, p, nil)
		require.Error(t, err)
		require.Equal(t, prior, next)
	}
}

func TestBuildIndex_LoaderFailureLeavesSession(t *testing.T) {
	ctrl := newTestController(&stubLoader{err: errors.New("corrupt file")}, goodLLM("ok"))
	prior := NewSession()

	next, err := ctrl.BuildIndex(prior, buildParams("/tmp/a.pdf"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "loading failed")
	require.Equal(t, prior, next)
}

func TestInitEngine_BeforeBuild(t *testing.T) {
	ctrl := newTestController(&stubLoader{}, goodLLM("ok"))

	_, err := ctrl.InitEngine(NewSession(), engineParams(), nil)
	require.ErrorIs(t, err, ErrIndexNotReady)
}

func TestInitEngine(t *testing.T) {
	loader := &stubLoader{pages: pages("All employees receive ten vacation days per year.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/policy.pdf"), nil)
	require.NoError(t, err)

	next, err := ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)
	require.Equal(t, StageConversing, next.Stage)
	require.NotNil(t, next.Engine)
}

func TestInitEngine_InvalidParams(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/a.pdf"), nil)
	require.NoError(t, err)

	cases := []EngineParams{
		{},
		{Model: "m", Temperature: 1.5, MaxNewTokens: 1024, TopK: 3},
		{Model: "m", Temperature: 0.7, MaxNewTokens: 10, TopK: 3},
		{Model: "m", Temperature: 0.7, MaxNewTokens: 1024, TopK: 99},
	}
	for _, p := range cases {
		next, err := ctrl.InitEngine(sess, p, nil)
		require.Error(t, err)
		require.Equal(t, sess, next)
	}
}

func TestInitEngine_ClientFailureLeavesSession(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content.")}
	newLLM := func(model string) (llm.Client, error) { return nil, errors.New("missing API token") }
	ctrl := newTestController(loader, newLLM)

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/a.pdf"), nil)
	require.NoError(t, err)

	next, err := ctrl.InitEngine(sess, engineParams(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine init failed")
	require.Equal(t, sess, next)
}

func TestAsk_BeforeEngine(t *testing.T) {
	ctrl := newTestController(&stubLoader{}, goodLLM("ok"))

	_, _, err := ctrl.Ask(context.Background(), NewSession(), "hello?")
	require.ErrorIs(t, err, ErrEngineNotReady)
}

func TestAsk(t *testing.T) {
	loader := &stubLoader{pages: pages(
		"The company was founded in Hamburg in nineteen twelve.",
		"The zeppelin fleet carried passengers across the Atlantic ocean routes.",
		"Modern operations focus entirely on freight logistics.",
	)}
	ctrl := newTestController(loader, goodLLM("They operated zeppelins."))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/history.pdf"), nil)
	require.NoError(t, err)
	sess, err = ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)

	sess, ans, err := ctrl.Ask(context.Background(), sess, "  what did the zeppelin fleet do?  ")
	require.NoError(t, err)
	require.Equal(t, "They operated zeppelins.", ans.Text)
	require.GreaterOrEqual(t, len(ans.Sources), 2)
	require.Equal(t, 1, ans.Sources[0].Segment.Page)

	history := sess.Memory.History()
	require.Len(t, history, 1)
	require.Equal(t, "what did the zeppelin fleet do?", history[0].User)
	require.Equal(t, "They operated zeppelins.", history[0].Assistant)
}

func TestAsk_EmptyMessage(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/a.pdf"), nil)
	require.NoError(t, err)
	sess, err = ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)

	_, _, err = ctrl.Ask(context.Background(), sess, "   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty message")
}

func TestAsk_GenerationFailureLeavesHistory(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content worth indexing today.")}
	newLLM := func(model string) (llm.Client, error) {
		return &stubLLM{err: errors.New("model overloaded")}, nil
	}
	ctrl := newTestController(loader, newLLM)

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/a.pdf"), nil)
	require.NoError(t, err)
	sess, err = ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)

	next, _, err := ctrl.Ask(context.Background(), sess, "anything?")
	require.Error(t, err)
	require.Empty(t, next.Memory.History())
}

type brokenUpsertStore struct {
	domain.VectorStore
}

func (s *brokenUpsertStore) Upsert([]domain.Segment, [][]float64) error {
	return errors.New("write refused")
}

func TestBuildIndex_FailedRebuildLeavesPriorIndexQueryable(t *testing.T) {
	loader := &stubLoader{pages: pages(
		"Red apples grow in the orchard every autumn season.",
		"Green pears ripen slowly on the southern slope.",
	)}
	builds := 0
	ctrl := NewController(
		loader,
		func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func(string) domain.VectorStore {
			builds++
			if builds > 1 {
				return &brokenUpsertStore{VectorStore: memory.NewStore()}
			}
			return memory.NewStore()
		},
		summarizer.NewFrequencySummarizer(),
		goodLLM("ok"),
		Settings{RetrieveK: 3, MaxTurns: 20, DigestSentences: 3},
		nil,
	)

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/orchard.pdf"), nil)
	require.NoError(t, err)
	results, err := sess.Index.Query("green pears ripen on the slope", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, 1, results[0].Segment.Page)

	loader.pages = pages("A completely different corpus about sailing ships.")
	next, err := ctrl.BuildIndex(sess, buildParams("/tmp/ships.pdf"), nil)
	require.Error(t, err)
	require.Equal(t, sess, next)

	results, err = next.Index.Query("green pears ripen on the slope", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, 1, results[0].Segment.Page)
}

func TestBuildIndex_CollectionReachesStore(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content to index.")}
	var gotCollection string
	ctrl := NewController(
		loader,
		func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func(collection string) domain.VectorStore {
			gotCollection = collection
			return memory.NewStore()
		},
		summarizer.NewFrequencySummarizer(),
		goodLLM("ok"),
		Settings{RetrieveK: 3, MaxTurns: 20, DigestSentences: 3},
		nil,
	)

	_, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/report.pdf"), nil)
	require.NoError(t, err)
	require.Equal(t, "report", gotCollection)
}

func TestBuildIndex_EmbedderFactoryFailureLeavesSession(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content.")}
	ctrl := NewController(
		loader,
		func() (domain.Embedder, error) { return nil, errors.New("missing API key") },
		func(string) domain.VectorStore { return memory.NewStore() },
		summarizer.NewFrequencySummarizer(),
		goodLLM("ok"),
		Settings{RetrieveK: 3, MaxTurns: 20, DigestSentences: 3},
		nil,
	)

	prior := NewSession()
	next, err := ctrl.BuildIndex(prior, buildParams("/tmp/a.pdf"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedder init failed")
	require.Equal(t, prior, next)
}

func TestBuildIndex_AfterConversingDiscardsEngine(t *testing.T) {
	loader := &stubLoader{pages: pages("First document body text here.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/first.pdf"), nil)
	require.NoError(t, err)
	sess, err = ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)
	sess, _, err = ctrl.Ask(context.Background(), sess, "a question?")
	require.NoError(t, err)

	loader.pages = pages("Second document body text here.")
	next, err := ctrl.BuildIndex(sess, buildParams("/tmp/second.pdf"), nil)
	require.NoError(t, err)
	require.Equal(t, StageIndexed, next.Stage)
	require.Equal(t, "second", next.Collection)
	require.Nil(t, next.Engine)
	require.Empty(t, next.Memory.History())
}

func TestClearChat(t *testing.T) {
	loader := &stubLoader{pages: pages("Some content for the index.")}
	ctrl := newTestController(loader, goodLLM("ok"))

	sess, err := ctrl.BuildIndex(NewSession(), buildParams("/tmp/a.pdf"), nil)
	require.NoError(t, err)
	sess, err = ctrl.InitEngine(sess, engineParams(), nil)
	require.NoError(t, err)
	sess, _, err = ctrl.Ask(context.Background(), sess, "a question?")
	require.NoError(t, err)
	require.NotEmpty(t, sess.Memory.History())

	sess = ctrl.ClearChat(sess)
	require.Empty(t, sess.Memory.History())
	require.Equal(t, StageConversing, sess.Stage)
	require.NotNil(t, sess.Engine)
}

func TestStageString(t *testing.T) {
	require.Equal(t, "upload", StageUpload.String())
	require.Equal(t, "indexed", StageIndexed.String())
	require.Equal(t, "conversing", StageConversing.String())
}
