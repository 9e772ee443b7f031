package tui

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/llm"
	"pdfchat/internal/session"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/vectorstore/memory"
)

type fixedLoader struct {
	pages []domain.Page
	err   error
}

func (l *fixedLoader) Load(paths []string) ([]domain.Page, error) {
	return l.pages, l.err
}

func testModel(t *testing.T, loader session.Loader) Model {
	t.Helper()
	cfg, err := config.Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	ctrl := session.NewController(
		loader,
		func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		func(string) domain.VectorStore { return memory.NewStore() },
		summarizer.NewFrequencySummarizer(),
		func(model string) (llm.Client, error) { return nil, errors.New("unused") },
		session.Settings{RetrieveK: cfg.Retriever.TopK, MaxTurns: cfg.Memory.MaxTurns, DigestSentences: cfg.Summarizer.MaxSentences},
		nil,
	)
	return New(ctrl, cfg, nil)
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestView_BeforeWindowSize(t *testing.T) {
	m := testModel(t, &fixedLoader{})
	require.Equal(t, "Loading...", m.View())
}

func TestView_ShowsTabs(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	view := m.View()
	for _, title := range tabTitles {
		require.Contains(t, view, title)
	}
	require.Contains(t, view, "Document pre-processing")
}

func TestTabCycling(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	require.Equal(t, tabDocuments, m.activeTab)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	require.Equal(t, tabEngine, m.activeTab)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	m = next.(Model)
	require.Equal(t, tabDocuments, m.activeTab)
}

func TestSubmit_NoDocumentsSelected(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.Nil(t, cmd)
	require.False(t, m.busy)
	require.Contains(t, m.View(), "Error: no documents selected")
}

func TestBuildDone_UpdatesStatusAndSession(t *testing.T) {
	loader := &fixedLoader{pages: []domain.Page{{FileID: "report.pdf", Number: 0, Text: "Quarterly revenue grew in all regions."}}}
	m := sized(testModel(t, loader))
	m.busy = true

	built, err := m.ctrl.BuildIndex(session.NewSession(), session.BuildParams{
		Paths: []string{"/tmp/report.pdf"}, ChunkSize: 600, ChunkOverlap: 40,
	}, nil)
	require.NoError(t, err)

	next, _ := m.Update(buildDoneMsg{sess: built})
	m = next.(Model)
	require.False(t, m.busy)
	require.Contains(t, m.statusDocs, `Collection "report"`)
	require.Equal(t, session.StageIndexed, m.sess.Stage)
}

func TestBuildDone_Error(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	m.busy = true

	next, _ := m.Update(buildDoneMsg{sess: session.NewSession(), err: errors.New("loading failed: bad file")})
	m = next.(Model)
	require.False(t, m.busy)
	require.Contains(t, m.statusDocs, "Error: loading failed")
}

func TestEnterIgnoredWhileBusy(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	m.busy = true
	m.pathsInput.SetValue("/tmp/a.pdf")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
}

func TestRenderCitations_DegradesBelowTwoSources(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	out := m.renderCitations()
	require.Contains(t, out, "Reference 1: (no source)")
	require.Contains(t, out, "Reference 2: (no source)")
}

func TestExcerpt(t *testing.T) {
	require.Equal(t, "a b c", excerpt("  a \n b \t c ", 160))
	long := excerpt("word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word word", 20)
	require.Len(t, long, 23)
}

func TestExcerpt_CutsOnRuneBoundary(t *testing.T) {
	out := excerpt(strings.Repeat("é", 200), 10)
	require.True(t, utf8.ValidString(out))
	require.Equal(t, strings.Repeat("é", 10)+"...", out)
}

func TestProgressRoutedToLaunchingTab(t *testing.T) {
	m := sized(testModel(t, &fixedLoader{}))
	m.pathsInput.SetValue("/tmp/a.pdf")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	require.True(t, m.busy)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	require.Equal(t, tabEngine, m.activeTab)

	next, _ = m.Update(progressMsg{Fraction: 0.5, Label: "Generating vector database..."})
	m = next.(Model)
	require.Equal(t, "Generating vector database...", m.statusDocs)
	require.Equal(t, "None", m.statusEngine)
}
