package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/embedding/openai"
	"pdfchat/internal/embedding/tfidf"
	"pdfchat/internal/llm"
	"pdfchat/internal/loader"
	"pdfchat/internal/session"
	"pdfchat/internal/summarizer"
	"pdfchat/internal/tui"
	vectormem "pdfchat/internal/vectorstore/memory"
	"pdfchat/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/pdfchat/config.yaml if not provided)")
	flag.Parse()
	paths := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The TUI owns the terminal, so structured logs go to a file.
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{cfg.Log.File}
	zapCfg.ErrorOutputPaths = []string{cfg.Log.File}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()

	// Assemble component factories. Each index build gets fresh instances,
	// so a failed re-build cannot disturb the previous index.
	var newEmbedder func() (domain.Embedder, error)
	switch cfg.Embedder.Type {
	case "tfidf", "":
		newEmbedder = func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		embCfg := openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		}
		newEmbedder = func() (domain.Embedder, error) { return openai.NewClient(embCfg) }
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var newStore func(collection string) domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory", "":
		newStore = func(string) domain.VectorStore { return vectormem.NewStore() }
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		qdrantCfg := *cfg.VectorStore.Qdrant
		newStore = func(collection string) domain.VectorStore {
			return qdrant.NewStore(qdrant.Config{
				URL:        qdrantCfg.URL,
				APIKeyEnv:  qdrantCfg.APIKeyEnv,
				Collection: collection,
				Timeout:    time.Duration(qdrantCfg.TimeoutSecs) * time.Second,
			})
		}
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	newLLM := func(model string) (llm.Client, error) {
		return llm.NewHFClient(llm.HFConfig{
			BaseURL:   cfg.LLM.BaseURL,
			APIKeyEnv: cfg.LLM.APIKeyEnv,
			Model:     model,
			Timeout:   cfg.LLM.TimeoutDuration(),
		})
	}

	ctrl := session.NewController(
		loader.NewPDFLoader(logger),
		newEmbedder,
		newStore,
		summarizer.NewFrequencySummarizer(),
		newLLM,
		session.Settings{
			RetrieveK:       cfg.Retriever.TopK,
			MaxTurns:        cfg.Memory.MaxTurns,
			DigestSentences: cfg.Summarizer.MaxSentences,
		},
		logger,
	)

	m := tui.New(ctrl, cfg, paths)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
