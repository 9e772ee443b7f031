package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// HFClient calls the Hugging Face Inference API for text generation.
// The model is addressed by its repository id appended to the base URL.
type HFClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// HFConfig configures the client. The access token is read from the
// environment variable named by APIKeyEnv and is never logged or stored.
type HFConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

func NewHFClient(cfg HFConfig) (*HFClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API token in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co/models"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model id is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HFClient{
		apiKey:     key,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Model returns the model repository id this client targets.
func (c *HFClient) Model() string { return c.model }

type hfParameters struct {
	Temperature    float64 `json:"temperature"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	TopK           int     `json:"top_k"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// GenerateInference sends the prompt and returns the generated text.
// The caller bounds the call with ctx; the hosted model may be slow.
func (c *HFClient) GenerateInference(ctx context.Context, prompt string, opts ...Option) (string, error) {
	settings := Settings{temperature: 0.7, maxNewTokens: 1024, topK: 3}
	for _, opt := range opts {
		opt(&settings)
	}

	request := hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			Temperature:    settings.temperature,
			MaxNewTokens:   settings.maxNewTokens,
			TopK:           settings.topK,
			ReturnFullText: false,
		},
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := c.baseURL + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr hfError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("inference request failed with status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("inference request failed with status %d", resp.StatusCode)
	}

	var generations []hfGeneration
	if err := json.Unmarshal(body, &generations); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}
	if len(generations) == 0 {
		return "", fmt.Errorf("no generation in response")
	}
	return strings.TrimSpace(generations[0].GeneratedText), nil
}
