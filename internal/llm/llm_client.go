package llm

import "context"

// Settings are the generation parameters the hosted model accepts.
type Settings struct {
	temperature  float64 // randomness, 0.0 to 1.0
	maxNewTokens int
	topK         int // top-k sampling
}

// Option mutates generation settings for a single call.
type Option func(*Settings)

func WithTemperature(t float64) Option {
	return func(s *Settings) { s.temperature = t }
}

func WithMaxNewTokens(n int) Option {
	return func(s *Settings) { s.maxNewTokens = n }
}

func WithTopK(k int) Option {
	return func(s *Settings) { s.topK = k }
}

// Client generates text from a hosted language model.
type Client interface {
	GenerateInference(ctx context.Context, prompt string, opts ...Option) (string, error)
	Model() string
}
