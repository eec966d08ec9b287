package embedding

import "context"

// Embedder turns text into vectors for episodic memory search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config selects and configures an embedder backend.
type Config struct {
	Backend   string `json:"backend"` // "api" or "ollama"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the embedder named by cfg.Backend. Unknown backends fall
// back to the OpenAI-compatible API embedder.
func New(cfg Config) Embedder {
	if cfg.Backend == "ollama" {
		return NewOllamaEmbedder(cfg)
	}
	return NewAPIEmbedder(cfg)
}
