// Package embeddings generates text embeddings through an Ollama server
// and provides the vector math used to rank course chunks.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/ylzuimeng/rag-chatbot/internal/httpkit"
)

// Config for the embedding client.
type Config struct {
	BaseURL string // Ollama base URL (e.g., "http://localhost:11434")
	Model   string // Embedding model (e.g., "nomic-embed-text")
	Logger  *slog.Logger
}

// Client calls Ollama's /api/embeddings endpoint. Ingestion embeds every
// chunk of every course through this client, so it retries transient
// connection errors rather than failing a whole ingest run on one blip.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates an embedding client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		logger:  logger.With("component", "embeddings"),
		http: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate returns the embedding vector for one text.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding for model %q", c.model)
	}

	c.logger.Debug("embedding generated",
		"chars", len(text),
		"dims", len(out.Embedding),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out.Embedding, nil
}

// GenerateBatch embeds each text in order. Ollama's embeddings endpoint is
// single-prompt, so this is sequential; a failure reports which text broke.
func (c *Client) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := c.Generate(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors score 0. Accumulation is done in
// float64 so long vectors don't lose precision.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// TopK returns the indices of the k vectors most similar to query, best
// first. Fewer than k vectors returns them all.
func TopK(query []float32, vectors [][]float32, k int) []int {
	idx := make([]int, len(vectors))
	scores := make([]float32, len(vectors))
	for i, v := range vectors {
		idx[i] = i
		scores[i] = CosineSimilarity(query, v)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}
