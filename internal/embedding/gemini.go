package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/hyperjump/kaiwa/pkg/utils"
)

// Gemini task types. Queries and documents are embedded asymmetrically.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates an embedder for model with the given output dimensionality.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder: API key is empty: %w", ErrNotConfigured)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	return &GeminiEmbedder{client: gc, model: model, dimensions: dimensions}, nil
}

// Embed embeds a search query.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds corpus passages in one request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, taskRetrievalDocument)
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, textContents(texts), embedConfig(task, e.dimensions))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	return collectEmbeddings(resp, len(texts))
}

// Dimensions returns the requested output dimensionality.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the genai client holds no resources that need releasing.
func (e *GeminiEmbedder) Close() error {
	return nil
}

func textContents(texts []string) []*genai.Content {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Role: "user", Parts: []*genai.Part{{Text: t}}}
	}
	return contents
}

func embedConfig(task string, dimensions int) *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{TaskType: task}
	if dimensions > 0 {
		d := int32(dimensions)
		cfg.OutputDimensionality = &d
	}
	return cfg
}

// collectEmbeddings copies the response vectors, normalizing them since
// truncated Gemini embeddings are not unit length.
func collectEmbeddings(resp *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d inputs", got, want)
	}
	out := make([][]float32, want)
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embed: embedding %d missing", i)
		}
		v := make([]float32, len(emb.Values))
		copy(v, emb.Values)
		utils.NormalizeL2(v)
		out[i] = v
	}
	return out, nil
}
