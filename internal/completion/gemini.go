package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini implements Completer for the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini completer with the given API key and default model.
// A missing key or model yields ErrNotConfigured.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is empty: %w", ErrNotConfigured)
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model is empty: %w", ErrNotConfigured)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{client: gc, model: model}, nil
}

// Complete sends req to the Gemini API.
func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}
	if len(req.Turns) == 0 {
		return Response{}, errors.New("gemini: request has no turns")
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, convertTurns(req.Turns), buildConfig(req))
	if err != nil {
		return Response{}, fmt.Errorf("gemini %s: %w", model, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Response{}, fmt.Errorf("gemini %s: empty response", model)
	}
	return Response{Text: text, Model: model}, nil
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	return config
}

// convertTurns maps transcript turns to genai contents. Gemini calls the
// assistant role "model".
func convertTurns(turns []Turn) []*genai.Content {
	result := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}
	return result
}
