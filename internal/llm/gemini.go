// Package llm wraps the Gemini API for the operations that need a model:
// reading text out of images, transcribing audio and embedding comments.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrNoAPIKey is returned by New when no key is configured.
var ErrNoAPIKey = errors.New("llm: API key is required")

// Model is a Gemini client bound to a generation and an embedding model.
type Model struct {
	client     *genai.Client
	name       string
	embedModel string
}

// New creates a Model. Empty model names fall back to gemini-2.5-flash and
// gemini-embedding-001.
func New(ctx context.Context, apiKey, name, embedModel string) (*Model, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if name == "" {
		name = "gemini-2.5-flash"
	}
	if embedModel == "" {
		embedModel = "gemini-embedding-001"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Model{client: client, name: name, embedModel: embedModel}, nil
}

// Extract sends an instruction together with a binary attachment and
// returns the model's text answer.
func (m *Model) Extract(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(data, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("GenAI returned an empty answer")
	}
	return text, nil
}

// Embed returns one vector per input text, in input order.
func (m *Model) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := m.client.Models.EmbedContent(ctx, m.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Name returns "genai:<model>".
func (m *Model) Name() string {
	return "genai:" + m.name
}
