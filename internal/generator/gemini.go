package generator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini connects to the Gemini API with apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	var cfg *genai.GenerateContentConfig
	if req.Layout {
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   layoutSchema(req),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func layoutSchema(req Request) *genai.Schema {
	allowed := make([]string, len(req.Allowed))
	for i, t := range req.Allowed {
		allowed[i] = string(t)
	}
	text := &genai.Schema{Type: genai.TypeString}

	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"type": {Type: genai.TypeString, Enum: allowed},
				"content": {
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":       text,
						"subtitle":    text,
						"buttonText":  text,
						"description": text,
						"items":       {Type: genai.TypeArray, Items: text},
					},
				},
			},
			Required: []string{"type", "content"},
		},
	}
}
