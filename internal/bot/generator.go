// Package bot produces replies for the AI chat participant.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ammar1510/chatty/internal/logger"
)

var (
	ErrEmptyReply    = errors.New("generator returned an empty reply")
	ErrNotConfigured = errors.New("bot generator is not configured")
)

var log = logger.New("bot")

// Generator turns a single user prompt into a reply. Calls are stateless;
// no conversation history is sent.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(firstCandidateText(resp))
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		return sb.String()
	}
	return ""
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Unavailable is used when no API key is configured; every call fails so the
// caller falls back to its canned reply.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
