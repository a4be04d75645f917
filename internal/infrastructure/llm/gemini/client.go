// Package gemini implements the LLM-backed statement extractor on top of
// the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/genai"

	"github.com/finsheet-io/finsheet/internal/core/domain"
	"github.com/finsheet-io/finsheet/internal/core/ports"
)

var (
	errGeminiKeyMissing = errors.New("GEMINI_API_KEY is not set")
	errEmptyContent     = errors.New("model returned empty content")
)

type Client struct {
	apiKey  string
	model   string
	profile domain.Profile

	initOnce sync.Once
	client   *genai.Client
	initErr  error
}

func New(apiKey, model string, profile domain.Profile) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		profile: profile,
	}
}

// Configured reports whether an API key is present. The orchestrator uses
// this to decide mode availability without touching the network.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// sdk initializes the underlying client lazily so a rule-only deployment
// never dials out.
func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.initOnce.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return c.client, c.initErr
}

// Extract sends one document's candidate lines (or raw PDF bytes when no
// lines were recoverable) to the model and merges the structured response
// with the heuristic hints. No retries here: the caller decides whether a
// failure falls back to rule extraction.
func (c *Client) Extract(ctx context.Context, req ports.LLMRequest) (domain.DocumentResult, error) {
	const op = "gemini extract"

	if !c.Configured() {
		return domain.DocumentResult{}, domain.WrapError(domain.ErrLLMNotConfigured, op, errGeminiKeyMissing)
	}

	client, err := c.sdk(ctx)
	if err != nil {
		return domain.DocumentResult{}, domain.WrapError(domain.ErrLLMResponse, op, err)
	}

	prompt := buildExtractionPrompt(c.profile, req)
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: buildParts(prompt, req),
	}}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(c.profile),
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return domain.DocumentResult{}, domain.WrapError(domain.ErrLLMResponse, op, err)
	}

	content := resp.Text()
	if content == "" {
		return domain.DocumentResult{}, domain.WrapError(domain.ErrLLMResponse, op, errEmptyContent)
	}

	parsed, err := decodeResponse(c.profile, content)
	if err != nil {
		kind := domain.ErrLLMResponse
		if isSchemaError(err) {
			kind = domain.ErrLLMSchema
		}
		return domain.DocumentResult{}, domain.WrapError(kind, op, err)
	}

	return mergeResult(req.DocumentName, parsed, req.Hints), nil
}

// buildParts attaches the raw PDF bytes as an inline document part only
// when there were no candidate lines to quote in the prompt.
func buildParts(prompt string, req ports.LLMRequest) []*genai.Part {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(req.CandidateLines) == 0 && len(req.RawDocument) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: "application/pdf",
				Data:     req.RawDocument,
			},
		})
	}
	return parts
}
