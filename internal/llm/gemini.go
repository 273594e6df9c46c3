package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// geminiModels maps friendly names to Gemini model IDs.
var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

// geminiSafety blocks harmful content at the strictest vendor threshold.
var geminiSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
}

// GeminiProvider implements Provider using the Google Gemini SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  resolveModel(cfg.Model, geminiModels),
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	result, err := p.client.Models.GenerateContent(ctx, p.model, buildGeminiContents(req.Messages), buildGeminiConfig(req))
	if err != nil {
		return nil, mapGeminiError(err)
	}

	resp := &Response{Model: p.model}
	applyGeminiResult(resp, result)
	if !resp.Blocked {
		resp.Content = result.Text()
	}
	return resp, nil
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	resp := &Response{Model: p.model}
	var b strings.Builder

	stream := p.client.Models.GenerateContentStream(ctx, p.model, buildGeminiContents(req.Messages), buildGeminiConfig(req))
	for result, err := range stream {
		if err != nil {
			return nil, mapGeminiError(err)
		}
		applyGeminiResult(resp, result)
		if resp.Blocked {
			break
		}
		if text := result.Text(); text != "" {
			b.WriteString(text)
			onChunk(text)
		}
	}

	resp.Content = b.String()
	return resp, nil
}

func (p *GeminiProvider) ModelID() string {
	return p.model
}

func buildGeminiConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
		SafetySettings:  geminiSafety,
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	return config
}

func buildGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, len(msgs))
	for i, m := range msgs {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		out[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
	}
	return out
}

// applyGeminiResult folds one (possibly partial) result into resp. Streams
// report usage and finish reason on the last chunk only.
func applyGeminiResult(resp *Response, result *genai.GenerateContentResponse) {
	if result == nil {
		return
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		resp.Blocked = true
		resp.BlockReason = string(fb.BlockReason)
		resp.FinishReason = FinishSafety
	}
	if len(result.Candidates) > 0 {
		cand := result.Candidates[0]
		if cand.FinishReason != "" {
			resp.FinishReason = mapGeminiFinishReason(cand.FinishReason)
			if cand.FinishReason == genai.FinishReasonSafety {
				resp.Blocked = true
				resp.BlockReason = string(cand.FinishReason)
			}
		}
		if len(cand.SafetyRatings) > 0 {
			resp.SafetyRatings = resp.SafetyRatings[:0]
			for _, r := range cand.SafetyRatings {
				resp.SafetyRatings = append(resp.SafetyRatings, SafetyRating{
					Category:    string(r.Category),
					Probability: string(r.Probability),
					Blocked:     r.Blocked,
				})
			}
		}
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}
}

func mapGeminiFinishReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonMaxTokens:
		return FinishMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return FinishSafety
	}
	return FinishEnd
}

func mapGeminiError(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return &ErrInvalidCredential{Err: err}
		case apiErr.Code == http.StatusTooManyRequests && apiErr.Status == "RESOURCE_EXHAUSTED" &&
			strings.Contains(strings.ToLower(apiErr.Message), "quota"):
			return &ErrQuotaExceeded{Err: err}
		case apiErr.Code == http.StatusTooManyRequests:
			return &ErrRateLimit{Err: err}
		case apiErr.Code >= 500:
			return &ErrProviderUnavailable{Err: err}
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "API key"):
			return &ErrInvalidCredential{Err: err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &ErrProviderUnavailable{Err: err}
}
