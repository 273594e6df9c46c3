package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewProvider creates a Provider from configuration. Vendor providers are
// wrapped with retry and logging middleware. The offline responder is only
// logged, since it never fails transiently.
func NewProvider(ctx context.Context, cfg Config, eventRepo EventRecorder, logger *zap.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	name := cfg.Resolved()
	var base Provider
	var err error

	switch name {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderOffline:
		offline := NewOfflineProvider(RandomLatency(cfg.Offline.MinDelay, cfg.Offline.MaxDelay))
		return WithLogging(offline, eventRepo, logger), nil
	case ProviderMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", name, err)
	}

	logger.Info("llm provider ready", zap.String("provider", name), zap.String("model", base.ModelID()))

	// caller → retry → logging → base
	return WithRetry(WithLogging(base, eventRepo, logger), cfg.Retry), nil
}
