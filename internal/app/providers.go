package app

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/MrWong99/fluency/internal/config"
	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/internal/resilience"
	"github.com/MrWong99/fluency/pkg/audiosrc"
	"github.com/MrWong99/fluency/pkg/provider/stt"
	"github.com/MrWong99/fluency/pkg/provider/stt/deepgram"
	"github.com/MrWong99/fluency/pkg/provider/stt/google"
	"github.com/MrWong99/fluency/pkg/provider/stt/whisper"
)

// NewRegistry returns a [config.Registry] with the built-in speech backends
// registered. All of them read recordings through fetcher.
//
// Recognised per-provider options:
//
//	google:   poll_interval (duration)
//	whisper:  timeout (duration), max_retries (int)
func NewRegistry(ctx context.Context, fetcher audiosrc.Fetcher) *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterSTT("google", func(e config.ProviderEntry) (stt.Transcriber, error) {
		opts := []google.Option{google.WithFetcher(fetcher)}
		if e.Model != "" {
			opts = append(opts, google.WithModel(e.Model))
		}
		if e.APIKey != "" {
			opts = append(opts, google.WithAPIKey(e.APIKey))
		}
		if e.BaseURL != "" {
			opts = append(opts, google.WithClientOptions(option.WithEndpoint(e.BaseURL)))
		}
		d, err := e.OptDuration("poll_interval")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, google.WithPollInterval(d))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Transcriber, error) {
		opts := []whisper.Option{whisper.WithFetcher(fetcher)}
		if e.BaseURL != "" {
			opts = append(opts, whisper.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		d, err := e.OptDuration("timeout")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		opts = append(opts, whisper.WithMaxRetries(e.OptInt("max_retries", 0)))
		return whisper.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Transcriber, error) {
		opts := []deepgram.Option{deepgram.WithFetcher(fetcher)}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	return reg
}

// BuildTranscriber creates every configured backend from reg and chains them
// behind circuit breakers, primary first.
func BuildTranscriber(cfg config.TranscriptionConfig, reg *config.Registry, m *observe.Metrics) (*resilience.STTFallback, error) {
	primary, err := reg.CreateSTT(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("app: primary transcriber: %w", err)
	}

	fc := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
			HalfOpenMax:  cfg.CircuitBreaker.HalfOpenMax,
		},
	}
	chain := resilience.NewSTTFallback(primary, cfg.Primary.Name, fc, m)

	for _, e := range cfg.Fallbacks {
		t, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("app: fallback transcriber: %w", err)
		}
		chain.AddFallback(e.Name, t)
	}

	names := make([]string, 0, len(cfg.Fallbacks)+1)
	for _, e := range cfg.Providers() {
		names = append(names, e.Name)
	}
	slog.Info("transcription chain ready", "providers", names)
	return chain, nil
}
