// Package google provides a batch transcriber backed by the Google Cloud
// Speech-to-Text v1 REST API.
//
// Recordings stored in Cloud Storage (gs:// URIs) are passed to the service
// by reference. Any other URI is read through an [audiosrc.Fetcher] and sent
// inline. The recognition runs as a long-running operation which is polled
// until it completes or the context ends.
//
// Usage:
//
//	t, err := google.New(ctx, google.WithModel("latest_long"))
//	rec, err := t.Transcribe(ctx, stt.DefaultRequest("gs://b/a.wav", "en-US"))
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"github.com/MrWong99/fluency/pkg/audiosrc"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultModel        = "latest_long"
)

// Transcriber implements stt.Transcriber against Google Cloud Speech-to-Text.
type Transcriber struct {
	svc          *speech.Service
	model        string
	pollInterval time.Duration
	fetcher      audiosrc.Fetcher
}

var _ stt.Transcriber = (*Transcriber)(nil)

type config struct {
	model        string
	pollInterval time.Duration
	fetcher      audiosrc.Fetcher
	clientOpts   []option.ClientOption
}

// Option is a functional option for [Transcriber].
type Option func(*config)

// WithModel selects the recognition model. Default: "latest_long".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithPollInterval sets how often the long-running operation is polled.
// Default: 2s.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}

// WithAPIKey authenticates with an API key instead of application default
// credentials.
func WithAPIKey(key string) Option {
	return func(c *config) { c.clientOpts = append(c.clientOpts, option.WithAPIKey(key)) }
}

// WithFetcher sets the fetcher used for recordings outside Cloud Storage.
// Default: [audiosrc.NewFetcher].
func WithFetcher(f audiosrc.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithClientOptions passes options through to the underlying API client,
// e.g. a custom endpoint or HTTP client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) { c.clientOpts = append(c.clientOpts, opts...) }
}

// New constructs a [Transcriber]. Without [WithAPIKey] or
// [WithClientOptions] it authenticates with application default credentials.
func New(ctx context.Context, opts ...Option) (*Transcriber, error) {
	cfg := &config{
		model:        defaultModel,
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.pollInterval <= 0 {
		return nil, fmt.Errorf("google: poll interval must be positive, got %s", cfg.pollInterval)
	}
	if cfg.fetcher == nil {
		cfg.fetcher = audiosrc.NewFetcher()
	}

	svc, err := speech.NewService(ctx, cfg.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	return &Transcriber{
		svc:          svc,
		model:        cfg.model,
		pollInterval: cfg.pollInterval,
		fetcher:      cfg.fetcher,
	}, nil
}

// Transcribe implements stt.Transcriber. Errors that mention the sample rate
// wrap [stt.ErrSampleRate].
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Recognition, error) {
	audio, err := t.audio(ctx, req.AudioURI)
	if err != nil {
		return nil, err
	}

	op, err := t.svc.Speech.Longrunningrecognize(&speech.LongRunningRecognizeRequest{
		Audio: audio,
		Config: &speech.RecognitionConfig{
			Encoding:                   string(req.Encoding),
			SampleRateHertz:            int64(req.SampleRateHertz),
			LanguageCode:               req.LanguageCode,
			EnableWordTimeOffsets:      req.EnableWordTimeOffsets,
			EnableAutomaticPunctuation: req.EnableAutomaticPunctuation,
			Model:                      t.model,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("start recognition", err)
	}

	op, err = t.wait(ctx, op)
	if err != nil {
		return nil, err
	}
	if op.Error != nil {
		return nil, statusErr(op.Error)
	}

	var resp speech.LongRunningRecognizeResponse
	if len(op.Response) > 0 {
		if err := json.Unmarshal(op.Response, &resp); err != nil {
			return nil, fmt.Errorf("google: decode recognition response: %w", err)
		}
	}
	return convert(&resp)
}

// audio builds the audio reference for uri.
func (t *Transcriber) audio(ctx context.Context, uri string) (*speech.RecognitionAudio, error) {
	if strings.HasPrefix(uri, "gs://") {
		return &speech.RecognitionAudio{Uri: uri}, nil
	}
	data, err := t.fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("google: fetch audio: %w", err)
	}
	return &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(data)}, nil
}

// wait polls op until it is done.
func (t *Transcriber) wait(ctx context.Context, op *speech.Operation) (*speech.Operation, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("google: wait for operation %s: %w", op.Name, ctx.Err())
		case <-ticker.C:
		}
		next, err := t.svc.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return nil, wrapErr("poll operation "+op.Name, err)
		}
		op = next
	}
	return op, nil
}

// convert maps the API response onto the stt result types.
func convert(resp *speech.LongRunningRecognizeResponse) (*stt.Recognition, error) {
	rec := &stt.Recognition{}
	for _, r := range resp.Results {
		if r == nil {
			continue
		}
		seg := stt.Segment{}
		for _, a := range r.Alternatives {
			if a == nil {
				continue
			}
			alt := stt.Alternative{Transcript: a.Transcript, Confidence: a.Confidence}
			for _, w := range a.Words {
				if w == nil {
					continue
				}
				start, err := parseOffset(w.StartTime)
				if err != nil {
					return nil, err
				}
				end, err := parseOffset(w.EndTime)
				if err != nil {
					return nil, err
				}
				alt.Words = append(alt.Words, stt.WordTiming{Word: w.Word, StartTime: start, EndTime: end})
			}
			seg.Alternatives = append(seg.Alternatives, alt)
		}
		rec.Segments = append(rec.Segments, seg)
	}
	return rec, nil
}

// parseOffset parses a protobuf JSON duration such as "1.500s".
func parseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("google: bad word offset %q: %w", s, err)
	}
	return d, nil
}

func wrapErr(action string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && stt.MentionsSampleRate(gerr.Message) {
		return fmt.Errorf("google: %s: %w: %s", action, stt.ErrSampleRate, gerr.Message)
	}
	return fmt.Errorf("google: %s: %w", action, err)
}

func statusErr(s *speech.Status) error {
	if stt.MentionsSampleRate(s.Message) {
		return fmt.Errorf("google: recognition failed: %w: %s", stt.ErrSampleRate, s.Message)
	}
	return fmt.Errorf("google: recognition failed (code %d): %s", s.Code, s.Message)
}
