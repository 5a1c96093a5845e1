// Package whisper provides a batch transcriber for Whisper models served
// through the OpenAI audio transcription API, either by OpenAI itself or by
// a compatible local server.
//
// The recording is fetched through an [audiosrc.Fetcher] and uploaded as a
// WAV file. Word offsets come from the verbose_json response format. The
// service resamples whatever it is given, so the declared sample rate is
// checked against the WAV header before upload.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/fluency/pkg/audiosrc"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

const defaultModel = "whisper-1"

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client  oai.Client
	model   string
	fetcher audiosrc.Fetcher
}

var _ stt.Transcriber = (*Transcriber)(nil)

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	fetcher    audiosrc.Fetcher
	httpClient *http.Client
}

// Option is a functional option for [Transcriber].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model. Default: "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the client retries a failed request.
// Default: 0, since failover is handled one level up.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithFetcher sets the fetcher that reads recordings.
// Default: [audiosrc.NewFetcher].
func WithFetcher(f audiosrc.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// WithHTTPClient replaces the HTTP client. It takes precedence over
// [WithTimeout].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a [Transcriber].
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("whisper: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.fetcher == nil {
		cfg.fetcher = audiosrc.NewFetcher()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Transcriber{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		fetcher: cfg.fetcher,
	}, nil
}

// verboseTranscription is the part of the verbose_json response used here.
type verboseTranscription struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

// Transcribe implements stt.Transcriber. The whole response becomes a single
// segment; an empty text yields a Recognition without segments.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Recognition, error) {
	data, err := t.fetcher.Fetch(ctx, req.AudioURI)
	if err != nil {
		return nil, fmt.Errorf("whisper: fetch audio: %w", err)
	}
	if err := checkFormat(data, req); err != nil {
		return nil, err
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(data), "audio.wav", "audio/wav"),
		Model:          oai.AudioModel(t.model),
		ResponseFormat: oai.AudioResponseFormatVerboseJSON,
	}
	if lang := stt.PrimaryLanguage(req.LanguageCode); lang != "" {
		params.Language = oai.String(lang)
	}
	if req.EnableWordTimeOffsets {
		params.TimestampGranularities = []string{"word"}
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) && stt.MentionsSampleRate(apiErr.Message) {
			return nil, fmt.Errorf("whisper: transcribe: %w: %s", stt.ErrSampleRate, apiErr.Message)
		}
		return nil, fmt.Errorf("whisper: transcribe: %w", err)
	}

	var v verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("whisper: decode transcription: %w", err)
		}
	} else {
		v.Text = resp.Text
	}
	return convert(v), nil
}

// checkFormat rejects WAV recordings whose header contradicts the request.
// Non-WAV data is passed through and left to the service.
func checkFormat(data []byte, req stt.Request) error {
	info, err := audiosrc.ParseWAVHeader(data)
	if err != nil || req.SampleRateHertz <= 0 {
		return nil
	}
	if int(info.SampleRate) != req.SampleRateHertz {
		return fmt.Errorf("whisper: %w: header says %d Hz, request says %d Hz",
			stt.ErrSampleRate, info.SampleRate, req.SampleRateHertz)
	}
	return nil
}

func convert(v verboseTranscription) *stt.Recognition {
	rec := &stt.Recognition{}
	if v.Text == "" && len(v.Words) == 0 {
		return rec
	}
	alt := stt.Alternative{Transcript: v.Text}
	for _, w := range v.Words {
		alt.Words = append(alt.Words, stt.WordTiming{
			Word:      w.Word,
			StartTime: seconds(w.Start),
			EndTime:   seconds(w.End),
		})
	}
	rec.Segments = []stt.Segment{{Alternatives: []stt.Alternative{alt}}}
	return rec
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
