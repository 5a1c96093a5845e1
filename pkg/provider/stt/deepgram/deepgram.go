// Package deepgram provides a batch transcriber on top of the Deepgram
// streaming WebSocket API.
//
// The recording is fetched, its WAV header checked against the request, and
// the raw samples streamed to Deepgram as linear16. Every final result the
// service emits becomes one segment. The session ends when Deepgram answers
// the CloseStream message with its Metadata event.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/fluency/pkg/audiosrc"
	"github.com/MrWong99/fluency/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"

	// chunkSize is the number of audio bytes per binary frame.
	chunkSize = 8192
)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) {
		t.endpoint = endpoint
	}
}

// WithFetcher sets the fetcher that reads recordings.
// Default: [audiosrc.NewFetcher].
func WithFetcher(f audiosrc.Fetcher) Option {
	return func(t *Transcriber) {
		t.fetcher = f
	}
}

// Transcriber implements stt.Transcriber backed by Deepgram.
type Transcriber struct {
	apiKey   string
	model    string
	endpoint string
	fetcher  audiosrc.Fetcher
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(t)
	}
	if t.fetcher == nil {
		t.fetcher = audiosrc.NewFetcher()
	}
	return t, nil
}

// Transcribe implements stt.Transcriber. Only 16-bit PCM WAV recordings are
// accepted.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Recognition, error) {
	data, err := t.fetcher.Fetch(ctx, req.AudioURI)
	if err != nil {
		return nil, fmt.Errorf("deepgram: fetch audio: %w", err)
	}
	info, pcm, err := audiosrc.SplitWAV(data)
	if err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}
	if info.AudioFormat != 1 || info.BitsPerSample != 16 {
		return nil, fmt.Errorf("deepgram: unsupported WAV format %d with %d bits per sample", info.AudioFormat, info.BitsPerSample)
	}
	if req.SampleRateHertz > 0 && int(info.SampleRate) != req.SampleRateHertz {
		return nil, fmt.Errorf("deepgram: %w: header says %d Hz, request says %d Hz",
			stt.ErrSampleRate, info.SampleRate, req.SampleRateHertz)
	}

	wsURL, err := t.buildURL(req, info)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	writeErr := make(chan error, 1)
	go func() { writeErr <- send(ctx, conn, pcm) }()

	rec, err := receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := <-writeErr; err != nil {
		return nil, fmt.Errorf("deepgram: send audio: %w", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return rec, nil
}

// buildURL constructs the streaming endpoint URL for the given request.
func (t *Transcriber) buildURL(req stt.Request, info audiosrc.WAVInfo) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(int(info.SampleRate)))
	q.Set("channels", strconv.Itoa(int(info.Channels)))
	q.Set("punctuate", strconv.FormatBool(req.EnableAutomaticPunctuation))
	if req.LanguageCode != "" {
		q.Set("language", req.LanguageCode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// send streams pcm in binary frames and then asks Deepgram to flush.
func send(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for len(pcm) > 0 {
		n := min(chunkSize, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[:n]); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
}

// response is the JSON structure of a Deepgram streaming event.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word  string  `json:"word"`
				Start float64 `json:"start"`
				End   float64 `json:"end"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

// receive collects final results until the Metadata event or a normal close.
func receive(ctx context.Context, conn *websocket.Conn) (*stt.Recognition, error) {
	rec := &stt.Recognition{}
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return rec, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		switch resp.Type {
		case "Metadata":
			return rec, nil
		case "Error":
			if stt.MentionsSampleRate(resp.Description) {
				return nil, fmt.Errorf("deepgram: %w: %s", stt.ErrSampleRate, resp.Description)
			}
			return nil, fmt.Errorf("deepgram: %s", resp.Description)
		case "Results":
			if seg, ok := segment(resp); ok {
				rec.Segments = append(rec.Segments, seg)
			}
		}
	}
}

// segment converts a final Results event. Interim results and finals without
// any text are skipped.
func segment(resp response) (stt.Segment, bool) {
	if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
		return stt.Segment{}, false
	}
	var seg stt.Segment
	for _, a := range resp.Channel.Alternatives {
		alt := stt.Alternative{Transcript: a.Transcript, Confidence: a.Confidence}
		for _, w := range a.Words {
			alt.Words = append(alt.Words, stt.WordTiming{
				Word:      w.Word,
				StartTime: time.Duration(w.Start * float64(time.Second)),
				EndTime:   time.Duration(w.End * float64(time.Second)),
			})
		}
		seg.Alternatives = append(seg.Alternatives, alt)
	}
	if seg.Alternatives[0].Transcript == "" {
		return stt.Segment{}, false
	}
	return seg, true
}
