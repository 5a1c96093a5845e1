package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

// fakeSpeech is a minimal stand-in for the Speech-to-Text REST API. The
// operation completes after pending polls.
type fakeSpeech struct {
	mu       sync.Mutex
	pending  int
	startErr string
	opError  string
	response string
	requests []map[string]any
	polls    int
}

func (f *fakeSpeech) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/speech:longrunningrecognize":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, body)
		if f.startErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":{"code":400,"message":%q,"status":"INVALID_ARGUMENT"}}`, f.startErr)
			return
		}
		fmt.Fprint(w, `{"name":"op-1","done":false}`)

	case r.Method == http.MethodGet && r.URL.Path == "/v1/operations/op-1":
		f.polls++
		if f.polls <= f.pending {
			fmt.Fprint(w, `{"name":"op-1","done":false}`)
			return
		}
		if f.opError != "" {
			fmt.Fprintf(w, `{"name":"op-1","done":true,"error":{"code":3,"message":%q}}`, f.opError)
			return
		}
		fmt.Fprintf(w, `{"name":"op-1","done":true,"response":%s}`, f.response)

	default:
		http.NotFound(w, r)
	}
}

func newTestTranscriber(t *testing.T, f *fakeSpeech, opts ...Option) *Transcriber {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithPollInterval(5 * time.Millisecond),
		WithClientOptions(option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client())),
	}, opts...)
	tr, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

const twoResults = `{
	"@type": "type.googleapis.com/google.cloud.speech.v1.LongRunningRecognizeResponse",
	"results": [
		{"alternatives": [{"transcript": "The cat sat", "confidence": 0.92, "words": [
			{"word": "The", "startTime": "0s", "endTime": "0.400s"},
			{"word": "cat", "startTime": "0.400s", "endTime": "0.900s"},
			{"word": "sat", "startTime": "0.900s", "endTime": "1.300s"}
		]}]},
		{"alternatives": [{"transcript": " on the mat.", "confidence": 0.88, "words": [
			{"word": "on", "startTime": "1.500s", "endTime": "1.700s"},
			{"word": "the", "startTime": "1.700s", "endTime": "1.900s"},
			{"word": "mat.", "startTime": "1.900s", "endTime": "2.450s"}
		]}]}
	]
}`

func TestTranscribe_CloudStorageURI(t *testing.T) {
	f := &fakeSpeech{pending: 2, response: twoResults}
	tr := newTestTranscriber(t, f)

	rec, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://classroom/a.wav", "en-IN"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// The second segment's leading space survives the join.
	if got, want := rec.Transcript(), "The cat sat  on the mat."; got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	words := rec.Words()
	if len(words) != 6 {
		t.Fatalf("len(Words()) = %d, want 6", len(words))
	}
	if got := words[5].EndTime; got != 2450*time.Millisecond {
		t.Errorf("last EndTime = %v, want 2.45s", got)
	}
	if got := rec.Segments[0].Alternatives[0].Confidence; got != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", got)
	}
	if f.polls != 3 {
		t.Errorf("polls = %d, want 3", f.polls)
	}

	if len(f.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(f.requests))
	}
	cfg := f.requests[0]["config"].(map[string]any)
	audio := f.requests[0]["audio"].(map[string]any)
	checks := map[string]string{
		"encoding":                   "LINEAR16",
		"sampleRateHertz":            "16000",
		"languageCode":               "en-IN",
		"enableWordTimeOffsets":      "true",
		"enableAutomaticPunctuation": "true",
		"model":                      "latest_long",
	}
	for k, want := range checks {
		if got := fmt.Sprint(cfg[k]); got != want {
			t.Errorf("config.%s = %s, want %s", k, got, want)
		}
	}
	if audio["uri"] != "gs://classroom/a.wav" {
		t.Errorf("audio.uri = %v, want gs://classroom/a.wav", audio["uri"])
	}
}

type fakeFetcher struct {
	data []byte
	err  error
	uris []string
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	f.uris = append(f.uris, uri)
	return f.data, f.err
}

func TestTranscribe_LocalFileSentInline(t *testing.T) {
	f := &fakeSpeech{response: twoResults}
	fetch := &fakeFetcher{data: []byte("RIFF-fake-audio")}
	tr := newTestTranscriber(t, f, WithFetcher(fetch), WithModel("default"))

	if _, err := tr.Transcribe(context.Background(), stt.DefaultRequest("/srv/audio/a.wav", "en-US")); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(fetch.uris) != 1 || fetch.uris[0] != "/srv/audio/a.wav" {
		t.Errorf("fetched %v, want [/srv/audio/a.wav]", fetch.uris)
	}
	audio := f.requests[0]["audio"].(map[string]any)
	if got, want := audio["content"], base64.StdEncoding.EncodeToString(fetch.data); got != want {
		t.Errorf("audio.content = %v, want %v", got, want)
	}
	if got := f.requests[0]["config"].(map[string]any)["model"]; got != "default" {
		t.Errorf("model = %v, want default", got)
	}
}

func TestTranscribe_FetchError(t *testing.T) {
	errFetch := errors.New("disk gone")
	tr := newTestTranscriber(t, &fakeSpeech{}, WithFetcher(&fakeFetcher{err: errFetch}))

	_, err := tr.Transcribe(context.Background(), stt.DefaultRequest("/a.wav", "en-US"))
	if !errors.Is(err, errFetch) {
		t.Fatalf("err = %v, want fetch error", err)
	}
}

func TestTranscribe_SampleRateErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeSpeech
	}{
		{
			name: "rejected at start",
			f:    &fakeSpeech{startErr: "sample_rate_hertz (16000) must match WAV header rate (44100)."},
		},
		{
			name: "operation failed",
			f:    &fakeSpeech{opError: "Invalid recognition 'config': bad sample rate hertz."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranscriber(t, tt.f)
			_, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.wav", "en-US"))
			if !errors.Is(err, stt.ErrSampleRate) {
				t.Fatalf("err = %v, want ErrSampleRate", err)
			}
		})
	}
}

func TestTranscribe_OtherErrors(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeSpeech
	}{
		{name: "rejected at start", f: &fakeSpeech{startErr: "Requested entity was not found."}},
		{name: "operation failed", f: &fakeSpeech{opError: "internal error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranscriber(t, tt.f)
			_, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.wav", "en-US"))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, stt.ErrSampleRate) {
				t.Errorf("err = %v, must not be ErrSampleRate", err)
			}
		})
	}
}

func TestTranscribe_EmptyResponse(t *testing.T) {
	f := &fakeSpeech{response: `{"@type": "type.googleapis.com/google.cloud.speech.v1.LongRunningRecognizeResponse"}`}
	tr := newTestTranscriber(t, f)

	rec, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/silence.wav", "en-US"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(rec.Segments) != 0 {
		t.Errorf("Segments = %v, want none", rec.Segments)
	}
}

func TestTranscribe_DeadlineWhilePolling(t *testing.T) {
	f := &fakeSpeech{pending: 1 << 30}
	tr := newTestTranscriber(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Transcribe(ctx, stt.DefaultRequest("gs://b/a.wav", "en-US"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestNew_RejectsBadPollInterval(t *testing.T) {
	_, err := New(context.Background(), WithPollInterval(0), WithClientOptions(option.WithoutAuthentication()))
	if err == nil || !strings.Contains(err.Error(), "poll interval") {
		t.Fatalf("err = %v, want poll interval error", err)
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0s", 0},
		{"1.500s", 1500 * time.Millisecond},
		{"12s", 12 * time.Second},
	}
	for _, tt := range tests {
		got, err := parseOffset(tt.in)
		if err != nil {
			t.Fatalf("parseOffset(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseOffset(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := parseOffset("soon"); err == nil {
		t.Error("parseOffset(soon) should fail")
	}
}
