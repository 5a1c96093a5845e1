package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/fluency/pkg/provider/stt"
)

type fakeFetcher struct{ data []byte }

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, error) { return f.data, nil }

func wav(rate uint32) []byte {
	b := []byte("RIFF\x00\x00\x00\x00WAVEfmt ")
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = binary.LittleEndian.AppendUint32(b, rate*2)
	b = binary.LittleEndian.AppendUint16(b, 2)
	b = binary.LittleEndian.AppendUint16(b, 16)
	b = append(b, "data\x00\x00\x00\x00"...)
	return b
}

type captured struct {
	mu     sync.Mutex
	fields map[string][]string
	file   []byte
	calls  int
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.calls++
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		c.fields = r.MultipartForm.Value
		if f, _, err := r.FormFile("file"); err == nil {
			c.file, _ = io.ReadAll(f)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newTestTranscriber(t *testing.T, srv *httptest.Server, data []byte) *Transcriber {
	t.Helper()
	tr, err := New("sk-test",
		WithBaseURL(srv.URL+"/"),
		WithHTTPClient(srv.Client()),
		WithFetcher(fakeFetcher{data: data}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

const verbose = `{
	"task": "transcribe",
	"language": "english",
	"duration": 3.1,
	"text": "The cat sat.",
	"words": [
		{"word": "The", "start": 0.0, "end": 0.42},
		{"word": "cat", "start": 0.42, "end": 1.0},
		{"word": "sat", "start": 1.2, "end": 2.75}
	]
}`

func TestTranscribe_VerboseJSON(t *testing.T) {
	audio := wav(16000)
	srv, c := newServer(t, http.StatusOK, verbose)
	tr := newTestTranscriber(t, srv, audio)

	rec, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.wav", "en-IN"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := rec.Transcript(); got != "The cat sat." {
		t.Errorf("Transcript() = %q, want %q", got, "The cat sat.")
	}
	words := rec.Words()
	if len(words) != 3 {
		t.Fatalf("len(Words()) = %d, want 3", len(words))
	}
	if got := words[2].EndTime; got != 2750*time.Millisecond {
		t.Errorf("last EndTime = %v, want 2.75s", got)
	}

	first := func(k string) string {
		if v := c.fields[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	if got := first("model"); got != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", got)
	}
	if got := first("language"); got != "en" {
		t.Errorf("language = %q, want en", got)
	}
	if got := first("response_format"); got != "verbose_json" {
		t.Errorf("response_format = %q, want verbose_json", got)
	}
	var granular bool
	for k, v := range c.fields {
		if strings.HasPrefix(k, "timestamp_granularities") && len(v) > 0 && v[0] == "word" {
			granular = true
		}
	}
	if !granular {
		t.Errorf("timestamp_granularities=word missing from form %v", c.fields)
	}
	if string(c.file) != string(audio) {
		t.Error("uploaded file differs from fetched audio")
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"text": "", "words": []}`)
	tr := newTestTranscriber(t, srv, wav(16000))

	rec, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.wav", "en-US"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(rec.Segments) != 0 {
		t.Errorf("Segments = %v, want none", rec.Segments)
	}
}

func TestTranscribe_SampleRateCheckedLocally(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, verbose)
	tr := newTestTranscriber(t, srv, wav(44100))

	_, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.wav", "en-US"))
	if !errors.Is(err, stt.ErrSampleRate) {
		t.Fatalf("err = %v, want ErrSampleRate", err)
	}
	if c.calls != 0 {
		t.Errorf("server called %d times, want 0", c.calls)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		sampleRate bool
	}{
		{name: "sample rate", message: "Unsupported sample rate", sampleRate: true},
		{name: "other", message: "Invalid file format."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := fmt.Sprintf(`{"error":{"message":%q,"type":"invalid_request_error","param":"file","code":null}}`, tt.message)
			srv, _ := newServer(t, http.StatusBadRequest, body)
			tr := newTestTranscriber(t, srv, []byte("not a wav"))

			_, err := tr.Transcribe(context.Background(), stt.DefaultRequest("gs://b/a.mp3", "en-US"))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, stt.ErrSampleRate); got != tt.sampleRate {
				t.Errorf("errors.Is(err, ErrSampleRate) = %v, want %v (err: %v)", got, tt.sampleRate, err)
			}
		})
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
