package mcp

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/fluency/internal/fluency"
	"github.com/MrWong99/fluency/internal/mcp/tools"
	"github.com/MrWong99/fluency/internal/mcp/tools/assessment"
	"github.com/MrWong99/fluency/internal/observe"
	sttmock "github.com/MrWong99/fluency/pkg/provider/stt/mock"
)

func echoTool(name string) tools.Tool {
	return tools.Tool{
		Definition: tools.Definition{Name: name, Description: "echo"},
		Handler: func(_ context.Context, args string) (string, error) {
			return args, nil
		},
	}
}

func TestNewServer_RejectsBadTools(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tools []tools.Tool
		want  string
	}{
		{"empty name", []tools.Tool{echoTool("")}, "empty name"},
		{"nil handler", []tools.Tool{{Definition: tools.Definition{Name: "x"}}}, "no handler"},
		{"duplicate", []tools.Tool{echoTool("a"), echoTool("a")}, `duplicate tool "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewServer("test", nil, tt.tools...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestServer_CallRouting(t *testing.T) {
	t.Parallel()
	s, err := NewServer("test", nil, echoTool("b"), echoTool("a"))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.ToolNames(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ToolNames() = %v", got)
	}
	out, err := s.Call(context.Background(), "a", `{"x":1}`)
	if err != nil || out != `{"x":1}` {
		t.Errorf("Call(a) = %q, %v", out, err)
	}
	if _, err := s.Call(context.Background(), "assess reading please", "{}"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestServer_CallHonoursDeclaredMax(t *testing.T) {
	t.Parallel()
	slow := tools.Tool{
		Definition: tools.Definition{Name: "slow"},
		Handler: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		DeclaredMax: 20 * time.Millisecond,
	}
	s, err := NewServer("test", nil, slow)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Call(context.Background(), "slow", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestServer_CallRecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	failing := tools.Tool{
		Definition: tools.Definition{Name: "fail"},
		Handler:    func(context.Context, string) (string, error) { return "", errors.New("nope") },
	}
	s, err := NewServer("test", m, echoTool("ok"), failing)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = s.Call(context.Background(), "ok", "{}")
	_, _ = s.Call(context.Background(), "fail", "{}")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	calls := map[string]int64{}
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "fluency.tool.calls":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					tool, _ := dp.Attributes.Value("tool")
					status, _ := dp.Attributes.Value("status")
					calls[tool.AsString()+"/"+status.AsString()] += dp.Value
				}
			case "fluency.tool.duration":
				for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
					durations += dp.Count
				}
			}
		}
	}
	if calls["ok/ok"] != 1 || calls["fail/error"] != 1 {
		t.Errorf("tool calls = %v", calls)
	}
	if durations != 2 {
		t.Errorf("duration samples = %d, want 2", durations)
	}
}

// connect wires s to an SDK client over in-memory transports.
func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcpsdk.NewInMemoryTransports()
	ss, err := s.Connect(ctx, st)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func textOf(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *TextContent", res.Content[0])
	}
	return tc.Text
}

func TestServer_OverProtocol(t *testing.T) {
	t.Parallel()
	tr := &sttmock.Transcriber{Result: sttmock.Recognition("a x c", 500*time.Millisecond)}
	s, err := NewServer("test", nil, assessment.Tools(fluency.NewAssessor(tr))...)
	if err != nil {
		t.Fatal(err)
	}
	cs := connect(t, s)
	ctx := context.Background()

	var names []string
	for tool, err := range cs.Tools(ctx, nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{assessment.ToolAssess, assessment.ToolCompare}) {
		t.Errorf("tools = %v", names)
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name: assessment.ToolAssess,
		Arguments: map[string]any{
			"original_text":         "a b c",
			"student_audio_gcs_uri": "gs://b/s.wav",
			"language_code":         "en-IN",
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool reported an error: %s", textOf(t, res))
	}
	want := `{"objective_metrics":{"accuracy_percent":66.7,"words_per_minute":120,"correct_words":2,"total_words":3,"audio_duration_seconds":1.50},` +
		`"error_analysis":{"mispronounced":[{"expected":"b","heard":"x"}],"skipped":[],"added":[]},"full_transcript":"a x c"}`
	if got := textOf(t, res); got != want {
		t.Errorf("result = %s\nwant     %s", got, want)
	}
	if tr.Calls[0].Req.AudioURI != "gs://b/s.wav" || tr.Calls[0].Req.LanguageCode != "en-IN" {
		t.Errorf("transcriber request = %+v", tr.Calls[0].Req)
	}
}

func TestServer_ToolErrorOverProtocol(t *testing.T) {
	t.Parallel()
	failing := tools.Tool{
		Definition: tools.Definition{Name: "fail"},
		Handler:    func(context.Context, string) (string, error) { return "", errors.New("store unavailable") },
	}
	s, err := NewServer("test", nil, failing)
	if err != nil {
		t.Fatal(err)
	}
	res, err := connect(t, s).CallTool(context.Background(), &mcpsdk.CallToolParams{Name: "fail"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("expected IsError result")
	}
	if got := textOf(t, res); !strings.Contains(got, "store unavailable") {
		t.Errorf("text = %q", got)
	}
}
