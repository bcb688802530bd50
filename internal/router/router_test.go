package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/rsloan/skillroute/internal/backend"
	"github.com/rsloan/skillroute/pkg/types"
)

// mockSearcher implements backend.Searcher for testing
type mockSearcher struct {
	calls      atomic.Int32
	searchFunc func(call int, opts backend.SearchOptions) ([]backend.RawRow, error)
}

func (m *mockSearcher) SearchVector(ctx context.Context, collection string, vector []float32, limit int, opts backend.SearchOptions) ([]backend.RawRow, error) {
	return m.SearchHybrid(ctx, collection, vector, nil, limit, opts)
}

func (m *mockSearcher) SearchHybrid(ctx context.Context, collection string, vector []float32, keywords []string, limit int, opts backend.SearchOptions) ([]backend.RawRow, error) {
	call := int(m.calls.Add(1))
	if m.searchFunc != nil {
		return m.searchFunc(call, opts)
	}
	return nil, nil
}

// mockEmbedder implements embedder.Embedder for testing
type mockEmbedder struct {
	calls     atomic.Int32
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) Dimension() int { return 3 }
func (m *mockEmbedder) Close() error   { return nil }

// hybridRow builds a valid hybrid-envelope row for mock backends.
func hybridRow(t *testing.T, skill, command string, final float64) backend.RawRow {
	t.Helper()
	payload := fmt.Sprintf(
		`{"skill_name":%q,"command_name":%q,"vector_score":%v,"keyword_score":%v,"final_score":%v,"ranking_reason":"hybrid"}`,
		skill, command, final, final, final)
	return backend.RawRow{Schema: backend.SchemaHybridV1, Payload: json.RawMessage(payload)}
}

func newTestRouter(t *testing.T, b backend.Searcher, e *mockEmbedder, cfg Config) *Router {
	t.Helper()
	if e == nil {
		e = &mockEmbedder{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(b, e, nil, cfg, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNewValidatesCollaborators(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := New(nil, &mockEmbedder{}, nil, Config{}, logger); !errors.Is(err, types.ErrBindingContract) {
		t.Errorf("nil searcher error = %v, want binding contract", err)
	}
	if _, err := New(&mockSearcher{}, nil, nil, Config{}, logger); !errors.Is(err, types.ErrBindingContract) {
		t.Errorf("nil embedder error = %v, want binding contract", err)
	}
}

func TestRouteHybridHighConfidence(t *testing.T) {
	var sawOpts backend.SearchOptions
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			sawOpts = opts
			return []backend.RawRow{hybridRow(t, "deploy", "rollout", 0.7)}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{})

	got, err := r.RouteHybrid(context.Background(), types.Query{
		Text:       "roll out the new release",
		Collection: "ops",
		Limit:      5,
		Threshold:  0.1,
	})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].Confidence != types.ConfidenceHigh {
		t.Errorf("confidence = %q, want high (score 0.7 over precision high threshold)", got[0].Confidence)
	}
	if b.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", b.calls.Load())
	}
	if !sawOpts.Rerank {
		t.Error("router should request reranked fusion")
	}
	if sawOpts.Scan.Name != backend.ScanSmall.Name {
		t.Errorf("scan profile = %q, want small for limit 5", sawOpts.Scan.Name)
	}
	if sawOpts.MinScore != DefaultProfiles()[DefaultProfileName].LowFloor {
		t.Errorf("backend MinScore = %v, want the resolved profile's floor", sawOpts.MinScore)
	}
}

func TestRouteHybridRetryBudget(t *testing.T) {
	// A backend that never produces rows: the retry loop must make exactly
	// MaxAttempts fresh calls and then settle on an empty result.
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{MaxAttempts: 2})

	got, err := r.RouteHybrid(context.Background(), types.Query{
		Text:       "anything at all",
		Collection: "ops",
	})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("result = %v, want empty non-nil list", got)
	}
	if b.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want exactly 2", b.calls.Load())
	}
}

func TestRouteHybridThresholdLowersAcrossRetries(t *testing.T) {
	// The row scores 0.3: filtered at the initial threshold 0.5, accepted
	// once the second attempt lowers the threshold to 0.3.
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{hybridRow(t, "observe", "tail-logs", 0.3)}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{MaxAttempts: 3, ThresholdStep: 0.2})

	got, err := r.RouteHybrid(context.Background(), types.Query{
		Text:       "show me the logs",
		Collection: "ops",
		Threshold:  0.5,
	})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 after threshold relaxation", len(got))
	}
	if b.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2 (accepted on the second attempt)", b.calls.Load())
	}
	if got[0].Confidence != types.ConfidenceLow {
		t.Errorf("confidence = %q, want low for score 0.3", got[0].Confidence)
	}
}

func TestRouteHybridCacheIdempotence(t *testing.T) {
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{hybridRow(t, "deploy", "rollout", 0.8)}, nil
		},
	}
	e := &mockEmbedder{}
	r := newTestRouter(t, b, e, Config{})

	q := types.Query{
		Text:       "roll out the release",
		Collection: "ops",
		UseCache:   true,
	}

	first, err := r.RouteHybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("first RouteHybrid() error = %v", err)
	}
	second, err := r.RouteHybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("second RouteHybrid() error = %v", err)
	}

	if b.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1 (second call served from cache)", b.calls.Load())
	}
	if e.calls.Load() != 1 {
		t.Errorf("embed calls = %d, want 1", e.calls.Load())
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}

	hits, _ := r.Cache().Stats()
	if hits != 1 {
		t.Errorf("cache hits = %d, want 1", hits)
	}
}

func TestRouteHybridEmbeddingErrorPropagates(t *testing.T) {
	b := &mockSearcher{}
	e := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("%w: rpc: refused; http: none", types.ErrEmbeddingUnavailable)
		},
	}
	r := newTestRouter(t, b, e, Config{})

	_, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops"})
	if !errors.Is(err, types.ErrEmbeddingUnavailable) {
		t.Fatalf("RouteHybrid() error = %v, want ErrEmbeddingUnavailable", err)
	}
	if b.calls.Load() != 0 {
		t.Errorf("backend should never be called without a vector, got %d calls", b.calls.Load())
	}
}

func TestRouteHybridWrapsOpaqueEmbedError(t *testing.T) {
	e := &mockEmbedder{
		embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("connection reset")
		},
	}
	r := newTestRouter(t, &mockSearcher{}, e, Config{})

	_, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops"})
	if !errors.Is(err, types.ErrEmbeddingUnavailable) {
		t.Errorf("opaque embed failure should classify as unavailable, got %v", err)
	}
}

func TestRouteHybridDegradesOnBackendFailure(t *testing.T) {
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return nil, errors.New("disk I/O error")
		},
	}
	r := newTestRouter(t, b, nil, Config{})

	got, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops"})
	if err != nil {
		t.Fatalf("backend failures must not propagate, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("degraded call should return empty, got %v", got)
	}
	if b.calls.Load() != 1 {
		t.Errorf("hard failure should not be retried, calls = %d", b.calls.Load())
	}
}

func TestRouteHybridEmptyCollectionIsBenign(t *testing.T) {
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return nil, fmt.Errorf("%w: ops", types.ErrCollectionNotFound)
		},
	}
	r := newTestRouter(t, b, nil, Config{})

	got, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops"})
	if err != nil {
		t.Fatalf("missing collection must not propagate, got %v", err)
	}
	if len(got) != 0 || b.calls.Load() != 1 {
		t.Errorf("got %v after %d calls, want empty after 1", got, b.calls.Load())
	}
}

func TestRouteHybridRejectsInvalidQueries(t *testing.T) {
	b := &mockSearcher{}
	e := &mockEmbedder{}
	r := newTestRouter(t, b, e, Config{})

	tests := []struct {
		name string
		q    types.Query
	}{
		{name: "empty text", q: types.Query{Text: "   ", Collection: "ops"}},
		{name: "empty collection", q: types.Query{Text: "deploy"}},
		{name: "unknown profile", q: types.Query{Text: "deploy", Collection: "ops", Profile: "bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.RouteHybrid(context.Background(), tt.q)
			if err != nil {
				t.Fatalf("invalid queries degrade, never error: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("got %v, want empty", got)
			}
		})
	}
	if e.calls.Load() != 0 || b.calls.Load() != 0 {
		t.Error("rejected queries must not reach the embedder or backend")
	}
}

func TestRouteHybridDropsInvalidRows(t *testing.T) {
	legacy := backend.RawRow{
		Schema:  backend.SchemaHybridV1,
		Payload: json.RawMessage(`{"skill_name":"old","tool_name":"cmd","final_score":0.9}`),
	}
	futureSchema := backend.RawRow{
		Schema:  "skillroute.hybrid.v2",
		Payload: json.RawMessage(`{"skill_name":"new","command_name":"cmd","final_score":0.9}`),
	}
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{legacy, hybridRow(t, "deploy", "rollout", 0.8), futureSchema}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{})

	got, err := r.RouteHybrid(context.Background(), types.Query{Text: "deploy", Collection: "ops"})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if len(got) != 1 || got[0].SkillName != "deploy" {
		t.Errorf("invalid rows should be dropped, kept %+v", got)
	}
}

func TestRouteHybridSortAndLimit(t *testing.T) {
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{
				hybridRow(t, "a", "low", 0.3),
				hybridRow(t, "b", "high", 0.9),
				hybridRow(t, "c", "mid", 0.6),
			}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{})

	got, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops", Limit: 2})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want limit 2", len(got))
	}
	if got[0].CommandName != "high" || got[1].CommandName != "mid" {
		t.Errorf("order = [%s %s], want [high mid]", got[0].CommandName, got[1].CommandName)
	}
	if got[0].Confidence != types.ConfidenceHigh || got[1].Confidence != types.ConfidenceMedium {
		t.Errorf("labels = [%s %s], want [high medium]", got[0].Confidence, got[1].Confidence)
	}
}

func TestRouteHybridLowFloorFiltersNoise(t *testing.T) {
	// 0.03 sits under the precision profile's low floor: even with a zero
	// threshold and retries it must never surface.
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{hybridRow(t, "noise", "blip", 0.03)}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{MaxAttempts: 2})

	got, err := r.RouteHybrid(context.Background(), types.Query{Text: "x", Collection: "ops"})
	if err != nil {
		t.Fatalf("RouteHybrid() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("sub-floor candidate surfaced: %+v", got)
	}
	if b.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want the full retry budget", b.calls.Load())
	}
}

func TestRouteHybridThresholdMonotonicity(t *testing.T) {
	// Lower thresholds never return fewer candidates for the same query.
	b := &mockSearcher{
		searchFunc: func(call int, opts backend.SearchOptions) ([]backend.RawRow, error) {
			return []backend.RawRow{
				hybridRow(t, "deploy", "rollout", 0.6),
				hybridRow(t, "observe", "tail-logs", 0.3),
			}, nil
		},
	}
	r := newTestRouter(t, b, nil, Config{MaxAttempts: 1})

	q := types.Query{Text: "x", Collection: "ops"}

	q.Threshold = 0.5
	strict, err := r.RouteHybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("RouteHybrid(t=0.5) error = %v", err)
	}
	q.Threshold = 0.2
	loose, err := r.RouteHybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("RouteHybrid(t=0.2) error = %v", err)
	}

	if len(strict) != 1 || len(loose) != 2 {
		t.Errorf("candidates: strict=%d loose=%d, want 1 and 2", len(strict), len(loose))
	}
	if len(loose) < len(strict) {
		t.Error("lowering the threshold must never shrink the result set")
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("Deploy, the DEPLOY release! now")
	want := []string{"deploy", "the", "release", "now"}
	if len(got) != len(want) {
		t.Fatalf("extractKeywords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	long := extractKeywords("a b c d e f g h i j k l")
	if len(long) != maxKeywords {
		t.Errorf("keyword cap = %d, want %d", len(long), maxKeywords)
	}
}
