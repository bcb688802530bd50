package backend

import (
	"math"
	"strings"
	"testing"
)

func TestSerializeVectorRoundTrip(t *testing.T) {
	original := []float32{0.1, -0.5, 2.25, 0, 1e-7}
	got := deserializeVector(serializeVector(original))
	if len(got) != len(original) {
		t.Fatalf("length = %d, want %d", len(got), len(original))
	}
	for i := range original {
		if got[i] != original[i] {
			t.Errorf("element %d = %v, want %v", i, got[i], original[i])
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 2}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     string
	}{
		{name: "plain terms", keywords: []string{"deploy", "service"}, want: `"deploy" OR "service"`},
		{name: "operators stripped", keywords: []string{"deploy AND drop"}, want: `"deploy   drop"`},
		{name: "fts syntax neutralized", keywords: []string{`desc:"evil"*`}, want: `"desc  evil"`},
		{name: "empty after sanitize", keywords: []string{`"*"`}, want: ""},
		{name: "no keywords", keywords: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildFTSQuery(tt.keywords)
			if got != tt.want {
				t.Errorf("buildFTSQuery(%v) = %q, want %q", tt.keywords, got, tt.want)
			}
			if strings.ContainsAny(strings.ReplaceAll(got, `"`, ""), `*():^`) {
				t.Errorf("query still contains FTS syntax: %q", got)
			}
		})
	}
}

func TestScanProfileFor(t *testing.T) {
	if got := ScanProfileFor(1); got.Name != ScanSmall.Name {
		t.Errorf("ScanProfileFor(1) = %q, want small", got.Name)
	}
	if got := ScanProfileFor(10); got.Name != ScanSmall.Name {
		t.Errorf("ScanProfileFor(10) = %q, want small", got.Name)
	}
	if got := ScanProfileFor(11); got.Name != ScanMedium.Name {
		t.Errorf("ScanProfileFor(11) = %q, want medium", got.Name)
	}
	if got := ScanProfileFor(100); got.Name != ScanMedium.Name {
		t.Errorf("ScanProfileFor(100) = %q, want medium", got.Name)
	}
}

func TestFinalScoreFusion(t *testing.T) {
	h := scoredCommand{vecScore: 0.8, kwScore: 0.4}

	if got := finalScore(h, SearchOptions{}); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("equal-weight fusion = %v, want 0.6", got)
	}

	reranked := finalScore(h, SearchOptions{Rerank: true, VectorWeight: 0.7, KeywordWeight: 0.3})
	if math.Abs(reranked-(0.7*0.8+0.3*0.4)) > 1e-9 {
		t.Errorf("weighted fusion = %v", reranked)
	}

	// Rerank without explicit weights falls back to the defaults.
	implied := finalScore(h, SearchOptions{Rerank: true})
	if math.Abs(implied-reranked) > 1e-9 {
		t.Errorf("default rerank weights = %v, want %v", implied, reranked)
	}
}
