package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rsloan/skillroute/pkg/types"
)

// Default fusion weights applied when reranking is requested without
// explicit weights.
const (
	defaultVectorWeight  = 0.7
	defaultKeywordWeight = 0.3
)

// scoredCommand carries one command through scoring and fusion.
type scoredCommand struct {
	id       int64
	skill    string
	command  string
	digest   string
	vecScore float64
	kwScore  float64
}

// SearchVector returns raw scored rows by vector similarity, wrapped in
// skillroute.search.v1 envelopes.
func (s *SQLiteBackend) SearchVector(ctx context.Context, collection string, vector []float32, limit int, opts SearchOptions) ([]RawRow, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: limit and vector required", types.ErrRequestValidation)
	}
	collID, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectorLeg(ctx, collID, vector, rawWindow(limit, opts), opts.Scan.BatchSize)
	if err != nil {
		return nil, err
	}

	rows := make([]RawRow, 0, len(hits))
	for _, h := range hits {
		if opts.MinScore > 0 && h.vecScore < opts.MinScore {
			continue
		}
		row, err := newRow(SchemaSearchV1, rowPayload{
			SkillName:         h.skill,
			CommandName:       h.command,
			VectorScore:       h.vecScore,
			FinalScore:        clampScore(h.vecScore),
			RankingReason:     "vector",
			InputSchemaDigest: h.digest,
		}, opts.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		rows = append(rows, row)
		if len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// SearchHybrid runs the vector and keyword legs concurrently and fuses
// their scores, wrapping results in skillroute.hybrid.v1 envelopes.
func (s *SQLiteBackend) SearchHybrid(ctx context.Context, collection string, vector []float32, keywords []string, limit int, opts SearchOptions) ([]RawRow, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, fmt.Errorf("%w: limit and vector required", types.ErrRequestValidation)
	}
	collID, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	window := rawWindow(limit, opts)
	var vecHits, kwHits []scoredCommand

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecHits, err = s.vectorLeg(gctx, collID, vector, window, opts.Scan.BatchSize)
		return err
	})
	g.Go(func() error {
		var err error
		kwHits, err = s.keywordLeg(gctx, collID, keywords, window)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuseScores(vecHits, kwHits, opts)

	rows := make([]RawRow, 0, limit)
	for _, h := range fused {
		final := finalScore(h, opts)
		if opts.MinScore > 0 && final < opts.MinScore {
			continue
		}
		row, err := newRow(SchemaHybridV1, rowPayload{
			SkillName:         h.skill,
			CommandName:       h.command,
			VectorScore:       h.vecScore,
			KeywordScore:      h.kwScore,
			FinalScore:        final,
			RankingReason:     rankingReason(h),
			InputSchemaDigest: h.digest,
		}, opts.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		rows = append(rows, row)
		if len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

// rawWindow widens the raw result window per the scan profile before fusion.
func rawWindow(limit int, opts SearchOptions) int {
	readahead := opts.Scan.Readahead
	if readahead <= 0 {
		readahead = ScanSmall.Readahead
	}
	return limit * readahead
}

// vectorLeg dispatches to the SQL-side or Go-side similarity scan.
func (s *SQLiteBackend) vectorLeg(ctx context.Context, collID int64, vector []float32, window, batch int) ([]scoredCommand, error) {
	if VectorExtensionAvailable {
		return s.vectorLegOptimized(ctx, collID, vector, window)
	}
	return s.vectorLegFallback(ctx, collID, vector, window, batch)
}

// vectorLegOptimized computes cosine distance at the database layer via the
// sqlite-vec extension. Distances convert to similarities (1 - distance).
func (s *SQLiteBackend) vectorLegOptimized(ctx context.Context, collID int64, vector []float32, window int) ([]scoredCommand, error) {
	blob := serializeVector(vector)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_name, command_name, input_schema_digest,
			1.0 - vec_distance_cosine(embedding, ?) AS similarity
		FROM commands
		WHERE collection_id = ? AND dims = ?
		ORDER BY similarity DESC
		LIMIT ?
	`, blob, collID, len(vector), window)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]scoredCommand, 0, window)
	for rows.Next() {
		var h scoredCommand
		if err := rows.Scan(&h.id, &h.skill, &h.command, &h.digest, &h.vecScore); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// vectorLegFallback scans embeddings and computes cosine similarity in Go.
// The scan profile's batch size only tunes buffer allocation.
func (s *SQLiteBackend) vectorLegFallback(ctx context.Context, collID int64, vector []float32, window, batch int) ([]scoredCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, skill_name, command_name, input_schema_digest, embedding
		FROM commands
		WHERE collection_id = ? AND dims = ?
	`, collID, len(vector))
	if err != nil {
		return nil, fmt.Errorf("%w: vector scan: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = rows.Close() }()

	if batch <= 0 {
		batch = ScanSmall.BatchSize
	}
	hits := make([]scoredCommand, 0, batch)
	for rows.Next() {
		var h scoredCommand
		var blob []byte
		if err := rows.Scan(&h.id, &h.skill, &h.command, &h.digest, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		candidate := deserializeVector(blob)
		if len(candidate) != len(vector) {
			continue // dimension mismatch, skip
		}
		h.vecScore = cosineSimilarity(vector, candidate)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].vecScore > hits[j].vecScore })
	if len(hits) > window {
		hits = hits[:window]
	}
	return hits, nil
}

// keywordLeg performs BM25 full-text search over command text. An empty or
// fully sanitized-away keyword list is an empty leg, not an error.
func (s *SQLiteBackend) keywordLeg(ctx context.Context, collID int64, keywords []string, window int) ([]scoredCommand, error) {
	match := buildFTSQuery(keywords)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.skill_name, c.command_name, c.input_schema_digest,
			bm25(commands_fts) AS score
		FROM commands_fts
		INNER JOIN commands c ON commands_fts.command_id = c.id
		WHERE commands_fts MATCH ? AND c.collection_id = ?
		ORDER BY score
		LIMIT ?
	`, match, collID, window)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]scoredCommand, 0, window)
	for rows.Next() {
		var h scoredCommand
		var bm25 float64
		if err := rows.Scan(&h.id, &h.skill, &h.command, &h.digest, &bm25); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		// BM25 scores are negative, lower is better; squash into (0, 1].
		h.kwScore = 1.0 / (1.0 + math.Abs(bm25)/50.0)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// fuseScores merges the two legs by command id, keeping each leg's score.
func fuseScores(vecHits, kwHits []scoredCommand, opts SearchOptions) []scoredCommand {
	merged := make(map[int64]scoredCommand, len(vecHits)+len(kwHits))
	for _, h := range vecHits {
		merged[h.id] = h
	}
	for _, h := range kwHits {
		if existing, ok := merged[h.id]; ok {
			existing.kwScore = h.kwScore
			merged[h.id] = existing
		} else {
			merged[h.id] = h
		}
	}

	fused := make([]scoredCommand, 0, len(merged))
	for _, h := range merged {
		fused = append(fused, h)
	}
	sort.Slice(fused, func(i, j int) bool {
		fi, fj := finalScore(fused[i], opts), finalScore(fused[j], opts)
		if fi != fj {
			return fi > fj
		}
		// Stable order for equal scores
		if fused[i].skill != fused[j].skill {
			return fused[i].skill < fused[j].skill
		}
		return fused[i].command < fused[j].command
	})
	return fused
}

// finalScore fuses the two signals. With reranking the caller's weights
// apply; without it both legs contribute equally.
func finalScore(h scoredCommand, opts SearchOptions) float64 {
	wv, wk := 0.5, 0.5
	if opts.Rerank {
		wv, wk = opts.VectorWeight, opts.KeywordWeight
		if wv <= 0 && wk <= 0 {
			wv, wk = defaultVectorWeight, defaultKeywordWeight
		}
	}
	return clampScore(wv*h.vecScore + wk*h.kwScore)
}

func rankingReason(h scoredCommand) string {
	switch {
	case h.vecScore > 0 && h.kwScore > 0:
		return "hybrid"
	case h.kwScore > 0:
		return "keyword"
	default:
		return "vector"
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// FTS5 operator pattern for stripping Boolean operators
var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// buildFTSQuery turns user keywords into a safe FTS5 OR-query. Tokens are
// quoted so FTS syntax in query text cannot change the query shape.
func buildFTSQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = ftsOperatorPattern.ReplaceAllString(kw, " ")
		kw = strings.TrimSpace(strings.NewReplacer(`"`, ` `, `*`, ` `, `(`, ` `, `)`, ` `, `:`, ` `, `^`, ` `).Replace(kw))
		if kw == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf("%q", kw))
	}
	return strings.Join(terms, " OR ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
