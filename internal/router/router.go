package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rsloan/skillroute/internal/backend"
	"github.com/rsloan/skillroute/internal/embedder"
	"github.com/rsloan/skillroute/pkg/types"
)

// Routing defaults.
const (
	DefaultLimit         = 10
	MaxLimit             = 100
	DefaultMaxAttempts   = 3
	DefaultThresholdStep = 0.2
	maxKeywords          = 8
)

// Config tunes the router.
type Config struct {
	MaxAttempts   int     // adaptive-threshold retry budget
	ThresholdStep float64 // threshold reduction per retry
	CacheCapacity int
	CacheTTL      time.Duration // 0 selects the default

	// Fusion weights forwarded to the backend with the rerank flag.
	VectorWeight  float64
	KeywordWeight float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ThresholdStep <= 0 {
		c.ThresholdStep = DefaultThresholdStep
	}
	if c.VectorWeight <= 0 && c.KeywordWeight <= 0 {
		c.VectorWeight, c.KeywordWeight = 0.7, 0.3
	}
	return c
}

// Router orchestrates cache lookup, embedding retrieval, backend search,
// adaptive threshold retry, confidence labeling, and cache population.
type Router struct {
	backend  backend.Searcher
	embedder embedder.Embedder
	cache    *ResultCache
	profiles ProfileSet
	cfg      Config
	logger   *slog.Logger
}

// New wires a router. Both collaborators are required; a nil one is a
// binding-contract violation surfaced at construction, not at call time.
func New(b backend.Searcher, e embedder.Embedder, profiles ProfileSet, cfg Config, logger *slog.Logger) (*Router, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: searcher", types.ErrBindingContract)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: embedder", types.ErrBindingContract)
	}
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Router{
		backend:  b,
		embedder: e,
		cache:    NewResultCache(cfg.CacheCapacity, cfg.CacheTTL),
		profiles: profiles,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Cache exposes the result cache for invalidation and observability.
func (r *Router) Cache() *ResultCache {
	return r.cache
}

// RouteHybrid resolves a query to an ordered candidate list, highest final
// score first. Backend-side failures degrade to an empty list; the only
// error it returns is types.ErrEmbeddingUnavailable.
func (r *Router) RouteHybrid(ctx context.Context, q types.Query) ([]types.RouteCandidate, error) {
	q = normalizeQuery(q)

	if err := validateQuery(q); err != nil {
		r.degrade(err, q, "rejecting query")
		return []types.RouteCandidate{}, nil
	}

	profile, err := r.profiles.Get(q.Profile)
	if err != nil {
		r.degrade(err, q, "rejecting query")
		return []types.RouteCandidate{}, nil
	}

	key := Key(q.Collection, q.Text, q.Limit, q.Threshold, q.Profile)
	if q.UseCache {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		// The one failure mode that must not be swallowed: a substituted
		// zero vector would rank everything wrong with a straight face.
		if !errors.Is(err, types.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}

	results := r.searchWithRetry(ctx, q, vector, profile)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	if q.UseCache {
		r.cache.Set(key, results)
	}
	return results, nil
}

// searchWithRetry runs the adaptive-threshold loop: each attempt is a
// fresh backend call, and the threshold only ever moves down.
func (r *Router) searchWithRetry(ctx context.Context, q types.Query, vector []float32, profile Profile) []types.RouteCandidate {
	opts := backend.SearchOptions{
		Scan: backend.ScanProfileFor(q.Limit),
		// The profile's absolute floor rides along so the backend can
		// pre-filter rows that could never surface.
		MinScore:      profile.LowFloor,
		Rerank:        true,
		VectorWeight:  r.cfg.VectorWeight,
		KeywordWeight: r.cfg.KeywordWeight,
	}
	keywords := extractKeywords(q.Text)

	threshold := q.Threshold
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		rows, err := r.backend.SearchHybrid(ctx, q.Collection, vector, keywords, q.Limit, opts)
		if err != nil {
			if errors.Is(err, types.ErrCollectionNotFound) {
				// Benign: the collection simply has no data yet.
				r.logger.Debug("routing against empty collection",
					"collection", q.Collection)
				return []types.RouteCandidate{}
			}
			if !isClassified(err) {
				err = fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
			}
			r.degrade(err, q, "backend search failed")
			return []types.RouteCandidate{}
		}

		candidates := r.collectCandidates(rows, profile, threshold)
		if len(candidates) > 0 {
			return candidates
		}

		threshold -= r.cfg.ThresholdStep
		if threshold < 0 {
			threshold = 0
		}
	}
	return []types.RouteCandidate{}
}

// collectCandidates parses raw rows, labels them, and applies the current
// threshold. Rows failing payload validation are dropped and logged, never
// aborting the whole call.
func (r *Router) collectCandidates(rows []backend.RawRow, profile Profile, threshold float64) []types.RouteCandidate {
	out := make([]types.RouteCandidate, 0, len(rows))
	for _, row := range rows {
		c, err := backend.ParseCandidate(row)
		if err != nil {
			r.logger.Warn("dropping invalid backend row",
				"error_code", types.ErrorCode(err),
				"schema", row.Schema,
				"cause", err)
			continue
		}
		if c.FinalScore < threshold || c.FinalScore < profile.LowFloor {
			continue
		}
		c.Confidence = profile.Label(c.FinalScore)
		out = append(out, c)
	}
	return out
}

// degrade logs a classified failure at the router boundary.
func (r *Router) degrade(err error, q types.Query, msg string) {
	r.logger.Warn(msg,
		"error_code", types.ErrorCode(err),
		"collection", q.Collection,
		"cause", err)
}

func normalizeQuery(q types.Query) types.Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Threshold < 0 {
		q.Threshold = 0
	}
	if q.Threshold > 1 {
		q.Threshold = 1
	}
	if q.Profile == "" {
		q.Profile = DefaultProfileName
	}
	return q
}

func validateQuery(q types.Query) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: empty query text", types.ErrRequestValidation)
	}
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection name", types.ErrRequestValidation)
	}
	return nil
}

func isClassified(err error) bool {
	return types.ErrorCode(err) != "unknown"
}

// extractKeywords lowercases and dedupes query terms for the keyword leg.
func extractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'`)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}
