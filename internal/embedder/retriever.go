package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rsloan/skillroute/pkg/types"
)

// Config holds retriever configuration. Zero values fall back to the
// package defaults.
type Config struct {
	RPCHost     string
	RPCPorts    []int
	ProbeWindow time.Duration

	HTTPBaseURL string
	HTTPTimeout time.Duration

	CacheSize int
	CachePath string // persisted single-record cache location

	State  *State
	Logger *slog.Logger
}

// Retriever resolves query text to embedding vectors, consulting both cache
// tiers before touching the network. It implements Embedder.
type Retriever struct {
	memory *Cache
	disk   *DiskCache
	state  *State
	rpc    *rpcTransport
	http   *httpTransport // nil when no fallback URL is configured
	group  singleflight.Group
	logger *slog.Logger

	mu        sync.Mutex
	dimension int
}

// New creates a Retriever from explicit configuration.
func New(cfg Config) (*Retriever, error) {
	if cfg.HTTPBaseURL == "" && len(cfg.RPCPorts) == 0 && cfg.RPCHost == "" {
		// Defaults still give us RPC candidates; only an explicitly empty
		// setup is rejected below once transports are resolved.
		cfg.RPCHost = DefaultRPCHost
	}
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CachePath == "" {
		cfg.CachePath = DefaultDiskCachePath()
	}

	r := &Retriever{
		memory: NewCache(cfg.CacheSize),
		disk:   NewDiskCache(cfg.CachePath),
		state:  cfg.State,
		rpc:    newRPCTransport(cfg.RPCHost, cfg.RPCPorts, cfg.ProbeWindow),
		logger: cfg.Logger,
	}
	if cfg.HTTPBaseURL != "" {
		r.http = newHTTPTransport(cfg.HTTPBaseURL, cfg.HTTPTimeout)
	}
	return r, nil
}

// Embed resolves the vector for text. Cache hits cost zero network calls.
// When every transport is exhausted or in backoff it fails with
// types.ErrEmbeddingUnavailable.
func (r *Retriever) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if v, ok := r.memory.Get(hash); ok {
		return v, nil
	}
	if v, ok := r.disk.Get(hash); ok {
		r.memory.Set(hash, v)
		r.recordDimension(len(v))
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}

	// Collapse concurrent embeds of identical text into one transport call.
	// The fetch runs detached from the leader's cancellation so a canceled
	// leader cannot fail the piggybacked callers; the probe window and the
	// HTTP client timeout still bound the work.
	v, err, _ := r.group.Do(hash, func() (interface{}, error) {
		return r.fetch(context.WithoutCancel(ctx), hash, text)
	})
	if err != nil {
		return nil, err
	}

	vector := v.([]float32)
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, nil
}

// fetch runs the transport ladder: RPC probe loop, then HTTP fallback.
func (r *Retriever) fetch(ctx context.Context, hash, text string) ([]float32, error) {
	vector, rpcErr := r.probeRPC(ctx, text)
	if rpcErr == nil {
		r.store(hash, vector)
		return vector, nil
	}

	vector, httpErr := r.fallbackHTTP(ctx, text)
	if httpErr == nil {
		r.store(hash, vector)
		return vector, nil
	}

	return nil, fmt.Errorf("%w: rpc: %v; http: %v", types.ErrEmbeddingUnavailable, rpcErr, httpErr)
}

// probeRPC walks the candidate endpoints under one shared deadline for the
// whole loop. A remembered last-successful endpoint is probed first.
func (r *Retriever) probeRPC(ctx context.Context, text string) ([]float32, error) {
	candidates := r.rpcCandidates()
	if len(candidates) == 0 {
		return nil, ErrNoTransports
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.rpc.probeWindow)
	defer cancel()

	var lastErr error = ErrEndpointBackoff
	probed := 0
	for _, ep := range candidates {
		if probeCtx.Err() != nil {
			break
		}
		if r.state.InBackoff(ep) {
			continue
		}
		probed++

		vector, err := r.rpc.embed(probeCtx, ep, text)
		if err == nil {
			r.state.MarkSuccess(ep)
			return vector, nil
		}
		lastErr = err

		// A deadline-killed call says the window closed, not that this
		// particular endpoint is unhealthy.
		if probeCtx.Err() != nil {
			break
		}
		r.state.MarkFailure(ep, RPCBackoff)
		r.logger.Debug("rpc embed probe failed",
			"endpoint", ep.Key(), "error", err)
	}

	if probed == 0 {
		return nil, fmt.Errorf("all rpc endpoints in backoff: %w", ErrEndpointBackoff)
	}
	return nil, lastErr
}

// rpcCandidates orders the probe list, deduplicating the remembered
// endpoint against the static list.
func (r *Retriever) rpcCandidates() []Endpoint {
	static := r.rpc.candidates()
	last, ok := r.state.LastGood()
	if !ok || last.Kind != TransportRPC {
		return static
	}
	out := make([]Endpoint, 0, len(static)+1)
	out = append(out, last)
	for _, ep := range static {
		if ep.Key() != last.Key() {
			out = append(out, ep)
		}
	}
	return out
}

func (r *Retriever) fallbackHTTP(ctx context.Context, text string) ([]float32, error) {
	if r.http == nil {
		return nil, ErrNoTransports
	}
	ep := r.http.endpoint()
	if r.state.InBackoff(ep) {
		return nil, fmt.Errorf("http fallback in backoff: %w", ErrEndpointBackoff)
	}

	vector, err := r.http.embed(ctx, text)
	if err != nil {
		r.state.MarkFailure(ep, HTTPBackoff)
		r.logger.Warn("http embed fallback failed",
			"endpoint", ep.Key(), "error", err)
		return nil, err
	}
	return vector, nil
}

// store writes both cache tiers after a successful embed. Disk write
// failures are logged, not surfaced: the persisted tier is advisory.
func (r *Retriever) store(hash string, vector []float32) {
	r.memory.Set(hash, vector)
	if err := r.disk.Put(hash, vector); err != nil {
		r.logger.Debug("persisting embedding record failed", "error", err)
	}
	r.recordDimension(len(vector))
}

func (r *Retriever) recordDimension(d int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.dimension = d
	}
}

// Dimension returns the vector dimension observed so far, 0 before the
// first successful embed.
func (r *Retriever) Dimension() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dimension
}

// Close releases idle transport connections.
func (r *Retriever) Close() error {
	r.rpc.client.CloseIdleConnections()
	if r.http != nil {
		r.http.client.CloseIdleConnections()
	}
	return nil
}
