package embedder

import (
	"fmt"
	"sync"
	"time"
)

// TransportKind distinguishes the two embedding transports.
type TransportKind string

const (
	TransportRPC  TransportKind = "rpc"
	TransportHTTP TransportKind = "http"
)

// Endpoint addresses one embedding target. For RPC endpoints Address is
// host:port and Path is the request path; for HTTP endpoints Address is the
// configured base URL and Path the batch-embed route.
type Endpoint struct {
	Kind    TransportKind
	Address string
	Path    string
}

// Key returns the stable identity used in the backoff map.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s|%s|%s", e.Kind, e.Address, e.Path)
}

func (e Endpoint) String() string { return e.Key() }

// State holds the process-wide, concurrently-mutated resilience state:
// per-endpoint backoff deadlines and the last endpoint that succeeded.
// It is advisory. A stale read costs at most one wasted probe, so writers
// use last-writer-wins semantics under a single mutex.
type State struct {
	mu           sync.Mutex
	backoffUntil map[string]time.Time
	lastGood     *Endpoint

	// now is swappable in tests.
	now func() time.Time
}

// NewState creates empty resilience state.
func NewState() *State {
	return &State{
		backoffUntil: make(map[string]time.Time),
		now:          time.Now,
	}
}

// InBackoff reports whether the endpoint should be skipped right now.
func (s *State) InBackoff(ep Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.backoffUntil[ep.Key()]
	return ok && s.now().Before(until)
}

// MarkFailure records a failed probe, pushing the endpoint's backoff
// deadline forward. Deadlines only ever move forward; a shorter concurrent
// write never shortens an existing backoff.
func (s *State) MarkFailure(ep Endpoint, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(d)
	if cur, ok := s.backoffUntil[ep.Key()]; ok && cur.After(until) {
		return
	}
	s.backoffUntil[ep.Key()] = until
}

// MarkSuccess remembers the endpoint as the last one that worked. It does
// not clear backoff state: deadlines are cleared only by time passing.
func (s *State) MarkSuccess(ep Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ep
	s.lastGood = &cp
}

// LastGood returns the most recently successful endpoint, if any.
func (s *State) LastGood() (Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastGood == nil {
		return Endpoint{}, false
	}
	return *s.lastGood, true
}

// BackoffUntil returns the current backoff deadline for an endpoint, mainly
// for observability and tests.
func (s *State) BackoffUntil(ep Endpoint) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.backoffUntil[ep.Key()]
	return until, ok
}
