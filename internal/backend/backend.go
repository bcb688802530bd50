package backend

import (
	"context"
	"time"
)

// Command is one routable skill-command entry in the catalog.
type Command struct {
	SkillName         string
	CommandName       string
	Description       string
	Keywords          []string
	InputSchemaDigest string
	ModelTag          string // embedding model that produced the vector
	Embedding         []float32
}

// CollectionStats summarizes one collection for observability.
type CollectionStats struct {
	Collection    string
	CommandCount  int
	EmbeddedCount int
	LastUpdatedAt time.Time
}

// ScanProfile tunes the backend scanner for a result-window size.
type ScanProfile struct {
	Name      string
	BatchSize int // scan buffer allocation unit
	Readahead int // raw-window multiplier fed into fusion
}

var (
	// ScanSmall serves narrow result windows.
	ScanSmall = ScanProfile{Name: "small", BatchSize: 64, Readahead: 2}
	// ScanMedium serves wider windows with larger batch/readahead sizes.
	ScanMedium = ScanProfile{Name: "medium", BatchSize: 256, Readahead: 4}
)

// smallWindowMax is the largest requested limit still served by ScanSmall.
const smallWindowMax = 10

// ScanProfileFor selects the scan profile for a requested window size.
func ScanProfileFor(limit int) ScanProfile {
	if limit <= smallWindowMax {
		return ScanSmall
	}
	return ScanMedium
}

// SearchOptions tune one search call.
type SearchOptions struct {
	Scan     ScanProfile
	Fields   []string // payload projection; empty means all fields
	MinScore float64  // pre-fusion floor on the vector leg

	// Rerank applies weighted score fusion using the weights below;
	// without it both legs contribute equally.
	Rerank        bool
	VectorWeight  float64
	KeywordWeight float64
}

// Searcher is the read contract the router depends on.
type Searcher interface {
	// SearchVector returns raw scored rows by vector similarity.
	SearchVector(ctx context.Context, collection string, vector []float32, limit int, opts SearchOptions) ([]RawRow, error)

	// SearchHybrid fuses vector similarity and keyword relevance.
	SearchHybrid(ctx context.Context, collection string, vector []float32, keywords []string, limit int, opts SearchOptions) ([]RawRow, error)
}

// Catalog is the write contract: command registration and invalidation.
type Catalog interface {
	UpsertCommand(ctx context.Context, collection string, cmd *Command) error
	DeleteCollection(ctx context.Context, collection string) error
	ListCollections(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, collection string) (*CollectionStats, error)
}

// Backend is a full storage implementation.
type Backend interface {
	Searcher
	Catalog
	Close() error
}
