package embedder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// diskRecord is the persisted single-slot embedding cache: the vector of the
// most recently embedded query, readable across process restarts.
type diskRecord struct {
	QueryHash string    `json:"query_hash"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// DiskCache persists one embedding record at a fixed path. It is advisory:
// every failure mode (missing file, torn write, hash mismatch) reads as a
// cache miss, never an error.
type DiskCache struct {
	path string
}

// NewDiskCache creates a disk cache rooted at path. The parent directory is
// created on first write, not here.
func NewDiskCache(path string) *DiskCache {
	return &DiskCache{path: path}
}

// DefaultDiskCachePath returns the conventional location under the user's
// home directory.
func DefaultDiskCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "skillroute", "embedding.json")
	}
	return filepath.Join(home, ".skillroute", "embedding.json")
}

// Get returns the persisted vector when the stored hash matches exactly.
func (c *DiskCache) Get(hash string) ([]float32, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, false
	}
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	if rec.QueryHash != hash || len(rec.Vector) == 0 {
		return nil, false
	}
	return rec.Vector, true
}

// Put overwrites the single record. The write goes through a temp file and
// rename so a concurrent reader never observes a torn record; racing writers
// are harmless, last rename wins.
func (c *DiskCache) Put(hash string, vector []float32) error {
	rec := diskRecord{
		QueryHash: hash,
		Vector:    vector,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".embedding-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, c.path)
}
