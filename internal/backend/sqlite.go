package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rsloan/skillroute/pkg/types"
)

// SQLiteBackend implements Backend using SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteBackend opens (creating if needed) the catalog database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// collectionID resolves a collection name. Missing collections surface the
// benign types.ErrCollectionNotFound.
func (s *SQLiteBackend) collectionID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty collection name", types.ErrRequestValidation)
	}
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM collections WHERE name = ?", name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	return id, nil
}

// ensureCollection creates the collection row if missing and returns its id.
func (s *SQLiteBackend) ensureCollection(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty collection name", types.ErrRequestValidation)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	return s.collectionID(ctx, name)
}

// UpsertCommand registers or refreshes one skill command, keeping the FTS
// index in sync.
func (s *SQLiteBackend) UpsertCommand(ctx context.Context, collection string, cmd *Command) error {
	if cmd == nil || cmd.SkillName == "" || cmd.CommandName == "" {
		return fmt.Errorf("%w: command requires skill and command names", types.ErrRequestValidation)
	}

	collID, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	keywords := strings.Join(cmd.Keywords, " ")
	res, err := tx.ExecContext(ctx, `
		INSERT INTO commands (
			collection_id, skill_name, command_name, description, keywords,
			input_schema_digest, model_tag, embedding, dims, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, skill_name, command_name) DO UPDATE SET
			description = excluded.description,
			keywords = excluded.keywords,
			input_schema_digest = excluded.input_schema_digest,
			model_tag = excluded.model_tag,
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = excluded.updated_at
	`, collID, cmd.SkillName, cmd.CommandName, cmd.Description, keywords,
		cmd.InputSchemaDigest, cmd.ModelTag, serializeVector(cmd.Embedding),
		len(cmd.Embedding), now, now)
	if err != nil {
		return fmt.Errorf("%w: upsert command: %v", types.ErrBackendRuntime, err)
	}

	var cmdID int64
	if cmdID, err = res.LastInsertId(); err != nil || cmdID == 0 {
		// Upsert of an existing row may not report an insert id.
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM commands
			WHERE collection_id = ? AND skill_name = ? AND command_name = ?
		`, collID, cmd.SkillName, cmd.CommandName).Scan(&cmdID)
		if err != nil {
			return fmt.Errorf("%w: resolve command id: %v", types.ErrBackendRuntime, err)
		}
	}

	// Rebuild the FTS row
	if _, err := tx.ExecContext(ctx, "DELETE FROM commands_fts WHERE command_id = ?", cmdID); err != nil {
		return fmt.Errorf("%w: refresh fts: %v", types.ErrBackendRuntime, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commands_fts (skill_name, command_name, description, keywords, command_id)
		VALUES (?, ?, ?, ?, ?)
	`, cmd.SkillName, cmd.CommandName, cmd.Description, keywords, cmdID); err != nil {
		return fmt.Errorf("%w: index fts: %v", types.ErrBackendRuntime, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	return nil
}

// DeleteCollection drops a collection and all of its commands.
func (s *SQLiteBackend) DeleteCollection(ctx context.Context, collection string) error {
	collID, err := s.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM commands_fts WHERE command_id IN
			(SELECT id FROM commands WHERE collection_id = ?)
	`, collID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM commands WHERE collection_id = ?", collID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", collID); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	return nil
}

// ListCollections returns all known collection names.
func (s *SQLiteBackend) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Stats summarizes one collection.
func (s *SQLiteBackend) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	collID, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{Collection: collection}
	// MAX(updated_at) is a computed column, so the driver returns it as raw
	// text rather than a converted time.Time; scan and parse explicitly.
	var lastUpdated any
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN dims > 0 THEN 1 ELSE 0 END), 0),
			MAX(updated_at)
		FROM commands WHERE collection_id = ?
	`, collID).Scan(&stats.CommandCount, &stats.EmbeddedCount, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBackendRuntime, err)
	}
	stats.LastUpdatedAt = parseTimestamp(lastUpdated)
	return stats, nil
}

// sqliteTimeLayouts are the text encodings SQLite drivers use for stored
// time.Time values, most specific first.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp converts a scanned SQLite timestamp value. Direct column
// reads arrive as time.Time; computed columns arrive as text. Unparseable
// values read as the zero time.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTimeText(t)
	case []byte:
		return parseTimeText(string(t))
	default:
		return time.Time{}
	}
}

func parseTimeText(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
