package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("batch not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT,
		item_count INTEGER NOT NULL,
		inputs TEXT NOT NULL,
		outputs TEXT NOT NULL,
		raw_response TEXT,
		report TEXT,
		mismatch BOOLEAN DEFAULT FALSE,
		cached BOOLEAN DEFAULT FALSE,
		elapsed_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- response_cache maps a normalized prompt to the provider's raw answer
	CREATE TABLE IF NOT EXISTS response_cache (
		key TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT,
		response TEXT NOT NULL,
		usage_count INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Batch is one completed translation run.
type Batch struct {
	ID        string
	Provider  string
	Model     string
	Inputs    []string
	Outputs   []string
	Raw       string
	Report    string
	Mismatch  bool
	Cached    bool
	ElapsedMs int64
	CreatedAt time.Time
}

// SaveBatch records a run. An empty ID is replaced by a fresh UUID.
func (s *Store) SaveBatch(ctx context.Context, b *Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	inputs, err := json.Marshal(nonNil(b.Inputs))
	if err != nil {
		return fmt.Errorf("failed to encode inputs: %w", err)
	}
	outputs, err := json.Marshal(nonNil(b.Outputs))
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, provider, model, item_count, inputs, outputs, raw_response, report, mismatch, cached, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Provider, b.Model, len(b.Inputs), string(inputs), string(outputs),
		b.Raw, b.Report, b.Mismatch, b.Cached, b.ElapsedMs, b.CreatedAt)
	return err
}

const batchColumns = `id, provider, model, inputs, outputs, raw_response, report, mismatch, cached, elapsed_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var (
		b               Batch
		model, raw, rep sql.NullString
		elapsed         sql.NullInt64
		inputs, outputs string
	)
	if err := row.Scan(&b.ID, &b.Provider, &model, &inputs, &outputs, &raw, &rep, &b.Mismatch, &b.Cached, &elapsed, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Model, b.Raw, b.Report, b.ElapsedMs = model.String, raw.String, rep.String, elapsed.Int64

	if err := json.Unmarshal([]byte(inputs), &b.Inputs); err != nil {
		return nil, fmt.Errorf("batch %s: corrupt inputs: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &b.Outputs); err != nil {
		return nil, fmt.Errorf("batch %s: corrupt outputs: %w", b.ID, err)
	}
	return &b, nil
}

// GetBatch looks a batch up by full ID or by a unique ID prefix.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		id, id+"%", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case found[0].ID == id || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("ambiguous batch id prefix: %s", id)
	}
}

// ListBatches returns the most recent batches first. limit <= 0 means all.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *b)
	}
	return results, rows.Err()
}

// DeleteBatch permanently removes a batch by ID.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ClearHistory removes all batches.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearCache removes all cached provider responses.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetCachedResponse returns the raw provider answer previously stored for
// the same provider, model and prompt.
func (s *Store) GetCachedResponse(ctx context.Context, provider, model, prompt string) (string, bool, error) {
	key := cacheKey(provider, model, prompt)

	var response string
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM response_cache WHERE key = ?`, key).Scan(&response)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE response_cache SET usage_count = usage_count + 1, last_used = ? WHERE key = ?`,
		time.Now(), key)

	return response, true, err
}

func (s *Store) SaveResponse(ctx context.Context, provider, model, prompt, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache (key, provider, model, response, usage_count, created_at, last_used) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		cacheKey(provider, model, prompt), provider, model, response, time.Now(), time.Now())
	return err
}

// Stats summarises history and cache usage.
type Stats struct {
	Batches       int
	Items         int
	Mismatched    int
	AvgElapsedMs  int64
	LastElapsedMs int64
	LastRunAt     time.Time
	CacheEntries  int
	CacheHits     int
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(item_count), 0),
			COALESCE(SUM(CASE WHEN mismatch THEN 1 ELSE 0 END), 0),
			AVG(elapsed_ms)
		FROM batches`).Scan(
		&stats.Batches,
		&stats.Items,
		&stats.Mismatched,
		&avg,
	)
	if err != nil {
		return nil, err
	}
	stats.AvgElapsedMs = int64(avg.Float64)

	if stats.Batches > 0 {
		var elapsed sql.NullInt64
		err = s.db.QueryRowContext(ctx,
			`SELECT elapsed_ms, created_at FROM batches ORDER BY created_at DESC LIMIT 1`).Scan(&elapsed, &stats.LastRunAt)
		if err != nil {
			return nil, err
		}
		stats.LastElapsedMs = elapsed.Int64
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(usage_count), 0) FROM response_cache`).Scan(&stats.CacheEntries, &stats.CacheHits)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

func cacheKey(provider, model, prompt string) string {
	sum := sha256.Sum256([]byte(provider + "\x00" + model + "\x00" + normalizeText(prompt)))
	return hex.EncodeToString(sum[:])
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
