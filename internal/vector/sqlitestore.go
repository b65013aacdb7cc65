package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"memoryengine/internal/apperrors"
)

// SQLiteStore is a durable Adapter backed by SQLite, grounded on
// liliang-cn/sqvect's SQLiteStore: the WAL-mode connection string, the
// embeddings table shape, and float32-vector-as-BLOB encoding all follow
// that file. The HNSW index and dimension auto-adapter it layers on top
// are not carried over — this store does a linear scan per search, which
// the spec's reference-implementation requirement does not rule out.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	metric    Metric
	mu        sync.Mutex
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed vector store
// at path, with WAL journaling and a normal sync mode for write
// throughput, matching the teacher's connection string.
func OpenSQLiteStore(path string, dimension int, metric Metric) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000")
	if err != nil {
		return nil, apperrors.Wrap(err, "vector", "open_sqlite_store", "open database")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, dimension: dimension, metric: metric}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS vectors (
		org_id TEXT NOT NULL,
		id TEXT NOT NULL,
		vector BLOB NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (org_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_org ON vectors(org_id);
	`)
	if err != nil {
		return apperrors.Wrap(err, "vector", "create_tables", "create vectors table")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[4*i] = byte(bits)
		buf[4*i+1] = byte(bits >> 8)
		buf[4*i+2] = byte(bits >> 16)
		buf[4*i+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := uint32(buf[4*i]) | uint32(buf[4*i+1])<<8 | uint32(buf[4*i+2])<<16 | uint32(buf[4*i+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func (s *SQLiteStore) AddVectors(ctx context.Context, items []Data) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "vector", "add_vectors", "begin transaction")
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if err := ValidateDimension(item.Vector, s.dimension); err != nil {
			return nil, err
		}
		metaJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return nil, apperrors.Internal("vector", "add_vectors", "marshal metadata", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vectors (org_id, id, vector, metadata) VALUES (?, ?, ?, ?)
			ON CONFLICT(org_id, id) DO UPDATE SET vector = excluded.vector, metadata = excluded.metadata
		`, item.OrgID, item.ID, encodeVector(item.Vector), string(metaJSON))
		if err != nil {
			return nil, apperrors.Wrap(err, "vector", "add_vectors", "insert vector")
		}
		ids = append(ids, item.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, "vector", "add_vectors", "commit transaction")
	}
	return ids, nil
}

func (s *SQLiteStore) UpdateVectors(ctx context.Context, items []Data) error {
	_, err := s.AddVectors(ctx, items)
	return err
}

func (s *SQLiteStore) DeleteVectors(ctx context.Context, orgID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "vector", "delete_vectors", "begin transaction")
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE org_id = ? AND id = ?`, orgID, id); err != nil {
			return apperrors.Wrap(err, "vector", "delete_vectors", "delete vector")
		}
	}
	return apperrors.Wrap(tx.Commit(), "vector", "delete_vectors", "commit transaction")
}

func (s *SQLiteStore) GetVector(ctx context.Context, orgID, id string) (Data, error) {
	row := s.db.QueryRowContext(ctx, `SELECT vector, metadata FROM vectors WHERE org_id = ? AND id = ?`, orgID, id)
	var vecBytes []byte
	var metaJSON string
	if err := row.Scan(&vecBytes, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return Data{}, apperrors.NotFound("vector", "get_vector", "vector not found").WithTenant(orgID)
		}
		return Data{}, apperrors.Wrap(err, "vector", "get_vector", "scan row")
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
		return Data{}, apperrors.Internal("vector", "get_vector", "unmarshal metadata", err)
	}
	return Data{ID: id, OrgID: orgID, Vector: decodeVector(vecBytes), Metadata: metadata}, nil
}

func (s *SQLiteStore) CountVectors(ctx context.Context, orgID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE org_id = ?`, orgID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "vector", "count_vectors", "count rows")
	}
	return count, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, orgID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE org_id = ?`, orgID)
	return apperrors.Wrap(err, "vector", "clear", "delete rows")
}

// SearchVectors scans every row for orgID (acceptable at reference scale;
// a production deployment would add an ANN index) and returns the top k
// scored by the store's configured metric.
func (s *SQLiteStore) SearchVectors(ctx context.Context, orgID string, query []float32, k int, threshold *float64) ([]SearchResult, error) {
	if err := ValidateDimension(query, s.dimension); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, metadata FROM vectors WHERE org_id = ?`, orgID)
	if err != nil {
		return nil, apperrors.Wrap(err, "vector", "search_vectors", "query rows")
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var id, metaJSON string
		var vecBytes []byte
		if err := rows.Scan(&id, &vecBytes, &metaJSON); err != nil {
			return nil, apperrors.Wrap(err, "vector", "search_vectors", "scan row")
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
			return nil, apperrors.Internal("vector", "search_vectors", "unmarshal metadata", err)
		}
		vec := decodeVector(vecBytes)
		similarity, distance := Similarity(s.metric, query, vec)
		if threshold != nil && similarity < *threshold {
			continue
		}
		results = append(results, SearchResult{
			Data:       Data{ID: id, OrgID: orgID, Vector: vec, Metadata: metadata},
			Similarity: similarity,
			Distance:   distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "vector", "search_vectors", "iterate rows")
	}

	sortResults(results)
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}
