package indexed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements Storage against a single append-at-index table,
// grounded on internal/store/postgres.go's pgxpool wiring and
// ensureSchema-on-connect idiom.
type PostgresStorage struct {
	pool     *pgxpool.Pool
	replicas int
}

func NewPostgresStorage(ctx context.Context, dsn string, replicas int) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if replicas <= 0 {
		replicas = 1
	}
	s := &PostgresStorage{pool: pool, replicas: replicas}
	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS indexed_entries (
			namespace TEXT NOT NULL,
			stream_key TEXT NOT NULL,
			idx BIGINT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (namespace, stream_key, idx)
		)`)
	return err
}

func (s *PostgresStorage) Append(ctx context.Context, ns Namespace, key string, idx uint64, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO indexed_entries (namespace, stream_key, idx, value) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (namespace, stream_key, idx) DO UPDATE SET value = EXCLUDED.value`,
		ns, key, idx, value)
	return err
}

func (s *PostgresStorage) Read(ctx context.Context, ns Namespace, key string, from, to uint64) ([][]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT value FROM indexed_entries WHERE namespace=$1 AND stream_key=$2 AND idx BETWEEN $3 AND $4 ORDER BY idx`,
		ns, key, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) scalarUint(ctx context.Context, query string, args ...any) (uint64, error) {
	var v *int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return uint64(*v), nil
}

func (s *PostgresStorage) FirstIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	return s.scalarUint(ctx, `SELECT MIN(idx) FROM indexed_entries WHERE namespace=$1 AND stream_key=$2`, ns, key)
}

func (s *PostgresStorage) LastIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	return s.scalarUint(ctx, `SELECT MAX(idx) FROM indexed_entries WHERE namespace=$1 AND stream_key=$2`, ns, key)
}

func (s *PostgresStorage) Length(ctx context.Context, ns Namespace, key string) (uint64, error) {
	return s.scalarUint(ctx, `SELECT COUNT(*) FROM indexed_entries WHERE namespace=$1 AND stream_key=$2`, ns, key)
}

func (s *PostgresStorage) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	n, err := s.Length(ctx, ns, key)
	return n > 0, err
}

func (s *PostgresStorage) Delete(ctx context.Context, ns Namespace, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM indexed_entries WHERE namespace=$1 AND stream_key=$2`, ns, key)
	return err
}

func (s *PostgresStorage) DropPrefix(ctx context.Context, ns Namespace, key string, upTo uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM indexed_entries WHERE namespace=$1 AND stream_key=$2 AND idx<=$3`, ns, key, upTo)
	return err
}

func (s *PostgresStorage) Scan(ctx context.Context, ns Namespace, pattern string, cursor uint64, count int) (uint64, []string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT stream_key FROM indexed_entries WHERE namespace=$1 AND stream_key LIKE $2 ORDER BY stream_key OFFSET $3 LIMIT $4`,
		ns, "%"+pattern+"%", cursor, count)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return 0, nil, err
		}
		keys = append(keys, k)
	}
	next := cursor + uint64(len(keys))
	if len(keys) < count {
		next = 0
	}
	return next, keys, rows.Err()
}

func (s *PostgresStorage) WaitForReplicas(ctx context.Context, ns Namespace, key string, n int, timeout time.Duration) (int, error) {
	clamped := n
	if clamped > s.replicas {
		clamped = s.replicas
	}
	// Postgres streaming replication lag isn't queryable through pgx's pool
	// API directly; a single-primary deployment reports its own replicas
	// as caught-up immediately, reporting the clamped count as observed the
	// same way the in-memory backend does.
	return clamped, nil
}

func (s *PostgresStorage) NumberOfReplicas() int { return s.replicas }

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

var _ Storage = (*PostgresStorage)(nil)
