package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV stores session keys in the session_kv table (see infra.Migrate).
type PostgresKV struct {
	db        *pgxpool.Pool
	namespace string
}

// NewPostgresKV builds a KV backed by PostgreSQL.
func NewPostgresKV(db *pgxpool.Pool, namespace string) *PostgresKV {
	return &PostgresKV{db: db, namespace: namespace}
}

// Get reads the requested keys.
func (p *PostgresKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := p.db.Query(ctx, `SELECT key, value FROM session_kv WHERE namespace = $1 AND key = ANY($2)`, p.namespace, keys)
	if err != nil {
		return nil, fmt.Errorf("select session keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts all values in a single transaction.
func (p *PostgresKV) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		for k, v := range values {
			if _, err := tx.Exec(ctx, `INSERT INTO session_kv (namespace, key, value, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, p.namespace, k, v); err != nil {
				return fmt.Errorf("upsert %s: %w", k, err)
			}
		}
		return nil
	})
}

// Delete removes keys.
func (p *PostgresKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := p.db.Exec(ctx, `DELETE FROM session_kv WHERE namespace = $1 AND key = ANY($2)`, p.namespace, keys)
	return err
}
