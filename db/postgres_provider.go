package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const createKVTableSQL = `
CREATE TABLE IF NOT EXISTS chainsync_kv (
	key   BYTEA PRIMARY KEY,
	value BYTEA NOT NULL
);`

// PostgresProvider implements DatabaseProvider on a single key/value table
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider connects with a lib/pq DSN and ensures the table exists
func NewPostgresProvider(dsn string) (IterableProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(createKVTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chainsync_kv table: %w", err)
	}
	return &PostgresProvider{db: db}, nil
}

// Get retrieves a value by key
func (p *PostgresProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(`SELECT value FROM chainsync_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// GetBatch retrieves multiple values with one ANY($1) query
func (p *PostgresProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := p.db.Query(`SELECT key, value FROM chainsync_kv WHERE key = ANY($1)`, pq.ByteaArray(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[string(k)] = v
	}
	return result, rows.Err()
}

// Put upserts a key-value pair
func (p *PostgresProvider) Put(key, value []byte) error {
	_, err := p.db.Exec(upsertKVSQL, key, value)
	return err
}

const upsertKVSQL = `INSERT INTO chainsync_kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

// Delete removes a key-value pair
func (p *PostgresProvider) Delete(key []byte) error {
	_, err := p.db.Exec(`DELETE FROM chainsync_kv WHERE key = $1`, key)
	return err
}

// Has checks if a key exists
func (p *PostgresProvider) Has(key []byte) (bool, error) {
	var exists bool
	err := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM chainsync_kv WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

// Close closes the connection pool
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}

// IteratePrefix scans a key range; bytea compares bytewise so ORDER BY key
// matches the other engines.
func (p *PostgresProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	var (
		rows *sql.Rows
		err  error
	)
	if end := prefixUpperBound(prefix); end != nil {
		rows, err = p.db.Query(`SELECT key, value FROM chainsync_kv WHERE key >= $1 AND key < $2 ORDER BY key`, prefix, end)
	} else {
		rows, err = p.db.Query(`SELECT key, value FROM chainsync_kv WHERE key >= $1 ORDER BY key`, prefix)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if !callback(k, v) {
			return nil
		}
	}
	return rows.Err()
}

// Batch returns a new batch committed in one SQL transaction
func (p *PostgresProvider) Batch() DatabaseBatch {
	return &PostgresBatch{db: p.db}
}

type sqlWrite struct {
	key, value []byte
	del        bool
}

// PostgresBatch implements DatabaseBatch for Postgres
type PostgresBatch struct {
	db     *sql.DB
	writes []sqlWrite
}

func (b *PostgresBatch) Put(key, value []byte) {
	b.writes = append(b.writes, sqlWrite{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *PostgresBatch) Delete(key []byte) {
	b.writes = append(b.writes, sqlWrite{key: append([]byte(nil), key...), del: true})
}

func (b *PostgresBatch) Write() error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	for _, w := range b.writes {
		if w.del {
			_, err = tx.Exec(`DELETE FROM chainsync_kv WHERE key = $1`, w.key)
		} else {
			_, err = tx.Exec(upsertKVSQL, w.key, w.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *PostgresBatch) Reset() {
	b.writes = b.writes[:0]
}

func (b *PostgresBatch) Close() error {
	b.writes = nil
	return nil
}
