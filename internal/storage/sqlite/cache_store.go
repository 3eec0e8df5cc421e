package sqlite

import (
	"database/sql"
	"fmt"

	"contextanalyzer/internal/cache"
)

var _ cache.Store = (*CacheStore)(nil)

// CacheStore keeps one namespace of the cache_entries table. Unlike the
// JSON file store it writes only the changed row.
type CacheStore struct {
	db        *sql.DB
	namespace string
}

func NewCacheStore(db *sql.DB, namespace string) *CacheStore {
	return &CacheStore{db: db, namespace: namespace}
}

func (s *CacheStore) Load() (map[string]cache.Entry, error) {
	rows, err := s.db.Query(`SELECT key, data, created_at, ttl_days, hits FROM cache_entries WHERE namespace = ?`,
		s.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("load cache entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]cache.Entry)
	for rows.Next() {
		var key, data string
		var e cache.Entry
		if err := rows.Scan(&key, &data, &e.CreatedAt, &e.TTLDays, &e.Hits); err != nil {
			return nil, err
		}
		e.Data = []byte(data)
		out[key] = e
	}
	return out, rows.Err()
}

func (s *CacheStore) Put(key string, e cache.Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (namespace, key, data, created_at, ttl_days, hits)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   data = excluded.data, created_at = excluded.created_at,
		   ttl_days = excluded.ttl_days, hits = excluded.hits`,
		s.namespace, key, string(e.Data), e.CreatedAt.UTC(), e.TTLDays, e.Hits,
	)
	return err
}

func (s *CacheStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, k := range keys {
		if _, err := stmt.Exec(s.namespace, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}
