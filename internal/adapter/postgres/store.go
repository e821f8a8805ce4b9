package postgres

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements port/store.Store using PostgreSQL. Individual aggregates
// are split across store_*.go files grouped by sub-interface; all share
// this pool and the scan/null helpers in helpers.go.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// newRowID generates a row identifier for append-only tables whose store
// methods take no ID parameter (events, governance alerts/decisions, tool
// requests, memory approvals, meeting artifacts).
func newRowID(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return prefix + "_" + hex.EncodeToString(buf)
}
