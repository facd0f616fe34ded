package canon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/dbpool"
)

const defaultQueryTimeout = 10 * time.Second

// Store is a Canonicalizer backed by the curie_synonyms table. Lookups are
// cached in memory until Invalidate is called.
type Store struct {
	pool *dbpool.Pool
	log  *logrus.Logger

	mu        sync.RWMutex
	canonical map[string]*Info // nil value caches a miss
	synonyms  map[string][]string
}

// NewStore creates a Postgres-backed canonicalizer.
func NewStore(pool *dbpool.Pool, log *logrus.Logger) *Store {
	s := &Store{pool: pool, log: log}
	s.Invalidate()

	return s
}

// Invalidate drops all cached lookups.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canonical = make(map[string]*Info)
	s.synonyms = make(map[string][]string)
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// CanonicalCuries implements Canonicalizer.
func (s *Store) CanonicalCuries(ctx context.Context, ids []string) (map[string]Info, error) {
	out := make(map[string]Info, len(ids))

	var missing []string

	s.mu.RLock()
	for _, id := range ids {
		info, ok := s.canonical[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case info != nil:
			out[id] = *info
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT curie, preferred_curie, preferred_name, preferred_category
		 FROM curie_synonyms WHERE curie = ANY($1)`, missing)
	if err != nil {
		return nil, fmt.Errorf("querying canonical curies: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*Info, len(missing))

	for rows.Next() {
		var id string

		var info Info
		if err := rows.Scan(&id, &info.PreferredCurie, &info.PreferredName, &info.PreferredCategory); err != nil {
			return nil, fmt.Errorf("scanning canonical curie: %w", err)
		}

		found[id] = &info
		out[id] = info
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating canonical curies: %w", err)
	}

	s.mu.Lock()
	for _, id := range missing {
		s.canonical[id] = found[id]
	}
	s.mu.Unlock()

	return out, nil
}

// EquivalentCuries implements Canonicalizer.
func (s *Store) EquivalentCuries(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))

	var missing []string

	s.mu.RLock()
	for _, id := range ids {
		if syn, ok := s.synonyms[id]; ok {
			out[id] = syn
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT s.curie, o.curie
		 FROM curie_synonyms s
		 JOIN curie_synonyms o ON o.preferred_curie = s.preferred_curie
		 WHERE s.curie = ANY($1)
		 ORDER BY s.curie, (o.curie = o.preferred_curie) DESC, o.curie`, missing)
	if err != nil {
		return nil, fmt.Errorf("querying equivalent curies: %w", err)
	}
	defer rows.Close()

	found := make(map[string][]string, len(missing))

	for rows.Next() {
		var id, synonym string
		if err := rows.Scan(&id, &synonym); err != nil {
			return nil, fmt.Errorf("scanning equivalent curie: %w", err)
		}

		found[id] = append(found[id], synonym)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating equivalent curies: %w", err)
	}

	s.mu.Lock()
	for _, id := range missing {
		syn, ok := found[id]
		if !ok {
			syn = []string{id}
		}

		s.synonyms[id] = syn
		out[id] = syn
	}
	s.mu.Unlock()

	return out, nil
}

// Import upserts synonym groups in one transaction and returns the number of rows written.
func (s *Store) Import(ctx context.Context, groups []Group) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for i := range groups {
		g := &groups[i]
		for _, id := range g.Members() {
			batch.Queue(
				`INSERT INTO curie_synonyms (curie, preferred_curie, preferred_name, preferred_category)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (curie) DO UPDATE SET
				   preferred_curie = EXCLUDED.preferred_curie,
				   preferred_name = EXCLUDED.preferred_name,
				   preferred_category = EXCLUDED.preferred_category,
				   updated_at = now()`,
				id, g.Preferred, g.Name, g.Category)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upserting synonyms: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing synonyms: %w", err)
	}

	s.log.WithField("rows", batch.Len()).Info("canon.import")
	s.Invalidate()

	return batch.Len(), nil
}
