// Package admin provides moderator-only operations that sit outside the
// regular emote pool surface: raw SQL access for debugging and aggregate
// pool statistics.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/postgres"
)

// ErrNoDatabase is returned when raw queries are requested against a
// deployment without a SQL database.
var ErrNoDatabase = errors.New("raw queries require a postgres repository")

// QueryResult holds the outcome of a raw SQL query.
type QueryResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Statistics is an aggregate snapshot of the pool.
type Statistics struct {
	Counts   emotepool.EmoteCounts `json:"counts"`
	Capacity emotepool.Capacity    `json:"capacity"`
}

// Service exposes moderator operations.
type Service struct {
	pool emotepool.Service
	db   postgres.DB // nil when the repository is in-memory
}

// New creates an admin service. db may be nil for memory deployments, in
// which case ExecuteQuery returns ErrNoDatabase.
func New(pool emotepool.Service, db postgres.DB) *Service {
	return &Service{pool: pool, db: db}
}

// ExecuteQuery runs an arbitrary SQL statement and collects every row.
// Callers are responsible for restricting access to moderators.
func (s *Service) ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}

	start := time.Now()
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	result := &QueryResult{Columns: columns, Rows: [][]interface{}{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// Statistics reports emote counts alongside the pool's total capacity.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	counts, err := s.pool.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		Counts:   *counts,
		Capacity: s.pool.Capacity(),
	}, nil
}
