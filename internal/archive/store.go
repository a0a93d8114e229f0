// Package archive keeps finalized transcript segments in PostgreSQL.
//
// A [Store] is the segment sink of a streaming session: each segment the
// reconciler confirms is written once, keyed by session and position, so a
// replayed write is harmless.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/signbridge/pkg/transcript"
)

// Store is a PostgreSQL-backed transcript archive. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and runs [Migrate].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("archive: ping: %w", err)
	}
	return nil
}

// WriteSegment stores seg. Writing the same session and index twice keeps
// the first row.
func (s *Store) WriteSegment(ctx context.Context, seg transcript.Segment) error {
	const q = `
		INSERT INTO transcript_segments
		    (session_id, segment_index, text, language, finalized_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, segment_index) DO NOTHING`

	at := seg.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.pool.Exec(ctx, q, seg.SessionID, seg.Index, seg.Text, seg.Language, at); err != nil {
		return fmt.Errorf("archive: write segment: %w", err)
	}
	return nil
}

// Segments returns every segment of sessionID in transcript order.
func (s *Store) Segments(ctx context.Context, sessionID string) ([]transcript.Segment, error) {
	const q = `
		SELECT session_id, segment_index, text, language, finalized_at
		FROM   transcript_segments
		WHERE  session_id = $1
		ORDER  BY segment_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: segments: %w", err)
	}
	return collectSegments(rows)
}

// SearchOpts narrows [Store.Search].
type SearchOpts struct {
	SessionID string
	After     time.Time
	Limit     int
}

// Search runs a full-text query over segment text, newest first.
func (s *Store) Search(ctx context.Context, query string, opts SearchOpts) ([]transcript.Segment, error) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)"}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "finalized_at > "+next(opts.After))
	}

	q := "SELECT session_id, segment_index, text, language, finalized_at\n" +
		"FROM   transcript_segments\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY finalized_at DESC, segment_index DESC"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	return collectSegments(rows)
}

func collectSegments(rows pgx.Rows) ([]transcript.Segment, error) {
	segs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Segment, error) {
		var seg transcript.Segment
		err := row.Scan(&seg.SessionID, &seg.Index, &seg.Text, &seg.Language, &seg.At)
		return seg, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if segs == nil {
		segs = []transcript.Segment{}
	}
	return segs, nil
}
