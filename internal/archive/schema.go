package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscriptSegments = `
CREATE TABLE IF NOT EXISTS transcript_segments (
    id            BIGSERIAL    PRIMARY KEY,
    session_id    TEXT         NOT NULL,
    segment_index INTEGER      NOT NULL,
    text          TEXT         NOT NULL,
    language      TEXT         NOT NULL DEFAULT '',
    finalized_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (session_id, segment_index)
);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_finalized_at
    ON transcript_segments (finalized_at);

CREATE INDEX IF NOT EXISTS idx_transcript_segments_fts
    ON transcript_segments USING GIN (to_tsvector('simple', text));
`

// Migrate creates the archive table and its indexes if they do not exist.
// It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptSegments); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}
