// Package archive stores dialogue turns in PostgreSQL so transcripts can
// be reviewed and searched after a visit.
//
// The archive is not the clinical record: field content lives in the form
// sink. Writes go through a circuit breaker, so a failing database costs a
// session a warning per turn and nothing more.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDialogueTurns = `
CREATE TABLE IF NOT EXISTS dialogue_turns (
    id           BIGSERIAL    PRIMARY KEY,
    turn_id      TEXT,
    session_id   TEXT         NOT NULL,
    turn_index   INTEGER      NOT NULL,
    speaker      TEXT         NOT NULL,
    manual       BOOLEAN      NOT NULL DEFAULT false,
    text         TEXT         NOT NULL,
    category     TEXT         NOT NULL DEFAULT '',
    seeded       TEXT         NOT NULL DEFAULT '',
    assignments  JSONB        NOT NULL DEFAULT '[]',
    spoken_at    TIMESTAMPTZ  NOT NULL,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

-- Turn indexes restart when a session is cleared, and session ids such as
-- "feed" are reused across restarts, so rows are keyed on the turn id.
ALTER TABLE dialogue_turns ADD COLUMN IF NOT EXISTS turn_id TEXT;
ALTER TABLE dialogue_turns DROP CONSTRAINT IF EXISTS dialogue_turns_session_id_turn_index_key;

CREATE UNIQUE INDEX IF NOT EXISTS idx_dialogue_turns_turn_id
    ON dialogue_turns (turn_id);

CREATE INDEX IF NOT EXISTS idx_dialogue_turns_session
    ON dialogue_turns (session_id, id);

CREATE INDEX IF NOT EXISTS idx_dialogue_turns_spoken_at
    ON dialogue_turns (spoken_at);

CREATE INDEX IF NOT EXISTS idx_dialogue_turns_fts
    ON dialogue_turns USING GIN (to_tsvector('simple', text));
`

// Migrate creates the archive table and its indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlDialogueTurns); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}
