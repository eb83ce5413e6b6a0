package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS verdicts (
	verdict_id        TEXT PRIMARY KEY,
	document_id       TEXT NOT NULL,
	decision          TEXT NOT NULL,
	raw_score         DOUBLE PRECISION NOT NULL,
	final_score       DOUBLE PRECISION NOT NULL,
	multiplier        DOUBLE PRECISION NOT NULL,
	tier              TEXT NOT NULL,
	dominant_category TEXT NOT NULL DEFAULT '',
	sub_scores        JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verdicts_document_idx ON verdicts (document_id, created_at);

CREATE TABLE IF NOT EXISTS quarantine_transitions (
	id            BIGSERIAL PRIMARY KEY,
	document_id   TEXT NOT NULL,
	from_state    TEXT NOT NULL,
	to_state      TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	transitioned  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_document_idx ON quarantine_transitions (document_id, transitioned);
`

// PostgresSink persists the audit trail to Postgres. Verdicts are
// insert-only: a re-scoring pass writes a new row under its own verdict
// id, so prior decisions stay reconstructable.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects, verifies connectivity and ensures the audit
// schema exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

func (s *PostgresSink) EmitVerdict(ctx context.Context, v *detect.Verdict) error {
	subs, err := json.Marshal(v.SubScores)
	if err != nil {
		return fmt.Errorf("encode sub-scores for %s: %w", v.DocumentID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verdicts
			(verdict_id, document_id, decision, raw_score, final_score, multiplier, tier, dominant_category, sub_scores, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		v.VerdictID, v.DocumentID, string(v.Decision),
		v.Composite.Raw, v.Composite.Final, v.Composite.Multiplier,
		string(v.Composite.Tier), string(v.Composite.DominantCategory),
		subs, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict %s: %w", v.VerdictID, err)
	}
	return nil
}

func (s *PostgresSink) EmitTransition(ctx context.Context, documentID string, tr quarantine.Transition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quarantine_transitions (document_id, from_state, to_state, reason, transitioned)
		 VALUES ($1,$2,$3,$4,$5)`,
		documentID, string(tr.From), string(tr.To), tr.Reason, tr.At,
	)
	if err != nil {
		return fmt.Errorf("insert transition for %s: %w", documentID, err)
	}
	return nil
}

func (s *PostgresSink) Close() {
	s.pool.Close()
}
