package repo

import (
	"context"

	"gitpulse/internal/modkit/repokit"
)

// PG persists cursors in the sensor_cursors table
//
//	CREATE TABLE sensor_cursors (
//	    repo        text PRIMARY KEY,
//	    sha         text NOT NULL,
//	    updated_at  timestamptz NOT NULL DEFAULT now()
//	)
type PG struct {
	db repokit.TxRunner
}

// NewPG returns a postgres backend over the shared TxRunner
func NewPG(db repokit.TxRunner) *PG {
	return &PG{db: db}
}

// Load selects the whole mapping
func (p *PG) Load(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.Query(ctx, `SELECT repo, sha FROM sensor_cursors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var repo, sha string
		if err := rows.Scan(&repo, &sha); err != nil {
			return nil, err
		}
		out[repo] = sha
	}
	return out, rows.Err()
}

// Save upserts every pair inside one transaction
func (p *PG) Save(ctx context.Context, cursors map[string]string) error {
	return p.db.Tx(ctx, func(q repokit.Queryer) error {
		for repo, sha := range cursors {
			_, err := q.Exec(ctx, `
				INSERT INTO sensor_cursors (repo, sha, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (repo) DO UPDATE
				SET sha = EXCLUDED.sha, updated_at = now()
			`, repo, sha)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
