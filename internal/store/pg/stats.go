package pg

import (
	"context"
	"database/sql"

	"cachepledge.org/internal/registry"
	"cachepledge.org/internal/stats"
)

// Facts reads both tables inside one repeatable-read snapshot.
func (s *Store) Facts(ctx context.Context) (stats.Facts, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return stats.Facts{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var out stats.Facts
	rows, err := tx.QueryContext(ctx, `select user_id, gc_username, approx_state, cache_type, cache_size from pledges`)
	if err != nil {
		return stats.Facts{}, err
	}
	for rows.Next() {
		var (
			userID                          sql.NullString
			username, state, typ, cacheSize string
		)
		if err := rows.Scan(&userID, &username, &state, &typ, &cacheSize); err != nil {
			rows.Close()
			return stats.Facts{}, err
		}
		out.Pledges = append(out.Pledges, stats.PledgeFact{
			UserID: userID.String, GCUsername: username,
			State: registry.State(state), Type: registry.CacheType(typ), Size: registry.CacheSize(cacheSize),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats.Facts{}, err
	}

	rows, err = tx.QueryContext(ctx, `select user_id, gc_username, state, type from submissions`)
	if err != nil {
		return stats.Facts{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID               sql.NullString
			username, state, typ string
		)
		if err := rows.Scan(&userID, &username, &state, &typ); err != nil {
			return stats.Facts{}, err
		}
		out.Submissions = append(out.Submissions, stats.SubmissionFact{
			UserID: userID.String, GCUsername: username,
			State: registry.State(state), Type: registry.CacheType(typ),
		})
	}
	if err := rows.Err(); err != nil {
		return stats.Facts{}, err
	}
	return out, tx.Commit()
}
