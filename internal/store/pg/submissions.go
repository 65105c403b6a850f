package pg

import (
	"context"
	"database/sql"
	"errors"

	"cachepledge.org/internal/ids"
	"cachepledge.org/internal/registry"
)

const submissionRecordQuery = `select ` + submissionColumns + `, ` + userColumns + `, ` + pledgeColumns + `
	from submissions s
	left join users u on u.id = s.user_id
	left join pledges p on p.id = s.pledge_id`

// Confirm locks the pledge row, inserts the submission with the pledge's
// username and images, and marks the pledge HIDDEN. The unique index on
// pledge_id settles races the row lock does not see.
func (s *Store) Confirm(ctx context.Context, sub registry.Submission) (registry.Submission, error) {
	if sub.ID == "" {
		sub.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.Submission{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		gcUsername string
		images     registry.Images
	)
	err = tx.QueryRowContext(ctx, `select gc_username, images from pledges where id = $1 for update`, sub.PledgeID).
		Scan(&gcUsername, &images)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Submission{}, registry.ErrPledgeNotFound
	}
	if err != nil {
		return registry.Submission{}, err
	}
	var taken bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from submissions where pledge_id = $1)`, sub.PledgeID).Scan(&taken); err != nil {
		return registry.Submission{}, err
	}
	if taken {
		return registry.Submission{}, registry.ErrAlreadySubmitted
	}
	sub.GCUsername = gcUsername
	sub.Images = images

	var r submissionRow
	err = tx.QueryRowContext(ctx, `
		insert into submissions as s (id, pledge_id, user_id, gc_username, gc_code, cache_name, suburb, state,
			difficulty, terrain, type, hidden_date, notes, images, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		returning `+submissionColumns,
		sub.ID, sub.PledgeID, nullIfEmpty(sub.UserID), sub.GCUsername, sub.GCCode, sub.CacheName, sub.Suburb,
		string(sub.State), sub.Difficulty, sub.Terrain, string(sub.Type), sub.HiddenDate, nullIfEmpty(sub.Notes),
		sub.Images, sub.CreatedAt, sub.UpdatedAt,
	).Scan(r.dest()...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch {
			case pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == submissionsPledgeKey:
				return registry.Submission{}, registry.ErrAlreadySubmitted
			case pgErr.Code == pgErrForeignKeyViolation:
				return registry.Submission{}, registry.ErrPledgeNotFound
			}
		}
		return registry.Submission{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update pledges set status = $2, images = null, updated_at = $3 where id = $1
	`, sub.PledgeID, string(registry.StatusHidden), sub.CreatedAt); err != nil {
		return registry.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return registry.Submission{}, err
	}
	return *r.submission(), nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (registry.Submission, error) {
	var r submissionRow
	err := s.db.QueryRowContext(ctx, `select `+submissionColumns+` from submissions s where s.id = $1`, id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Submission{}, registry.ErrSubmissionNotFound
	}
	if err != nil {
		return registry.Submission{}, err
	}
	return *r.submission(), nil
}

func (s *Store) UpdateSubmission(ctx context.Context, sub registry.Submission) (registry.Submission, error) {
	query, args := updateStatement("submissions as s", sub.ID, []assignment{
		{"gc_username", sub.GCUsername},
		{"gc_code", sub.GCCode},
		{"cache_name", sub.CacheName},
		{"suburb", sub.Suburb},
		{"state", string(sub.State)},
		{"difficulty", sub.Difficulty},
		{"terrain", sub.Terrain},
		{"type", string(sub.Type)},
		{"hidden_date", sub.HiddenDate},
		{"notes", nullIfEmpty(sub.Notes)},
		{"images", sub.Images},
		{"updated_at", sub.UpdatedAt},
	})
	var r submissionRow
	err := s.db.QueryRowContext(ctx, query+` returning `+submissionColumns, args...).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Submission{}, registry.ErrSubmissionNotFound
	}
	if err != nil {
		return registry.Submission{}, err
	}
	return *r.submission(), nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var pledgeID string
	err = tx.QueryRowContext(ctx, `delete from submissions where id = $1 returning pledge_id`, id).Scan(&pledgeID)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.ErrSubmissionNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `update pledges set status = $2, updated_at = $3 where id = $1`,
		pledgeID, string(registry.StatusConcept), s.now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListSubmissions(ctx context.Context, f registry.Filter) ([]registry.SubmissionRecord, error) {
	w := filterWhere(f, submissionFilterColumns)
	rows, err := s.db.QueryContext(ctx, submissionRecordQuery+w.String()+` order by s.created_at desc, s.id desc`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]registry.SubmissionRecord, 0)
	for rows.Next() {
		var (
			sub submissionRow
			u   userRow
			p   pledgeRow
		)
		if err := rows.Scan(concat(sub.dest(), u.dest(), p.dest())...); err != nil {
			return nil, err
		}
		out = append(out, registry.SubmissionRecord{Submission: *sub.submission(), User: u.user(), Pledge: p.pledge()})
	}
	return out, rows.Err()
}
