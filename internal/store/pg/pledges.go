package pg

import (
	"context"
	"database/sql"
	"errors"

	"cachepledge.org/internal/ids"
	"cachepledge.org/internal/registry"
)

const pledgeRecordQuery = `select ` + pledgeColumns + `, ` + userColumns + `, ` + submissionColumns + `
	from pledges p
	left join users u on u.id = p.user_id
	left join submissions s on s.pledge_id = p.id`

func (s *Store) CreatePledge(ctx context.Context, p registry.Pledge) (registry.Pledge, error) {
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.Status == "" {
		p.Status = registry.StatusConcept
	}
	var r pledgeRow
	err := s.db.QueryRowContext(ctx, `
		insert into pledges as p (id, user_id, gc_username, title, cache_type, cache_size, approx_suburb,
			approx_state, concept_notes, images, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning `+pledgeColumns,
		p.ID, nullIfEmpty(p.UserID), p.GCUsername, nullIfEmpty(p.Title), string(p.CacheType), string(p.CacheSize),
		p.ApproxSuburb, string(p.ApproxState), nullIfEmpty(p.ConceptNotes), p.Images, string(p.Status),
		p.CreatedAt, p.UpdatedAt,
	).Scan(r.dest()...)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return registry.Pledge{}, registry.ErrUserNotFound
		}
		return registry.Pledge{}, err
	}
	return *r.pledge(), nil
}

func (s *Store) GetPledge(ctx context.Context, id string) (registry.Pledge, error) {
	var r pledgeRow
	err := s.db.QueryRowContext(ctx, `select `+pledgeColumns+` from pledges p where p.id = $1`, id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Pledge{}, registry.ErrPledgeNotFound
	}
	if err != nil {
		return registry.Pledge{}, err
	}
	return *r.pledge(), nil
}

func (s *Store) GetPledgeRecord(ctx context.Context, id string) (registry.PledgeRecord, error) {
	rec, err := scanPledgeRecord(s.db.QueryRowContext(ctx, pledgeRecordQuery+` where p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return registry.PledgeRecord{}, registry.ErrPledgeNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPledgeRecord(row scanner) (registry.PledgeRecord, error) {
	var (
		p   pledgeRow
		u   userRow
		sub submissionRow
	)
	if err := row.Scan(concat(p.dest(), u.dest(), sub.dest())...); err != nil {
		return registry.PledgeRecord{}, err
	}
	return registry.PledgeRecord{Pledge: *p.pledge(), User: u.user(), Submission: sub.submission()}, nil
}

// UpdatePledge rewrites the editable columns. Owner, status and creation
// time are left alone.
func (s *Store) UpdatePledge(ctx context.Context, p registry.Pledge) (registry.Pledge, error) {
	query, args := updateStatement("pledges as p", p.ID, []assignment{
		{"gc_username", p.GCUsername},
		{"title", nullIfEmpty(p.Title)},
		{"cache_type", string(p.CacheType)},
		{"cache_size", string(p.CacheSize)},
		{"approx_suburb", p.ApproxSuburb},
		{"approx_state", string(p.ApproxState)},
		{"concept_notes", nullIfEmpty(p.ConceptNotes)},
		{"images", p.Images},
		{"updated_at", p.UpdatedAt},
	})
	var r pledgeRow
	err := s.db.QueryRowContext(ctx, query+` returning `+pledgeColumns, args...).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Pledge{}, registry.ErrPledgeNotFound
	}
	if err != nil {
		return registry.Pledge{}, err
	}
	return *r.pledge(), nil
}

// DeletePledge relies on the submissions foreign key cascading.
func (s *Store) DeletePledge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from pledges where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return registry.ErrPledgeNotFound
	}
	return nil
}

func (s *Store) ListPledges(ctx context.Context, f registry.Filter) ([]registry.PledgeRecord, error) {
	w := filterWhere(f, pledgeFilterColumns)
	rows, err := s.db.QueryContext(ctx, pledgeRecordQuery+w.String()+` order by p.created_at desc, p.id desc`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]registry.PledgeRecord, 0)
	for rows.Next() {
		rec, err := scanPledgeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
