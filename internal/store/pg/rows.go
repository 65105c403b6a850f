package pg

import (
	"database/sql"

	"cachepledge.org/internal/registry"
)

const (
	userColumns   = `u.id, u.email, u.gc_username, u.created_at`
	pledgeColumns = `p.id, p.user_id, p.gc_username, p.title, p.cache_type, p.cache_size, p.approx_suburb,
		p.approx_state, p.concept_notes, p.images, p.status, p.created_at, p.updated_at`
	submissionColumns = `s.id, s.pledge_id, s.user_id, s.gc_username, s.gc_code, s.cache_name, s.suburb,
		s.state, s.difficulty, s.terrain, s.type, s.hidden_date, s.notes, s.images, s.created_at, s.updated_at`
)

// Every column is scanned as nullable so the same row types work on either
// side of a left join.

type userRow struct {
	id, email, gcUsername sql.NullString
	createdAt             sql.NullTime
}

func (r *userRow) dest() []any {
	return []any{&r.id, &r.email, &r.gcUsername, &r.createdAt}
}

func (r *userRow) user() *registry.User {
	if !r.id.Valid {
		return nil
	}
	return &registry.User{ID: r.id.String, Email: r.email.String, GCUsername: r.gcUsername.String, CreatedAt: r.createdAt.Time}
}

type pledgeRow struct {
	id, userID, gcUsername, title, cacheType, cacheSize sql.NullString
	suburb, state, notes, status                        sql.NullString
	images                                              registry.Images
	createdAt, updatedAt                                sql.NullTime
}

func (r *pledgeRow) dest() []any {
	return []any{&r.id, &r.userID, &r.gcUsername, &r.title, &r.cacheType, &r.cacheSize, &r.suburb,
		&r.state, &r.notes, &r.images, &r.status, &r.createdAt, &r.updatedAt}
}

func (r *pledgeRow) pledge() *registry.Pledge {
	if !r.id.Valid {
		return nil
	}
	return &registry.Pledge{
		ID:           r.id.String,
		UserID:       r.userID.String,
		GCUsername:   r.gcUsername.String,
		Title:        r.title.String,
		CacheType:    registry.CacheType(r.cacheType.String),
		CacheSize:    registry.CacheSize(r.cacheSize.String),
		ApproxSuburb: r.suburb.String,
		ApproxState:  registry.State(r.state.String),
		ConceptNotes: r.notes.String,
		Images:       r.images,
		Status:       registry.PledgeStatus(r.status.String),
		CreatedAt:    r.createdAt.Time,
		UpdatedAt:    r.updatedAt.Time,
	}
}

type submissionRow struct {
	id, pledgeID, userID, gcUsername, gcCode, cacheName sql.NullString
	suburb, state, cacheType, notes                     sql.NullString
	difficulty, terrain                                 sql.NullFloat64
	images                                              registry.Images
	hiddenDate, createdAt, updatedAt                    sql.NullTime
}

func (r *submissionRow) dest() []any {
	return []any{&r.id, &r.pledgeID, &r.userID, &r.gcUsername, &r.gcCode, &r.cacheName, &r.suburb,
		&r.state, &r.difficulty, &r.terrain, &r.cacheType, &r.hiddenDate, &r.notes, &r.images, &r.createdAt, &r.updatedAt}
}

func (r *submissionRow) submission() *registry.Submission {
	if !r.id.Valid {
		return nil
	}
	return &registry.Submission{
		ID:         r.id.String,
		PledgeID:   r.pledgeID.String,
		UserID:     r.userID.String,
		GCUsername: r.gcUsername.String,
		GCCode:     r.gcCode.String,
		CacheName:  r.cacheName.String,
		Suburb:     r.suburb.String,
		State:      registry.State(r.state.String),
		Difficulty: r.difficulty.Float64,
		Terrain:    r.terrain.Float64,
		Type:       registry.CacheType(r.cacheType.String),
		HiddenDate: r.hiddenDate.Time,
		Notes:      r.notes.String,
		Images:     r.images,
		CreatedAt:  r.createdAt.Time,
		UpdatedAt:  r.updatedAt.Time,
	}
}

func concat(parts ...[]any) []any {
	var out []any
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
