package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"cachepledge.org/internal/ids"
	"cachepledge.org/internal/registry"
)

func (s *Store) FindOrCreateUser(ctx context.Context, email string) (registry.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return registry.User{}, registry.ErrInvalidInput
	}
	var r userRow
	// the no-op update makes returning yield the existing row on conflict
	err := s.db.QueryRowContext(ctx, `
		insert into users as u (id, email, created_at)
		values ($1, $2, $3)
		on conflict (email) do update set email = excluded.email
		returning `+userColumns,
		ids.New(), email, s.now().UTC()).Scan(r.dest()...)
	if err != nil {
		return registry.User{}, err
	}
	return *r.user(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (registry.User, error) {
	return s.getUser(ctx, `u.id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (registry.User, error) {
	return s.getUser(ctx, `u.email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getUser(ctx context.Context, cond string, arg string) (registry.User, error) {
	var r userRow
	err := s.db.QueryRowContext(ctx, `select `+userColumns+` from users u where `+cond, arg).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.User{}, registry.ErrUserNotFound
	}
	if err != nil {
		return registry.User{}, err
	}
	return *r.user(), nil
}

func (s *Store) SetUsername(ctx context.Context, userID, gcUsername string) (registry.User, error) {
	var r userRow
	err := s.db.QueryRowContext(ctx, `
		update users as u set gc_username = $2 where u.id = $1
		returning `+userColumns, userID, nullIfEmpty(gcUsername)).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.User{}, registry.ErrUserNotFound
	}
	if err != nil {
		return registry.User{}, err
	}
	return *r.user(), nil
}
