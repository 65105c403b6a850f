package pg

import (
	"context"
	"database/sql"
	"errors"

	"cachepledge.org/internal/auth"
)

func (s *Store) CreateVerificationToken(ctx context.Context, vt auth.VerificationToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into verification_tokens (identifier, token, expires) values ($1, $2, $3)
	`, vt.Identifier, vt.Token, vt.Expires.UTC())
	return err
}

// UseVerificationToken deletes the row in the same statement that reads it,
// so a token can be consumed once.
func (s *Store) UseVerificationToken(ctx context.Context, identifier, token string) (*auth.VerificationToken, error) {
	var vt auth.VerificationToken
	err := s.db.QueryRowContext(ctx, `
		delete from verification_tokens where identifier = $1 and token = $2
		returning identifier, token, expires
	`, identifier, token).Scan(&vt.Identifier, &vt.Token, &vt.Expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vt, nil
}
