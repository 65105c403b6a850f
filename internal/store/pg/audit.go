package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"cachepledge.org/internal/audit"
)

func (s *Store) AppendAuditLog(ctx context.Context, e audit.Entry) error {
	var after any
	if len(e.After) > 0 {
		after = string(e.After)
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, actor_email, action, target_id, target_kind, before, after, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.ActorID, nullIfEmpty(e.ActorEmail), e.Action, e.TargetID, e.TargetKind, string(e.Before), after, e.CreatedAt)
	return err
}

func (s *Store) QueryAuditLogs(ctx context.Context, f audit.Filter, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > audit.MaxResults {
		limit = audit.MaxResults
	}
	w := &where{}
	if f.Action != "" {
		w.add("action = $%d", f.Action)
	}
	if f.TargetKind != "" {
		w.add("target_kind = $%d", f.TargetKind)
	}
	if f.ActorEmail != "" {
		w.addContains("coalesce(actor_email, '')", f.ActorEmail)
	}
	if f.From != nil {
		w.add("created_at >= $%d", f.From.UTC())
	}
	if f.To != nil {
		w.add("created_at <= $%d", f.To.UTC())
	}
	args := append(w.args, limit)
	query := fmt.Sprintf(`
		select id, actor_id, actor_email, action, target_id, target_kind, before, after, created_at
		from audit_logs%s
		order by created_at desc, id desc
		limit $%d`, w.String(), len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e             audit.Entry
			email         sql.NullString
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &email, &e.Action, &e.TargetID, &e.TargetKind, &before, &after, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorEmail = email.String
		e.Before = json.RawMessage(before)
		if len(after) > 0 {
			e.After = json.RawMessage(after)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
