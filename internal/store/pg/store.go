// Package pg is the Postgres implementation of the registry, audit,
// verification-token and stats stores.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/registry"
	"cachepledge.org/internal/stats"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"

	submissionsPledgeKey = "submissions_pledge_id_key"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ registry.Store         = (*Store)(nil)
	_ audit.Store            = (*Store)(nil)
	_ auth.VerificationStore = (*Store)(nil)
	_ stats.Source           = (*Store)(nil)
)

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// assignment is one "column = $n" pair of an update statement.
type assignment struct {
	column string
	value  any
}

// updateStatement renders "update table set a = $1, b = $2 where id = $3".
func updateStatement(table, id string, sets []assignment) (string, []any) {
	setClauses := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", a.column, i+1))
		args = append(args, a.value)
	}
	args = append(args, id)
	return fmt.Sprintf(`update %s set %s where id = $%d`, table, strings.Join(setClauses, ", "), len(args)), args
}

// where accumulates filter predicates and their positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(format string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

// likeEscaper makes user text match literally inside an ilike pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern is the ilike pattern for a case-insensitive substring match.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func (w *where) addContains(column, term string) {
	w.add(column+" ilike $%d", containsPattern(term))
}

func (w *where) addSearch(term string, columns ...string) {
	w.args = append(w.args, containsPattern(term))
	n := len(w.args)
	ors := make([]string, 0, len(columns))
	for _, c := range columns {
		ors = append(ors, fmt.Sprintf("coalesce(%s, '') ilike $%d", c, n))
	}
	w.clauses = append(w.clauses, "("+strings.Join(ors, " or ")+")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

// filterColumns maps registry.Filter fields onto one table alias.
type filterColumns struct {
	user, state, cacheType, username, created string
	search                                    []string
}

var (
	pledgeFilterColumns = filterColumns{
		user: "p.user_id", state: "p.approx_state", cacheType: "p.cache_type",
		username: "p.gc_username", created: "p.created_at",
		search: []string{"p.gc_username", "p.title", "p.approx_suburb", "p.concept_notes"},
	}
	submissionFilterColumns = filterColumns{
		user: "s.user_id", state: "s.state", cacheType: "s.type",
		username: "s.gc_username", created: "s.created_at",
		search: []string{"s.gc_username", "s.gc_code", "s.cache_name", "s.suburb", "s.notes"},
	}
)

func filterWhere(f registry.Filter, cols filterColumns) *where {
	w := &where{}
	if f.UserID != "" {
		w.add(cols.user+" = $%d", f.UserID)
	}
	if f.State != "" {
		w.add(cols.state+" = $%d", string(f.State))
	}
	if f.CacheType != "" {
		w.add(cols.cacheType+" = $%d", string(f.CacheType))
	}
	if f.GCUsername != "" {
		w.addContains(cols.username, f.GCUsername)
	}
	if f.Search != "" {
		w.addSearch(f.Search, cols.search...)
	}
	if f.From != nil {
		w.add(cols.created+" >= $%d", f.From.UTC())
	}
	if f.To != nil {
		w.add(cols.created+" <= $%d", f.To.UTC())
	}
	return w
}
