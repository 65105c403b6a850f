package pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/registry"
)

var (
	userCols   = []string{"id", "email", "gc_username", "created_at"}
	pledgeCols = []string{"id", "user_id", "gc_username", "title", "cache_type", "cache_size", "approx_suburb",
		"approx_state", "concept_notes", "images", "status", "created_at", "updated_at"}
	submissionCols = []string{"id", "pledge_id", "user_id", "gc_username", "gc_code", "cache_name", "suburb",
		"state", "difficulty", "terrain", "type", "hidden_date", "notes", "images", "created_at", "updated_at"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := New(db)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func nulls(n int) []driver.Value { return make([]driver.Value, n) }

func pledgeValues(id string, ts time.Time) []driver.Value {
	return []driver.Value{id, "u1", "Hider", "Creek walk", "TRADITIONAL", "SMALL", "Newtown", "NSW", nil,
		[]byte(`[{"url":"https://img/1.jpg","key":"k1"}]`), "CONCEPT", ts, ts}
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindOrCreateUserNormalizesEmail(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	mock.ExpectQuery("insert into users as u .* on conflict \\(email\\) do update").
		WithArgs(sqlmock.AnyArg(), "hider@example.org", ts).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "hider@example.org", nil, ts))

	u, err := s.FindOrCreateUser(context.Background(), "  Hider@Example.org ")
	if err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}
	if u.ID != "u1" || u.GCUsername != "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := s.FindOrCreateUser(context.Background(), " "); !errors.Is(err, registry.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	expectMet(t, mock)
}

func TestGetPledgeNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("from pledges p where p.id = \\$1").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(pledgeCols))

	if _, err := s.GetPledge(context.Background(), "missing"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	expectMet(t, mock)
}

func TestGetPledgeRecordWithoutSubmission(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	row := append(append(pledgeValues("p1", ts), "u1", "hider@example.org", "Hider", ts), nulls(len(submissionCols))...)
	cols := append(append(append([]string{}, pledgeCols...), userCols...), submissionCols...)
	mock.ExpectQuery("left join submissions s on s.pledge_id = p.id where p.id = \\$1").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))

	rec, err := s.GetPledgeRecord(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPledgeRecord: %v", err)
	}
	if rec.Submission != nil {
		t.Fatalf("expected no submission, got %+v", rec.Submission)
	}
	if rec.User == nil || rec.User.Email != "hider@example.org" {
		t.Fatalf("user not joined: %+v", rec.User)
	}
	if len(rec.Images) != 1 || rec.Images[0].Key != "k1" {
		t.Fatalf("images not decoded: %+v", rec.Images)
	}
	expectMet(t, mock)
}

func TestConfirmMovesImagesAndHidesPledge(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	imgs := []byte(`[{"url":"https://img/1.jpg"}]`)

	mock.ExpectBegin()
	mock.ExpectQuery("select gc_username, images from pledges where id = \\$1 for update").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"gc_username", "images"}).AddRow("Hider", imgs))
	mock.ExpectQuery("select exists").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("insert into submissions as s").WithArgs(anyArgs(16)...).
		WillReturnRows(sqlmock.NewRows(submissionCols).AddRow(
			"s1", "p1", "u1", "Hider", "GC9ABCD", "Creek", "Newtown", "NSW", 1.5, 2.0, "TRADITIONAL", ts, nil, imgs, ts, ts))
	mock.ExpectExec("update pledges set status = \\$2, images = null").WithArgs("p1", "HIDDEN", ts).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := s.Confirm(context.Background(), registry.Submission{
		ID: "s1", PledgeID: "p1", UserID: "u1", GCCode: "GC9ABCD", CacheName: "Creek", Suburb: "Newtown",
		State: registry.StateNSW, Difficulty: 1.5, Terrain: 2, Type: registry.TypeTraditional,
		HiddenDate: ts, CreatedAt: ts, UpdatedAt: ts,
	})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if sub.GCUsername != "Hider" || len(sub.Images) != 1 {
		t.Fatalf("pledge data not carried over: %+v", sub)
	}
	expectMet(t, mock)
}

func TestConfirmRejectsTakenPledge(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"gc_username", "images"}).AddRow("Hider", nil))
	mock.ExpectQuery("select exists").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.Confirm(context.Background(), registry.Submission{PledgeID: "p1"})
	if !errors.Is(err, registry.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	expectMet(t, mock)
}

func TestConfirmMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"gc_username", "images"}).AddRow("Hider", nil))
	mock.ExpectQuery("select exists").WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("insert into submissions").WithArgs(anyArgs(16)...).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: submissionsPledgeKey})
	mock.ExpectRollback()

	_, err := s.Confirm(context.Background(), registry.Submission{PledgeID: "p1"})
	if !errors.Is(err, registry.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	expectMet(t, mock)
}

func TestConfirmMissingPledge(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"gc_username", "images"}))
	mock.ExpectRollback()

	if _, err := s.Confirm(context.Background(), registry.Submission{PledgeID: "nope"}); !errors.Is(err, registry.ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestDeleteSubmissionRevertsPledge(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("delete from submissions where id = \\$1 returning pledge_id").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"pledge_id"}).AddRow("p1"))
	mock.ExpectExec("update pledges set status = \\$2, updated_at = \\$3").WithArgs("p1", "CONCEPT", s.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.DeleteSubmission(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}
	expectMet(t, mock)
}

func TestDeletePledgeNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("delete from pledges where id = \\$1").WithArgs("p9").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeletePledge(context.Background(), "p9"); !errors.Is(err, registry.ErrPledgeNotFound) {
		t.Fatalf("expected ErrPledgeNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestUpdatePledgeKeepsOwnerAndStatus(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	mock.ExpectQuery("update pledges as p set gc_username = \\$1, .* updated_at = \\$9 where id = \\$10 returning").
		WithArgs(anyArgs(10)...).
		WillReturnRows(sqlmock.NewRows(pledgeCols).AddRow(pledgeValues("p1", ts)...))

	p, err := s.UpdatePledge(context.Background(), registry.Pledge{ID: "p1", GCUsername: "Hider", UpdatedAt: ts})
	if err != nil {
		t.Fatalf("UpdatePledge: %v", err)
	}
	if p.UserID != "u1" || p.Status != registry.StatusConcept {
		t.Fatalf("unexpected pledge: %+v", p)
	}
	expectMet(t, mock)
}

func TestListSubmissionsAppliesFilter(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`where s.state = $1 and (coalesce(s.gc_username, '') ilike $2`)+
		".*s.created_at >= \\$3 order by s.created_at desc, s.id desc").
		WithArgs("VIC", "%creek%", from).
		WillReturnRows(sqlmock.NewRows(append(append(append([]string{}, submissionCols...), userCols...), pledgeCols...)))

	out, err := s.ListSubmissions(context.Background(), registry.Filter{State: registry.StateVIC, Search: "creek", From: &from})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
	expectMet(t, mock)
}

func TestAuditQueryFiltersAndLimits(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	mock.ExpectQuery("from audit_logs where action = \\$1 and coalesce\\(actor_email, ''\\) ilike .* limit \\$3").
		WithArgs(audit.ActionDeletePledge, "%admin%", audit.MaxResults).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "actor_email", "action", "target_id", "target_kind", "before", "after", "created_at"}).
			AddRow("a1", "u1", "admin@example.org", audit.ActionDeletePledge, "p1", audit.KindPledge, []byte(`{"id":"p1"}`), nil, ts))

	entries, err := s.QueryAuditLogs(context.Background(), audit.Filter{Action: audit.ActionDeletePledge, ActorEmail: "admin"}, 0)
	if err != nil {
		t.Fatalf("QueryAuditLogs: %v", err)
	}
	if len(entries) != 1 || entries[0].After != nil || string(entries[0].Before) != `{"id":"p1"}` {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	expectMet(t, mock)
}

func TestAppendAuditLogStoresNullAfterForDeletes(t *testing.T) {
	s, mock := newMockStore(t)
	ts := s.now()
	mock.ExpectExec("insert into audit_logs").
		WithArgs("a1", "u1", "admin@example.org", audit.ActionDeleteSubmission, "s1", audit.KindSubmission, `{"id":"s1"}`, nil, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.AppendAuditLog(context.Background(), audit.Entry{
		ID: "a1", ActorID: "u1", ActorEmail: "admin@example.org", Action: audit.ActionDeleteSubmission,
		TargetID: "s1", TargetKind: audit.KindSubmission, Before: []byte(`{"id":"s1"}`), CreatedAt: ts,
	})
	if err != nil {
		t.Fatalf("AppendAuditLog: %v", err)
	}
	expectMet(t, mock)
}

func TestUseVerificationTokenIsSingleUse(t *testing.T) {
	s, mock := newMockStore(t)
	exp := s.now().Add(time.Hour)
	mock.ExpectQuery("delete from verification_tokens").WithArgs("a@example.org", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "token", "expires"}).AddRow("a@example.org", "tok", exp))
	mock.ExpectQuery("delete from verification_tokens").WithArgs("a@example.org", "tok").
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "token", "expires"}))

	vt, err := s.UseVerificationToken(context.Background(), "a@example.org", "tok")
	if err != nil || vt == nil || !vt.Expires.Equal(exp) {
		t.Fatalf("first use: vt=%+v err=%v", vt, err)
	}
	vt, err = s.UseVerificationToken(context.Background(), "a@example.org", "tok")
	if err != nil || vt != nil {
		t.Fatalf("second use should find nothing: vt=%+v err=%v", vt, err)
	}
	expectMet(t, mock)
}

func TestFactsReadsBothTables(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("from pledges").WillReturnRows(
		sqlmock.NewRows([]string{"user_id", "gc_username", "approx_state", "cache_type", "cache_size"}).
			AddRow("u1", "Hider", "NSW", "MULTI", "MICRO").
			AddRow(nil, "Legacy", "WA", "VIRTUAL", "OTHER"))
	mock.ExpectQuery("from submissions").WillReturnRows(
		sqlmock.NewRows([]string{"user_id", "gc_username", "state", "type"}).AddRow("u1", "Hider", "NSW", "MULTI"))
	mock.ExpectCommit()

	facts, err := s.Facts(context.Background())
	if err != nil {
		t.Fatalf("Facts: %v", err)
	}
	if len(facts.Pledges) != 2 || facts.Pledges[1].UserID != "" || len(facts.Submissions) != 1 {
		t.Fatalf("unexpected facts: %+v", facts)
	}
	expectMet(t, mock)
}

func TestUpdateStatement(t *testing.T) {
	q, args := updateStatement("pledges", "p1", []assignment{{"title", "x"}, {"status", "HIDDEN"}})
	if q != "update pledges set title = $1, status = $2 where id = $3" {
		t.Fatalf("unexpected query %q", q)
	}
	if len(args) != 3 || args[2] != "p1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestFilterWhereEmpty(t *testing.T) {
	w := filterWhere(registry.Filter{}, pledgeFilterColumns)
	if w.String() != "" || len(w.args) != 0 {
		t.Fatalf("empty filter should not constrain: %q", w.String())
	}
	w = filterWhere(registry.Filter{UserID: "u1", GCUsername: "hid"}, pledgeFilterColumns)
	if !strings.Contains(w.String(), "p.user_id = $1 and p.gc_username ilike $2") {
		t.Fatalf("unexpected where %q", w.String())
	}
}

func TestContainsFiltersMatchLiterally(t *testing.T) {
	w := filterWhere(registry.Filter{GCUsername: "first_last", Search: `100%\`}, pledgeFilterColumns)
	if len(w.args) != 2 {
		t.Fatalf("unexpected args %v", w.args)
	}
	if w.args[0] != `%first\_last%` {
		t.Fatalf("username pattern not escaped: %q", w.args[0])
	}
	if w.args[1] != `%100\%\\%` {
		t.Fatalf("search pattern not escaped: %q", w.args[1])
	}

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`where coalesce(actor_email, '') ilike $1`)).
		WithArgs(`%first\_last@%`, audit.MaxResults).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "actor_email", "action", "target_id", "target_kind", "before", "after", "created_at"}))
	if _, err := s.QueryAuditLogs(context.Background(), audit.Filter{ActorEmail: "first_last@"}, 0); err != nil {
		t.Fatalf("QueryAuditLogs: %v", err)
	}
	expectMet(t, mock)
}
