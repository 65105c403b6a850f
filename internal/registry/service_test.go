package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
)

type recordingNotifier struct {
	mu        sync.Mutex
	pledges   []string
	confirmed []string
}

func (n *recordingNotifier) PledgeCreated(_ context.Context, email string, _ Pledge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pledges = append(n.pledges, email)
}

func (n *recordingNotifier) SubmissionConfirmed(_ context.Context, email string, _ Submission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, email)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Activity
}

func (r *recordingSink) PublishActivity(a Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, a)
}

type fixture struct {
	svc      *Service
	store    *InMemory
	audit    *audit.MemoryStore
	notifier *recordingNotifier
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewInMemory()
	auditStore := audit.NewMemoryStore()
	f := &fixture{
		store:    store,
		audit:    auditStore,
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
	}
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	f.svc = NewService(store,
		WithAuditor(audit.NewRecorder(auditStore)),
		WithNotifier(f.notifier),
		WithActivitySink(f.sink),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return f
}

func (f *fixture) user(t *testing.T, email string) auth.Actor {
	t.Helper()
	u, err := f.svc.EnsureUser(context.Background(), email)
	require.NoError(t, err)
	return auth.Actor{UserID: u.ID, Email: u.Email}
}

func (f *fixture) auditRows(t *testing.T) []audit.Entry {
	t.Helper()
	rows, err := f.audit.QueryAuditLogs(context.Background(), audit.Filter{}, audit.MaxResults)
	require.NoError(t, err)
	return rows
}

func pledgeInput() PledgeInput {
	return PledgeInput{
		GCUsername:   "CacheHider",
		Title:        "Creek walk",
		CacheType:    TypeTraditional,
		CacheSize:    SizeSmall,
		ApproxSuburb: "Newtown",
		ApproxState:  StateNSW,
	}
}

func submissionInput(pledgeID string) SubmissionInput {
	return SubmissionInput{
		PledgeID:   pledgeID,
		GCCode:     "GC9ABCD",
		CacheName:  "Creek Walk #1",
		Suburb:     "Newtown",
		State:      StateNSW,
		Difficulty: 1.5,
		Terrain:    2,
		Type:       TypeTraditional,
		HiddenDate: "2026-01-31",
	}
}

func TestPledgeLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")

	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	assert.Equal(t, StatusConcept, p.Status)
	assert.NotNil(t, p.Images)
	assert.Empty(t, p.Images)

	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	assert.Equal(t, p.GCUsername, sub.GCUsername)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), sub.HiddenDate)

	got, err := f.svc.GetPledge(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusHidden, got.Status)

	require.NoError(t, f.svc.DeleteSubmission(ctx, owner, sub.ID))
	got, err = f.svc.GetPledge(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConcept, got.Status)

	_, err = f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err, "pledge is available for a new confirm")

	u, err := f.store.GetUser(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, "CacheHider", u.GCUsername)
	assert.Empty(t, f.auditRows(t), "self-service mutations are never audited")
}

func TestConfirmMovesImagesForEveryShape(t *testing.T) {
	list := `[{"url":"https://img/1.jpg","key":"k1"},{"url":"https://img/2.jpg","key":"k2"}]`
	encoded, _ := json.Marshal(list)
	shapes := map[string][]byte{
		"list":    []byte(list),
		"encoded": encoded,
		"urls":    []byte(`{"urls":[{"url":"https://img/1.jpg","key":"k1"},{"url":"https://img/2.jpg","key":"k2"}]}`),
	}
	want := Images{{URL: "https://img/1.jpg", Key: "k1"}, {URL: "https://img/2.jpg", Key: "k2"}}

	for name, raw := range shapes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			owner := f.user(t, "hider@example.org")
			var stored Images
			require.NoError(t, stored.Scan(raw))

			p, err := f.store.CreatePledge(ctx, Pledge{
				UserID: owner.UserID, GCUsername: "legacy", CacheType: TypeMulti, CacheSize: SizeMicro,
				ApproxSuburb: "Fitzroy", ApproxState: StateVIC, Images: stored, Status: StatusConcept,
			})
			require.NoError(t, err)

			sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
			require.NoError(t, err)
			assert.Equal(t, want, sub.Images)

			after, err := f.store.GetPledge(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusHidden, after.Status)
			assert.Nil(t, after.Images)
		})
	}
}

func TestConfirmTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	in := pledgeInput()
	in.Images = []Image{{URL: "https://img/a.jpg", Key: "a"}}
	p, err := f.svc.CreatePledge(ctx, owner, in)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	afterFirst, _ := f.store.GetPledge(ctx, p.ID)

	second := submissionInput(p.ID)
	second.GCCode = "GC1234"
	_, err = f.svc.Confirm(ctx, owner, second)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	afterSecond, _ := f.store.GetPledge(ctx, p.ID)
	assert.Equal(t, afterFirst.Status, afterSecond.Status)
	assert.Equal(t, afterFirst.Images, afterSecond.Images)
}

func TestConcurrentConfirmHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadySubmitted)
	}
	assert.Equal(t, 1, wins)
}

func TestConfirmPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	other := f.user(t, "other@example.org")

	_, err := f.svc.Confirm(ctx, owner, submissionInput("missing"))
	assert.ErrorIs(t, err, ErrPledgeNotFound)

	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, other, submissionInput(p.ID))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, other, submissionInput(p.ID))
	assert.ErrorIs(t, err, ErrAlreadySubmitted, "existing submission is reported before ownership")

	_, err = f.svc.Confirm(ctx, auth.Actor{}, submissionInput(p.ID))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDeleteSubmissionDoesNotRestoreImages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	in := pledgeInput()
	in.Images = []Image{{URL: "https://img/a.jpg", Key: "a"}}
	p, err := f.svc.CreatePledge(ctx, owner, in)
	require.NoError(t, err)
	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSubmission(ctx, owner, sub.ID))
	got, err := f.store.GetPledge(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConcept, got.Status)
	assert.Empty(t, got.Images)

	_, err = f.store.GetSubmission(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestOwnershipGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	stranger := f.user(t, "stranger@example.org")
	admin := f.user(t, "admin@example.org")
	admin.Admin = true

	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	title := "renamed"
	name := "Renamed cache"

	_, err = f.svc.GetPledge(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdatePledge(ctx, stranger, p.ID, PledgeUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.DeletePledge(ctx, stranger, p.ID), ErrForbidden)
	_, err = f.svc.GetSubmission(ctx, stranger, sub.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateSubmission(ctx, stranger, sub.ID, SubmissionUpdate{CacheName: &name})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.svc.DeleteSubmission(ctx, stranger, sub.ID), ErrForbidden)

	for _, actor := range []auth.Actor{owner, admin} {
		_, err = f.svc.GetPledge(ctx, actor, p.ID)
		assert.NoError(t, err)
		_, err = f.svc.UpdatePledge(ctx, actor, p.ID, PledgeUpdate{Title: &title})
		assert.NoError(t, err)
		_, err = f.svc.GetSubmission(ctx, actor, sub.ID)
		assert.NoError(t, err)
		_, err = f.svc.UpdateSubmission(ctx, actor, sub.ID, SubmissionUpdate{CacheName: &name})
		assert.NoError(t, err)
	}

	_, err = f.svc.GetPledge(ctx, stranger, "nope")
	assert.ErrorIs(t, err, ErrNotFound, "missing records are not found, not forbidden")
}

func TestAdminMutationsAreAuditedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	admin := f.user(t, "admin@example.org")
	admin.Admin = true

	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)

	title := "owner edit"
	_, err = f.svc.UpdatePledge(ctx, owner, p.ID, PledgeUpdate{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, f.auditRows(t))

	title = "admin edit"
	_, err = f.svc.UpdatePledge(ctx, admin, p.ID, PledgeUpdate{Title: &title})
	require.NoError(t, err)
	rows := f.auditRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, audit.ActionUpdatePledge, rows[0].Action)
	assert.Equal(t, audit.KindPledge, rows[0].TargetKind)
	assert.Equal(t, p.ID, rows[0].TargetID)
	assert.Equal(t, "admin@example.org", rows[0].ActorEmail)
	assert.Contains(t, string(rows[0].Before), "owner edit")
	assert.Contains(t, string(rows[0].After), "admin edit")

	require.NoError(t, f.svc.DeleteSubmission(ctx, admin, sub.ID))
	rows = f.auditRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, audit.ActionDeleteSubmission, rows[0].Action)
	assert.NotEmpty(t, rows[0].Before)
	assert.Empty(t, rows[0].After)

	require.NoError(t, f.svc.DeletePledge(ctx, admin, p.ID))
	rows = f.auditRows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, audit.ActionDeletePledge, rows[0].Action)
	assert.Empty(t, rows[0].After)
}

func TestDeletePledgeCascadesToSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePledge(ctx, owner, p.ID))
	_, err = f.store.GetSubmission(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
	mine, err := f.svc.ListMySubmissions(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreatePledgeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")

	in := pledgeInput()
	in.CacheType = "BOULDER"
	in.ApproxSuburb = ""
	in.Images = []Image{{URL: "ftp://x"}, {URL: "https://a"}, {URL: "https://b"}, {URL: "https://c"}}

	_, err := f.svc.CreatePledge(ctx, owner, in)
	require.ErrorIs(t, err, ErrInvalidInput)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["cacheType"])
	assert.True(t, fields["approxSuburb"])
	assert.True(t, fields["images"])
}

func TestSubmissionValidationRules(t *testing.T) {
	in := submissionInput("p1")
	require.NoError(t, Validate(in))

	in.GCCode = "gc123"
	in.Difficulty = 1.25
	in.Terrain = 5.5
	in.HiddenDate = "31/01/2026"
	var verr *ValidationError
	require.True(t, errors.As(Validate(in), &verr))
	assert.Len(t, verr.Fields, 4)

	in = submissionInput("p1")
	in.HiddenDate = "2026-01-31T10:00:00Z"
	assert.NoError(t, Validate(in))
}

func TestWhitespaceOnlyTextIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	blank := "   "

	fieldsOf := func(t *testing.T, err error) []string {
		t.Helper()
		require.ErrorIs(t, err, ErrInvalidInput)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		names := make([]string, 0, len(verr.Fields))
		for _, fe := range verr.Fields {
			names = append(names, fe.Field)
			assert.Equal(t, "is required", fe.Message)
		}
		return names
	}

	in := pledgeInput()
	in.GCUsername = blank
	in.ApproxSuburb = "\t "
	_, err := f.svc.CreatePledge(ctx, owner, in)
	assert.ElementsMatch(t, []string{"gcUsername", "approxSuburb"}, fieldsOf(t, err))

	_, err = f.svc.UpdateUsername(ctx, owner, UsernameInput{GCUsername: blank})
	assert.Equal(t, []string{"gcUsername"}, fieldsOf(t, err))

	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	_, err = f.svc.UpdatePledge(ctx, owner, p.ID, PledgeUpdate{ApproxSuburb: &blank})
	assert.Equal(t, []string{"approxSuburb"}, fieldsOf(t, err))

	sin := submissionInput(p.ID)
	sin.CacheName = blank
	sin.Suburb = blank
	_, err = f.svc.Confirm(ctx, owner, sin)
	assert.ElementsMatch(t, []string{"cacheName", "suburb"}, fieldsOf(t, err))

	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	_, err = f.svc.UpdateSubmission(ctx, owner, sub.ID, SubmissionUpdate{CacheName: &blank, Suburb: &blank})
	assert.ElementsMatch(t, []string{"cacheName", "suburb"}, fieldsOf(t, err))

	stored, err := f.store.GetPledge(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.GCUsername)
	assert.NotEmpty(t, stored.ApproxSuburb)
}

func TestSideEffectsFireAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)
	sub, err := f.svc.Confirm(ctx, owner, submissionInput(p.ID))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteSubmission(ctx, owner, sub.ID))

	assert.Equal(t, []string{"hider@example.org"}, f.notifier.pledges)
	assert.Equal(t, []string{"hider@example.org"}, f.notifier.confirmed)
	require.Len(t, f.sink.events, 3)
	assert.Equal(t, ActivityPledged, f.sink.events[0].Kind)
	assert.Equal(t, ActivityConfirmed, f.sink.events[1].Kind)
	assert.Equal(t, ActivityUnconfirmed, f.sink.events[2].Kind)
	assert.Equal(t, StateNSW, f.sink.events[1].State)
}

func TestAdminListsAndGallery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	admin := auth.Actor{Admin: true}

	in := pledgeInput()
	in.Images = []Image{{URL: "https://img/p.jpg", Key: "p"}}
	first, err := f.svc.CreatePledge(ctx, owner, in)
	require.NoError(t, err)

	in = pledgeInput()
	in.ApproxState = StateWA
	in.ApproxSuburb = "Fremantle"
	in.Images = []Image{{URL: "https://img/q.jpg", Key: "q"}}
	second, err := f.svc.CreatePledge(ctx, owner, in)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, owner, submissionInput(second.ID))
	require.NoError(t, err)

	_, err = f.svc.ListPledges(ctx, owner, Filter{})
	assert.ErrorIs(t, err, ErrForbidden)

	all, err := f.svc.ListPledges(ctx, admin, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	require.NotNil(t, all[0].Submission)
	require.NotNil(t, all[0].User)
	assert.Equal(t, "hider@example.org", all[0].User.Email)

	wa, err := f.svc.ListPledges(ctx, admin, Filter{State: StateWA})
	require.NoError(t, err)
	require.Len(t, wa, 1)
	searched, err := f.svc.ListPledges(ctx, admin, Filter{Search: "FREMANTLE"})
	require.NoError(t, err)
	require.Len(t, searched, 1)

	subs, err := f.svc.ListSubmissions(ctx, admin, Filter{Search: "gc9abcd"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].Pledge)

	gallery, err := f.svc.GalleryImages(ctx, admin)
	require.NoError(t, err)
	require.Len(t, gallery, 2)
	assert.Equal(t, "submission", gallery[0].Source)
	assert.Equal(t, "https://img/q.jpg", gallery[0].URL)
	assert.Equal(t, "pledge", gallery[1].Source)
	assert.Equal(t, first.ID, gallery[1].ID)
}

func TestManageViewAndProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.user(t, "hider@example.org")
	p, err := f.svc.CreatePledge(ctx, owner, pledgeInput())
	require.NoError(t, err)

	view, err := f.svc.Manage(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, "hider@example.org", view.User.Email)
	require.Len(t, view.Pledges, 1)
	assert.Equal(t, p.ID, view.Pledges[0].ID)
	assert.Empty(t, view.Submissions)

	u, err := f.svc.UpdateUsername(ctx, owner, UsernameInput{GCUsername: " NewName "})
	require.NoError(t, err)
	assert.Equal(t, "NewName", u.GCUsername)

	prof, err := f.svc.Profile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "NewName", prof.GCUsername)
	assert.False(t, prof.Admin)

	_, err = f.svc.UpdateUsername(ctx, owner, UsernameInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
