package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cachepledge.org/internal/audit"
	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/ids"
	"cachepledge.org/internal/obs"
)

// Auditor records admin mutations. *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, actor auth.Actor, action, kind, targetID string, before, after any) error
}

// Notifier sends best-effort mail. Calls must not block on delivery.
type Notifier interface {
	PledgeCreated(ctx context.Context, email string, p Pledge)
	SubmissionConfirmed(ctx context.Context, email string, s Submission)
}

// ActivitySink receives lifecycle events for the public feed.
type ActivitySink interface {
	PublishActivity(Activity)
}

// Service is the lifecycle engine: it gates every operation on ownership,
// applies the pledge -> submission transition through the Store, and fires
// audit, mail and activity side effects after the mutation commits.
type Service struct {
	store    Store
	audit    Auditor
	notify   Notifier
	activity ActivitySink
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithAuditor(a Auditor) Option           { return func(s *Service) { s.audit = a } }
func WithNotifier(n Notifier) Option         { return func(s *Service) { s.notify = n } }
func WithActivitySink(a ActivitySink) Option { return func(s *Service) { s.activity = a } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }

// NewService wires the engine to its store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store to the export and stats paths.
func (s *Service) Store() Store { return s.store }

// EnsureUser finds or creates the user behind a verified email.
func (s *Service) EnsureUser(ctx context.Context, email string) (User, error) {
	return s.store.FindOrCreateUser(ctx, email)
}

// UserByEmail looks up an existing account.
func (s *Service) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.store.GetUserByEmail(ctx, email)
}

// Profile returns the caller's account.
func (s *Service) Profile(ctx context.Context, actor auth.Actor) (Profile, error) {
	if actor.UserID == "" {
		return Profile{}, ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: u, Admin: actor.Admin}, nil
}

// UpdateUsername sets the caller's geocaching username.
func (s *Service) UpdateUsername(ctx context.Context, actor auth.Actor, in UsernameInput) (User, error) {
	if actor.UserID == "" {
		return User{}, ErrUnauthenticated
	}
	if err := Validate(in); err != nil {
		return User{}, err
	}
	return s.store.SetUsername(ctx, actor.UserID, strings.TrimSpace(in.GCUsername))
}

// CreatePledge records a new CONCEPT pledge for the caller and remembers the
// username on their account.
func (s *Service) CreatePledge(ctx context.Context, actor auth.Actor, in PledgeInput) (Pledge, error) {
	if actor.UserID == "" {
		return Pledge{}, ErrUnauthenticated
	}
	if err := Validate(in); err != nil {
		return Pledge{}, err
	}
	username := strings.TrimSpace(in.GCUsername)
	user, err := s.store.SetUsername(ctx, actor.UserID, username)
	if err != nil {
		return Pledge{}, err
	}
	now := s.now().UTC()
	images := Images(in.Images).Clone()
	if images == nil {
		images = Images{}
	}
	p, err := s.store.CreatePledge(ctx, Pledge{
		ID:           ids.NewAt(now),
		UserID:       actor.UserID,
		GCUsername:   username,
		Title:        strings.TrimSpace(in.Title),
		CacheType:    in.CacheType,
		CacheSize:    in.CacheSize,
		ApproxSuburb: strings.TrimSpace(in.ApproxSuburb),
		ApproxState:  in.ApproxState,
		ConceptNotes: in.ConceptNotes,
		Images:       images,
		Status:       StatusConcept,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Pledge{}, err
	}
	obs.LifecycleEvent("pledge_created")
	s.publish(ActivityPledged, p.ApproxState, p.CacheType, now)
	if s.notify != nil {
		s.notify.PledgeCreated(ctx, user.Email, p)
	}
	return p, nil
}

// GetPledge returns a pledge the actor may see.
func (s *Service) GetPledge(ctx context.Context, actor auth.Actor, id string) (Pledge, error) {
	p, err := s.store.GetPledge(ctx, id)
	if err != nil {
		return Pledge{}, err
	}
	if err := auth.Authorize(actor, p.UserID); err != nil {
		return Pledge{}, err
	}
	return p, nil
}

// UpdatePledge applies a partial update. Admin updates are audited.
func (s *Service) UpdatePledge(ctx context.Context, actor auth.Actor, id string, upd PledgeUpdate) (Pledge, error) {
	before, err := s.GetPledge(ctx, actor, id)
	if err != nil {
		return Pledge{}, err
	}
	if err := Validate(upd); err != nil {
		return Pledge{}, err
	}
	next := before
	next.Images = before.Images.Clone()
	if upd.GCUsername != nil {
		if v := strings.TrimSpace(*upd.GCUsername); v != "" {
			next.GCUsername = v
		}
	}
	if upd.Title != nil {
		next.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.CacheType != nil {
		next.CacheType = *upd.CacheType
	}
	if upd.CacheSize != nil {
		next.CacheSize = *upd.CacheSize
	}
	if upd.ApproxSuburb != nil {
		next.ApproxSuburb = strings.TrimSpace(*upd.ApproxSuburb)
	}
	if upd.ApproxState != nil {
		next.ApproxState = *upd.ApproxState
	}
	if upd.ConceptNotes != nil {
		next.ConceptNotes = *upd.ConceptNotes
	}
	if upd.Images != nil {
		next.Images = append(Images{}, *upd.Images...)
	}
	next.UpdatedAt = s.now().UTC()

	after, err := s.store.UpdatePledge(ctx, next)
	if err != nil {
		return Pledge{}, err
	}
	obs.LifecycleEvent("pledge_updated")
	s.record(ctx, actor, audit.ActionUpdatePledge, audit.KindPledge, id, before, after)
	return after, nil
}

// DeletePledge removes a pledge and, by cascade, its submission.
func (s *Service) DeletePledge(ctx context.Context, actor auth.Actor, id string) error {
	before, err := s.GetPledge(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePledge(ctx, id); err != nil {
		return err
	}
	obs.LifecycleEvent("pledge_deleted")
	s.record(ctx, actor, audit.ActionDeletePledge, audit.KindPledge, id, before, nil)
	return nil
}

// Confirm attaches a submission to the caller's pledge. Preconditions are
// checked in order: the pledge exists, it has no submission, the caller owns
// it. The store repeats the second check atomically.
func (s *Service) Confirm(ctx context.Context, actor auth.Actor, in SubmissionInput) (Submission, error) {
	if actor.UserID == "" {
		return Submission{}, ErrUnauthenticated
	}
	if err := Validate(in); err != nil {
		return Submission{}, err
	}
	rec, err := s.store.GetPledgeRecord(ctx, in.PledgeID)
	if err != nil {
		return Submission{}, err
	}
	if rec.Submission != nil {
		return Submission{}, ErrAlreadySubmitted
	}
	if rec.UserID != actor.UserID {
		return Submission{}, ErrForbidden
	}
	hidden, err := ParseHiddenDate(in.HiddenDate)
	if err != nil {
		return Submission{}, err
	}
	now := s.now().UTC()
	sub, err := s.store.Confirm(ctx, Submission{
		ID:         ids.NewAt(now),
		PledgeID:   in.PledgeID,
		UserID:     actor.UserID,
		GCCode:     in.GCCode,
		CacheName:  strings.TrimSpace(in.CacheName),
		Suburb:     strings.TrimSpace(in.Suburb),
		State:      in.State,
		Difficulty: in.Difficulty,
		Terrain:    in.Terrain,
		Type:       in.Type,
		HiddenDate: hidden,
		Notes:      in.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Submission{}, err
	}
	obs.LifecycleEvent("submission_confirmed")
	s.publish(ActivityConfirmed, sub.State, sub.Type, now)
	if s.notify != nil {
		email := actor.Email
		if email == "" {
			if u, err := s.store.GetUser(ctx, actor.UserID); err == nil {
				email = u.Email
			}
		}
		if email != "" {
			s.notify.SubmissionConfirmed(ctx, email, sub)
		}
	}
	return sub, nil
}

// GetSubmission returns a submission the actor may see.
func (s *Service) GetSubmission(ctx context.Context, actor auth.Actor, id string) (Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if err := auth.Authorize(actor, sub.UserID); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

// UpdateSubmission applies a partial update. The pledge link never changes.
func (s *Service) UpdateSubmission(ctx context.Context, actor auth.Actor, id string, upd SubmissionUpdate) (Submission, error) {
	before, err := s.GetSubmission(ctx, actor, id)
	if err != nil {
		return Submission{}, err
	}
	if err := Validate(upd); err != nil {
		return Submission{}, err
	}
	next := before
	next.Images = before.Images.Clone()
	if upd.GCCode != nil {
		next.GCCode = *upd.GCCode
	}
	if upd.CacheName != nil {
		next.CacheName = strings.TrimSpace(*upd.CacheName)
	}
	if upd.Suburb != nil {
		next.Suburb = strings.TrimSpace(*upd.Suburb)
	}
	if upd.State != nil {
		next.State = *upd.State
	}
	if upd.Difficulty != nil {
		next.Difficulty = *upd.Difficulty
	}
	if upd.Terrain != nil {
		next.Terrain = *upd.Terrain
	}
	if upd.Type != nil {
		next.Type = *upd.Type
	}
	if upd.HiddenDate != nil {
		hidden, err := ParseHiddenDate(*upd.HiddenDate)
		if err != nil {
			return Submission{}, err
		}
		next.HiddenDate = hidden
	}
	if upd.Notes != nil {
		next.Notes = *upd.Notes
	}
	if upd.Images != nil {
		next.Images = append(Images{}, *upd.Images...)
	}
	next.UpdatedAt = s.now().UTC()

	after, err := s.store.UpdateSubmission(ctx, next)
	if err != nil {
		return Submission{}, err
	}
	obs.LifecycleEvent("submission_updated")
	s.record(ctx, actor, audit.ActionUpdateSubmission, audit.KindSubmission, id, before, after)
	return after, nil
}

// DeleteSubmission removes a submission and returns its pledge to CONCEPT.
// The pledge's images stay empty.
func (s *Service) DeleteSubmission(ctx context.Context, actor auth.Actor, id string) error {
	before, err := s.GetSubmission(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubmission(ctx, id); err != nil {
		return err
	}
	obs.LifecycleEvent("submission_deleted")
	s.publish(ActivityUnconfirmed, before.State, before.Type, s.now().UTC())
	s.record(ctx, actor, audit.ActionDeleteSubmission, audit.KindSubmission, id, before, nil)
	return nil
}

// ListMyPledges returns the caller's pledges, newest first, each with its
// submission.
func (s *Service) ListMyPledges(ctx context.Context, actor auth.Actor) ([]PledgeRecord, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.store.ListPledges(ctx, Filter{UserID: actor.UserID})
}

// ListMySubmissions returns the caller's submissions with their pledges.
func (s *Service) ListMySubmissions(ctx context.Context, actor auth.Actor) ([]SubmissionRecord, error) {
	if actor.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.store.ListSubmissions(ctx, Filter{UserID: actor.UserID})
}

// ListPledges is the admin pledge list.
func (s *Service) ListPledges(ctx context.Context, actor auth.Actor, f Filter) ([]PledgeRecord, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.store.ListPledges(ctx, f)
}

// ListSubmissions is the admin submission list.
func (s *Service) ListSubmissions(ctx context.Context, actor auth.Actor, f Filter) ([]SubmissionRecord, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	return s.store.ListSubmissions(ctx, f)
}

// Manage returns everything an edit link may touch for userID.
func (s *Service) Manage(ctx context.Context, userID string) (ManageView, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ManageView{}, err
	}
	pledges, err := s.store.ListPledges(ctx, Filter{UserID: userID})
	if err != nil {
		return ManageView{}, err
	}
	subs, err := s.store.ListSubmissions(ctx, Filter{UserID: userID})
	if err != nil {
		return ManageView{}, err
	}
	return ManageView{User: u, Pledges: pledges, Submissions: subs}, nil
}

// GalleryImages flattens images of unconfirmed pledges and of submissions,
// newest first.
func (s *Service) GalleryImages(ctx context.Context, actor auth.Actor) ([]GalleryImage, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	pledges, err := s.store.ListPledges(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubmissions(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]GalleryImage, 0)
	for _, p := range pledges {
		if p.Submission != nil {
			continue
		}
		label := p.Title
		if label == "" {
			label = "Untitled Pledge"
		}
		for _, url := range p.Images.URLs() {
			out = append(out, GalleryImage{ID: p.ID, URL: url, Source: "pledge", GCUsername: p.GCUsername, Label: label, CreatedAt: p.CreatedAt})
		}
	}
	for _, sub := range subs {
		for _, url := range sub.Images.URLs() {
			out = append(out, GalleryImage{ID: sub.ID, URL: url, Source: "submission", GCUsername: sub.GCUsername, Label: sub.CacheName, CreatedAt: sub.CreatedAt})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Service) record(ctx context.Context, actor auth.Actor, action, kind, targetID string, before, after any) {
	if s.audit == nil || !actor.Admin {
		return
	}
	// failures are logged and counted by the recorder; the mutation stands
	_ = s.audit.Record(ctx, actor, action, kind, targetID, before, after)
}

func (s *Service) publish(kind string, state State, typ CacheType, at time.Time) {
	if s.activity == nil {
		return
	}
	s.activity.PublishActivity(Activity{Kind: kind, State: state, CacheType: typ, At: at})
}

// IsNotFound reports whether err is any not-found error from this package.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
