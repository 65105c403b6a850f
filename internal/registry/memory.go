package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cachepledge.org/internal/ids"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and single-process runs without a database.
type InMemory struct {
	mu          sync.RWMutex
	users       map[string]*User
	byEmail     map[string]string
	pledges     map[string]*Pledge
	subs        map[string]*Submission
	subByPledge map[string]string
	now         func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[string]*User),
		byEmail:     make(map[string]string),
		pledges:     make(map[string]*Pledge),
		subs:        make(map[string]*Submission),
		subByPledge: make(map[string]string),
		now:         time.Now,
	}
}

func (s *InMemory) FindOrCreateUser(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[email]; ok {
		return *s.users[id], nil
	}
	u := &User{ID: ids.New(), Email: email, CreatedAt: s.now().UTC()}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return *u, nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *InMemory) GetUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

func (s *InMemory) SetUsername(ctx context.Context, userID, gcUsername string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.GCUsername = gcUsername
	return *u, nil
}

func (s *InMemory) CreatePledge(ctx context.Context, p Pledge) (Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.Images = p.Images.Clone()
	cp := p
	s.pledges[p.ID] = &cp
	return p, nil
}

func (s *InMemory) GetPledge(ctx context.Context, id string) (Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pledges[id]
	if !ok {
		return Pledge{}, ErrPledgeNotFound
	}
	return copyPledge(p), nil
}

func (s *InMemory) GetPledgeRecord(ctx context.Context, id string) (PledgeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pledges[id]
	if !ok {
		return PledgeRecord{}, ErrPledgeNotFound
	}
	return s.pledgeRecordLocked(p), nil
}

func (s *InMemory) UpdatePledge(ctx context.Context, p Pledge) (Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pledges[p.ID]
	if !ok {
		return Pledge{}, ErrPledgeNotFound
	}
	// owner, status and creation time are not editable here
	p.UserID = cur.UserID
	p.Status = cur.Status
	p.CreatedAt = cur.CreatedAt
	p.Images = p.Images.Clone()
	*cur = p
	return copyPledge(cur), nil
}

func (s *InMemory) DeletePledge(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pledges[id]; !ok {
		return ErrPledgeNotFound
	}
	if subID, ok := s.subByPledge[id]; ok {
		delete(s.subs, subID)
		delete(s.subByPledge, id)
	}
	delete(s.pledges, id)
	return nil
}

func (s *InMemory) ListPledges(ctx context.Context, f Filter) ([]PledgeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PledgeRecord, 0)
	for _, p := range s.pledges {
		if f.MatchPledge(*p) {
			out = append(out, s.pledgeRecordLocked(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *InMemory) Confirm(ctx context.Context, sub Submission) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pledges[sub.PledgeID]
	if !ok {
		return Submission{}, ErrPledgeNotFound
	}
	if _, taken := s.subByPledge[sub.PledgeID]; taken {
		return Submission{}, ErrAlreadySubmitted
	}
	if sub.ID == "" {
		sub.ID = ids.New()
	}
	sub.GCUsername = p.GCUsername
	sub.Images = p.Images.Clone()

	cp := sub
	s.subs[sub.ID] = &cp
	s.subByPledge[sub.PledgeID] = sub.ID
	p.Status = StatusHidden
	p.Images = nil
	p.UpdatedAt = sub.CreatedAt
	return copySubmission(&cp), nil
}

func (s *InMemory) GetSubmission(ctx context.Context, id string) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	return copySubmission(sub), nil
}

func (s *InMemory) UpdateSubmission(ctx context.Context, sub Submission) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subs[sub.ID]
	if !ok {
		return Submission{}, ErrSubmissionNotFound
	}
	sub.PledgeID = cur.PledgeID
	sub.UserID = cur.UserID
	sub.CreatedAt = cur.CreatedAt
	sub.Images = sub.Images.Clone()
	*cur = sub
	return copySubmission(cur), nil
}

func (s *InMemory) DeleteSubmission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	delete(s.subs, id)
	delete(s.subByPledge, sub.PledgeID)
	if p, ok := s.pledges[sub.PledgeID]; ok {
		p.Status = StatusConcept
		p.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *InMemory) ListSubmissions(ctx context.Context, f Filter) ([]SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SubmissionRecord, 0)
	for _, sub := range s.subs {
		if !f.MatchSubmission(*sub) {
			continue
		}
		rec := SubmissionRecord{Submission: copySubmission(sub)}
		if u, ok := s.users[sub.UserID]; ok {
			cu := *u
			rec.User = &cu
		}
		if p, ok := s.pledges[sub.PledgeID]; ok {
			cp := copyPledge(p)
			rec.Pledge = &cp
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s *InMemory) pledgeRecordLocked(p *Pledge) PledgeRecord {
	rec := PledgeRecord{Pledge: copyPledge(p)}
	if u, ok := s.users[p.UserID]; ok {
		cu := *u
		rec.User = &cu
	}
	if subID, ok := s.subByPledge[p.ID]; ok {
		cs := copySubmission(s.subs[subID])
		rec.Submission = &cs
	}
	return rec
}

func copyPledge(p *Pledge) Pledge {
	out := *p
	out.Images = p.Images.Clone()
	return out
}

func copySubmission(s *Submission) Submission {
	out := *s
	out.Images = s.Images.Clone()
	return out
}

// newer orders by creation time descending, then id descending, so ULIDs
// created in the same instant still sort deterministically.
func newer(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}
