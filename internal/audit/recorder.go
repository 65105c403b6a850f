package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cachepledge.org/internal/auth"
	"cachepledge.org/internal/ids"
	"cachepledge.org/internal/obs"
)

// Recorder appends audit rows for admin-initiated mutations. Writes are
// best-effort: a failed append is logged and counted, and the mutation that
// triggered it stands.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wires a Recorder to its store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record writes one row when actor is an admin and is a no-op otherwise.
// before is required; pass a nil after for deletions.
func (r *Recorder) Record(ctx context.Context, actor auth.Actor, action, kind, targetID string, before, after any) error {
	if r == nil || r.store == nil || !actor.Admin {
		return nil
	}
	if before == nil {
		return errors.New("audit: before snapshot is required")
	}
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("audit: marshal before: %w", err)
	}
	var afterJSON json.RawMessage
	if after != nil {
		if afterJSON, err = json.Marshal(after); err != nil {
			return fmt.Errorf("audit: marshal after: %w", err)
		}
	}
	actorID := actor.UserID
	if actorID == "" {
		actorID = "admin"
	}
	now := r.now().UTC()
	entry := Entry{
		ID:         ids.NewAt(now),
		ActorID:    actorID,
		ActorEmail: actor.Email,
		Action:     action,
		TargetID:   targetID,
		TargetKind: kind,
		Before:     beforeJSON,
		After:      afterJSON,
		CreatedAt:  now,
	}
	if err := r.store.AppendAuditLog(ctx, entry); err != nil {
		obs.AuditWriteFailed()
		obs.Error("audit write failed", err, map[string]any{
			"action":     action,
			"target_id":  targetID,
			"request_id": RequestIDFromContext(ctx),
		})
		_ = LogEvent(ctx, "audit.write_failed", map[string]any{
			"action":      action,
			"target_kind": kind,
			"target_id":   targetID,
			"actor_email": actor.Email,
		})
		return err
	}
	return nil
}

// Query returns matching rows, newest first, at most MaxResults.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return r.store.QueryAuditLogs(ctx, f, MaxResults)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendAuditLog(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) QueryAuditLogs(_ context.Context, f Filter, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if Matches(e, f) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Matches applies f to a single entry.
func Matches(e Entry, f Filter) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.TargetKind != "" && e.TargetKind != f.TargetKind {
		return false
	}
	if f.ActorEmail != "" && !strings.Contains(strings.ToLower(e.ActorEmail), strings.ToLower(f.ActorEmail)) {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
