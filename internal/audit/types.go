package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Actions recorded for admin mutations.
const (
	ActionUpdatePledge     = "UPDATE_PLEDGE"
	ActionDeletePledge     = "DELETE_PLEDGE"
	ActionUpdateSubmission = "UPDATE_SUBMISSION"
	ActionDeleteSubmission = "DELETE_SUBMISSION"
)

// Target kinds.
const (
	KindPledge     = "PLEDGE"
	KindSubmission = "SUBMISSION"
)

// MaxResults caps a single Query. Callers needing more narrow the date range.
const MaxResults = 1000

// Entry is one immutable audit row. Before and After hold JSON snapshots;
// After is empty for deletions.
type Entry struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	ActorEmail string          `json:"actorEmail,omitempty"`
	Action     string          `json:"action"`
	TargetID   string          `json:"targetId"`
	TargetKind string          `json:"targetKind"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Filter narrows Query. Empty fields do not filter. ActorEmail matches as a
// case-insensitive substring; From and To are inclusive bounds on CreatedAt.
type Filter struct {
	Action     string
	TargetKind string
	ActorEmail string
	From       *time.Time
	To         *time.Time
}

// Store is append-only: there is no update or delete.
type Store interface {
	AppendAuditLog(ctx context.Context, e Entry) error
	QueryAuditLogs(ctx context.Context, f Filter, limit int) ([]Entry, error)
}
