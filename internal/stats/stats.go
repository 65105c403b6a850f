// Package stats computes participation figures from current table contents.
// Nothing is cached: every call recomputes.
package stats

import (
	"context"

	"cachepledge.org/internal/registry"
)

// PledgeFact is the slice of a pledge the aggregates need.
type PledgeFact struct {
	UserID     string
	GCUsername string
	State      registry.State
	Type       registry.CacheType
	Size       registry.CacheSize
}

// SubmissionFact is the slice of a submission the aggregates need.
type SubmissionFact struct {
	UserID     string
	GCUsername string
	State      registry.State
	Type       registry.CacheType
}

// Facts is one consistent read of both tables.
type Facts struct {
	Pledges     []PledgeFact
	Submissions []SubmissionFact
}

// Source loads Facts. The Postgres store implements it with narrow selects.
type Source interface {
	Facts(ctx context.Context) (Facts, error)
}

// StoreSource adapts a registry.Store through its list queries.
type StoreSource struct {
	Store registry.Store
}

func (s StoreSource) Facts(ctx context.Context) (Facts, error) {
	pledges, err := s.Store.ListPledges(ctx, registry.Filter{})
	if err != nil {
		return Facts{}, err
	}
	subs, err := s.Store.ListSubmissions(ctx, registry.Filter{})
	if err != nil {
		return Facts{}, err
	}
	out := Facts{
		Pledges:     make([]PledgeFact, 0, len(pledges)),
		Submissions: make([]SubmissionFact, 0, len(subs)),
	}
	for _, p := range pledges {
		out.Pledges = append(out.Pledges, PledgeFact{UserID: p.UserID, GCUsername: p.GCUsername, State: p.ApproxState, Type: p.CacheType, Size: p.CacheSize})
	}
	for _, sub := range subs {
		out.Submissions = append(out.Submissions, SubmissionFact{UserID: sub.UserID, GCUsername: sub.GCUsername, State: sub.State, Type: sub.Type})
	}
	return out, nil
}

// Public is the unauthenticated summary. State and type breakdowns count
// submissions only.
type Public struct {
	TotalPledged     int                        `json:"totalPledged"`
	TotalSubmissions int                        `json:"totalSubmissions"`
	Rainmakers       int                        `json:"rainmakers"`
	ByState          map[registry.State]int     `json:"byState"`
	ByType           map[registry.CacheType]int `json:"byType"`
}

// StateCount splits a state's pledges and confirmations.
type StateCount struct {
	Pledges       int `json:"pledges"`
	Confirmations int `json:"confirmations"`
}

// TypeCount splits pledged and confirmed counts. Size breakdowns only ever
// fill Pledged since submissions carry no size.
type TypeCount struct {
	Pledged   int `json:"pledged"`
	Confirmed int `json:"confirmed"`
}

// Admin is the full breakdown.
type Admin struct {
	TotalPledges       int                              `json:"totalPledges"`
	TotalCachesPledged int                              `json:"totalCachesPledged"`
	TotalConfirmations int                              `json:"totalConfirmations"`
	TotalPledgers      int                              `json:"totalPledgers"`
	Rainmakers         int                              `json:"rainmakers"`
	StateBreakdown     map[registry.State]StateCount    `json:"stateBreakdown"`
	TypeBreakdown      map[registry.CacheType]TypeCount `json:"typeBreakdown"`
	SizeBreakdown      map[registry.CacheSize]TypeCount `json:"sizeBreakdown"`
}

// Aggregator computes Public and Admin views.
type Aggregator struct {
	src Source
}

func New(src Source) *Aggregator {
	return &Aggregator{src: src}
}

// Public returns totals, the rainmaker count and submission breakdowns.
func (a *Aggregator) Public(ctx context.Context) (Public, error) {
	facts, err := a.src.Facts(ctx)
	if err != nil {
		return Public{}, err
	}
	out := Public{
		TotalPledged:     len(facts.Pledges),
		TotalSubmissions: len(facts.Submissions),
		Rainmakers:       rainmakers(facts),
		ByState:          map[registry.State]int{},
		ByType:           map[registry.CacheType]int{},
	}
	for _, s := range facts.Submissions {
		out.ByState[s.State]++
		out.ByType[s.Type]++
	}
	return out, nil
}

// Admin returns the full breakdown.
func (a *Aggregator) Admin(ctx context.Context) (Admin, error) {
	facts, err := a.src.Facts(ctx)
	if err != nil {
		return Admin{}, err
	}
	out := Admin{
		TotalPledges:       len(facts.Pledges),
		TotalCachesPledged: len(facts.Pledges),
		TotalConfirmations: len(facts.Submissions),
		Rainmakers:         rainmakers(facts),
		StateBreakdown:     map[registry.State]StateCount{},
		TypeBreakdown:      map[registry.CacheType]TypeCount{},
		SizeBreakdown:      map[registry.CacheSize]TypeCount{},
	}
	pledgers := map[string]struct{}{}
	for _, p := range facts.Pledges {
		if p.UserID != "" {
			pledgers[p.UserID] = struct{}{}
		}
		sc := out.StateBreakdown[p.State]
		sc.Pledges++
		out.StateBreakdown[p.State] = sc
		tc := out.TypeBreakdown[p.Type]
		tc.Pledged++
		out.TypeBreakdown[p.Type] = tc
		zc := out.SizeBreakdown[p.Size]
		zc.Pledged++
		out.SizeBreakdown[p.Size] = zc
	}
	for _, s := range facts.Submissions {
		if s.UserID != "" {
			pledgers[s.UserID] = struct{}{}
		}
		sc := out.StateBreakdown[s.State]
		sc.Confirmations++
		out.StateBreakdown[s.State] = sc
		tc := out.TypeBreakdown[s.Type]
		tc.Confirmed++
		out.TypeBreakdown[s.Type] = tc
	}
	out.TotalPledgers = len(pledgers)
	return out, nil
}

// rainmakers counts distinct usernames across pledges and submissions.
func rainmakers(f Facts) int {
	seen := map[string]struct{}{}
	for _, p := range f.Pledges {
		if p.GCUsername != "" {
			seen[p.GCUsername] = struct{}{}
		}
	}
	for _, s := range f.Submissions {
		if s.GCUsername != "" {
			seen[s.GCUsername] = struct{}{}
		}
	}
	return len(seen)
}
