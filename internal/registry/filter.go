package registry

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Filter narrows admin lists and exports. Empty fields do not filter. Text
// matches are case-insensitive substrings; From and To bound CreatedAt
// inclusively.
type Filter struct {
	UserID     string
	State      State
	CacheType  CacheType
	GCUsername string
	Search     string
	From       *time.Time
	To         *time.Time
}

// FilterFromQuery reads state, cacheType, gcUsername, search, startDate and
// endDate. Dates are RFC 3339 or YYYY-MM-DD.
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		State:      State(strings.TrimSpace(q.Get("state"))),
		CacheType:  CacheType(strings.TrimSpace(q.Get("cacheType"))),
		GCUsername: strings.TrimSpace(q.Get("gcUsername")),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.From, err = ParseQueryDate(q.Get("startDate")); err != nil {
		return Filter{}, fmt.Errorf("%w: startDate", ErrInvalidInput)
	}
	if f.To, err = ParseQueryDate(q.Get("endDate")); err != nil {
		return Filter{}, fmt.Errorf("%w: endDate", ErrInvalidInput)
	}
	return f, nil
}

// ParseQueryDate reads an optional query date; blank yields nil.
func ParseQueryDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := ParseHiddenDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (f Filter) inRange(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && t.After(*f.To) {
		return false
	}
	return true
}

// MatchPledge applies f to a pledge. Search covers username, title, suburb
// and concept notes.
func (f Filter) MatchPledge(p Pledge) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.State != "" && p.ApproxState != f.State {
		return false
	}
	if f.CacheType != "" && p.CacheType != f.CacheType {
		return false
	}
	if f.GCUsername != "" && !containsFold(p.GCUsername, f.GCUsername) {
		return false
	}
	if f.Search != "" && !anyContainsFold(f.Search, p.GCUsername, p.Title, p.ApproxSuburb, p.ConceptNotes) {
		return false
	}
	return f.inRange(p.CreatedAt)
}

// MatchSubmission applies f to a submission. Search covers username, GC
// code, cache name, suburb and notes.
func (f Filter) MatchSubmission(s Submission) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.CacheType != "" && s.Type != f.CacheType {
		return false
	}
	if f.GCUsername != "" && !containsFold(s.GCUsername, f.GCUsername) {
		return false
	}
	if f.Search != "" && !anyContainsFold(f.Search, s.GCUsername, s.GCCode, s.CacheName, s.Suburb, s.Notes) {
		return false
	}
	return f.inRange(s.CreatedAt)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func anyContainsFold(sub string, fields ...string) bool {
	for _, f := range fields {
		if containsFold(f, sub) {
			return true
		}
	}
	return false
}
