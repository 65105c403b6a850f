package registry

import (
	"time"
)

// CacheType is the geocache type of a pledge or submission.
type CacheType string

const (
	TypeTraditional CacheType = "TRADITIONAL"
	TypeMulti       CacheType = "MULTI"
	TypeMystery     CacheType = "MYSTERY"
	TypeLetterbox   CacheType = "LETTERBOX"
	TypeWherigo     CacheType = "WHERIGO"
	TypeVirtual     CacheType = "VIRTUAL"
)

// CacheTypes lists every type in display order.
var CacheTypes = []CacheType{TypeTraditional, TypeMulti, TypeMystery, TypeLetterbox, TypeWherigo, TypeVirtual}

// CacheSize is only carried by pledges.
type CacheSize string

const (
	SizeNano    CacheSize = "NANO"
	SizeMicro   CacheSize = "MICRO"
	SizeSmall   CacheSize = "SMALL"
	SizeRegular CacheSize = "REGULAR"
	SizeLarge   CacheSize = "LARGE"
	SizeOther   CacheSize = "OTHER"
)

var CacheSizes = []CacheSize{SizeNano, SizeMicro, SizeSmall, SizeRegular, SizeLarge, SizeOther}

// State is an Australian state or territory.
type State string

const (
	StateACT State = "ACT"
	StateNSW State = "NSW"
	StateNT  State = "NT"
	StateQLD State = "QLD"
	StateSA  State = "SA"
	StateTAS State = "TAS"
	StateVIC State = "VIC"
	StateWA  State = "WA"
)

var States = []State{StateACT, StateNSW, StateNT, StateQLD, StateSA, StateTAS, StateVIC, StateWA}

// PledgeStatus moves CONCEPT -> HIDDEN on confirm and back on submission delete.
type PledgeStatus string

const (
	StatusConcept PledgeStatus = "CONCEPT"
	StatusHidden  PledgeStatus = "HIDDEN"
)

// User is created at first sign-in.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	GCUsername string    `json:"gcUsername,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Pledge is an intent to hide a cache. UserID is empty for legacy anonymous
// pledges, which only admins can reach.
type Pledge struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId,omitempty"`
	GCUsername   string       `json:"gcUsername"`
	Title        string       `json:"title,omitempty"`
	CacheType    CacheType    `json:"cacheType"`
	CacheSize    CacheSize    `json:"cacheSize"`
	ApproxSuburb string       `json:"approxSuburb"`
	ApproxState  State        `json:"approxState"`
	ConceptNotes string       `json:"conceptNotes,omitempty"`
	Images       Images       `json:"images"`
	Status       PledgeStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Submission is a published cache, linked to exactly one pledge.
type Submission struct {
	ID         string    `json:"id"`
	PledgeID   string    `json:"pledgeId"`
	UserID     string    `json:"userId,omitempty"`
	GCUsername string    `json:"gcUsername"`
	GCCode     string    `json:"gcCode"`
	CacheName  string    `json:"cacheName"`
	Suburb     string    `json:"suburb"`
	State      State     `json:"state"`
	Difficulty float64   `json:"difficulty"`
	Terrain    float64   `json:"terrain"`
	Type       CacheType `json:"type"`
	HiddenDate time.Time `json:"hiddenDate"`
	Notes      string    `json:"notes,omitempty"`
	Images     Images    `json:"images"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PledgeRecord is a pledge with its owner and submission, if any.
type PledgeRecord struct {
	Pledge
	User       *User       `json:"user,omitempty"`
	Submission *Submission `json:"submission"`
}

// SubmissionRecord is a submission with its owner and parent pledge.
type SubmissionRecord struct {
	Submission
	User   *User   `json:"user,omitempty"`
	Pledge *Pledge `json:"pledge,omitempty"`
}

// Profile is what a signed-in user sees about themselves.
type Profile struct {
	User
	Admin bool `json:"isAdmin"`
}

// ManageView is everything an edit link exposes.
type ManageView struct {
	User        User               `json:"user"`
	Pledges     []PledgeRecord     `json:"pledges"`
	Submissions []SubmissionRecord `json:"submissions"`
}

// Activity is a lifecycle event stripped of personal data.
type Activity struct {
	Kind      string    `json:"kind"`
	State     State     `json:"state"`
	CacheType CacheType `json:"cacheType"`
	At        time.Time `json:"at"`
}

// Activity kinds.
const (
	ActivityPledged     = "pledge.created"
	ActivityConfirmed   = "pledge.confirmed"
	ActivityUnconfirmed = "pledge.unconfirmed"
)

// GalleryImage is one image in the admin gallery.
type GalleryImage struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Source     string    `json:"source"`
	GCUsername string    `json:"gcUsername"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"createdAt"`
}
