// Package export renders admin CSV downloads. The header row is bare, every
// data cell is double-quoted with embedded quotes doubled, and rows are joined
// by "\n" with no trailing newline.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"cachepledge.org/internal/registry"
)

// Kind names an export.
type Kind string

const (
	KindPledges       Kind = "pledges"
	KindSubmissions   Kind = "submissions"
	KindConfirmations Kind = "confirmations"
)

// DefaultPrefix is the event code prepended to file names.
const DefaultPrefix = "irc26"

// ParseKind validates a kind taken from a path or flag.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPledges, KindSubmissions, KindConfirmations:
		return k, true
	}
	return "", false
}

var (
	pledgeHeader       = []string{"ID", "GC Username", "Email", "Title", "Cache Type", "Cache Size", "Suburb", "State", "Status", "Created At", "Concept Notes"}
	submissionHeader   = []string{"ID", "GC Code", "Cache Name", "GC Username", "Email", "Type", "Difficulty", "Terrain", "Suburb", "State", "Hidden Date", "Created At"}
	confirmationHeader = []string{"Username", "Email", "GC Code", "Cache Name", "Type", "Difficulty", "Terrain", "Suburb", "State", "Notes", "Pledge ID", "Created At"}
)

// Filename returns the attachment name. Confirmations have no date stamp.
func Filename(prefix string, kind Kind, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if kind == KindConfirmations {
		return prefix + "-confirmations.csv"
	}
	return prefix + "-" + string(kind) + "-" + now.UTC().Format(time.DateOnly) + ".csv"
}

// WritePledges writes one row per pledge.
func WritePledges(w io.Writer, recs []registry.PledgeRecord) error {
	cw := newWriter(w, pledgeHeader)
	for _, p := range recs {
		cw.row(
			p.ID,
			p.GCUsername,
			userEmail(p.User),
			p.Title,
			string(p.CacheType),
			string(p.CacheSize),
			p.ApproxSuburb,
			string(p.ApproxState),
			string(p.Status),
			isoTime(p.CreatedAt),
			p.ConceptNotes,
		)
	}
	return cw.flush()
}

// WriteSubmissions writes one row per submission.
func WriteSubmissions(w io.Writer, recs []registry.SubmissionRecord) error {
	cw := newWriter(w, submissionHeader)
	for _, s := range recs {
		cw.row(
			s.ID,
			s.GCCode,
			s.CacheName,
			s.GCUsername,
			userEmail(s.User),
			string(s.Type),
			rating(s.Difficulty),
			rating(s.Terrain),
			s.Suburb,
			string(s.State),
			isoTime(s.HiddenDate),
			isoTime(s.CreatedAt),
		)
	}
	return cw.flush()
}

// WriteConfirmations writes the confirmations sheet, keyed by the owner's
// current account username rather than the snapshot on the submission.
func WriteConfirmations(w io.Writer, recs []registry.SubmissionRecord) error {
	cw := newWriter(w, confirmationHeader)
	for _, s := range recs {
		username := ""
		if s.User != nil {
			username = s.User.GCUsername
		}
		cw.row(
			username,
			userEmail(s.User),
			s.GCCode,
			s.CacheName,
			string(s.Type),
			rating(s.Difficulty),
			rating(s.Terrain),
			s.Suburb,
			string(s.State),
			s.Notes,
			s.PledgeID,
			isoTime(s.CreatedAt),
		)
	}
	return cw.flush()
}

type writer struct {
	bw  *bufio.Writer
	err error
}

func newWriter(w io.Writer, header []string) *writer {
	cw := &writer{bw: bufio.NewWriter(w)}
	cw.write(strings.Join(header, ","))
	return cw
}

func (w *writer) row(cells ...string) {
	w.write("\n")
	for i, c := range cells {
		if i > 0 {
			w.write(",")
		}
		w.write(Quote(c))
	}
}

func (w *writer) write(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.bw.WriteString(s)
}

func (w *writer) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.bw.Flush()
}

// Quote wraps a cell in double quotes, doubling any quote inside it.
func Quote(cell string) string {
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

func userEmail(u *registry.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

// isoTime matches the millisecond UTC form the sheets were first built with.
func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func rating(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
