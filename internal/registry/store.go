package registry

import "context"

// Store persists users, pledges and submissions. Implementations must make
// Confirm and DeleteSubmission atomic, and must reject a second submission
// for the same pledge with ErrAlreadySubmitted even when the caller's
// earlier check passed.
type Store interface {
	FindOrCreateUser(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	SetUsername(ctx context.Context, userID, gcUsername string) (User, error)

	CreatePledge(ctx context.Context, p Pledge) (Pledge, error)
	GetPledge(ctx context.Context, id string) (Pledge, error)
	GetPledgeRecord(ctx context.Context, id string) (PledgeRecord, error)
	UpdatePledge(ctx context.Context, p Pledge) (Pledge, error)
	// DeletePledge removes the pledge and its submission.
	DeletePledge(ctx context.Context, id string) error
	ListPledges(ctx context.Context, f Filter) ([]PledgeRecord, error)

	// Confirm inserts s and moves the pledge to HIDDEN with images cleared.
	// The submission's images and gcUsername are taken from the pledge row.
	Confirm(ctx context.Context, s Submission) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	UpdateSubmission(ctx context.Context, s Submission) (Submission, error)
	// DeleteSubmission removes the submission and returns its pledge to
	// CONCEPT. Images are not restored.
	DeleteSubmission(ctx context.Context, id string) error
	ListSubmissions(ctx context.Context, f Filter) ([]SubmissionRecord, error)
}
