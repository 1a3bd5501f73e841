package verify

import (
	"context"
	"fmt"

	"questhunt/internal/models"
	"questhunt/pkg/review"
)

type Outcome string

const (
	Accepted Outcome = "accepted"
	Rejected Outcome = "rejected"
	Pending  Outcome = "pending"
)

// Reason explains a non-accepted verdict to the player. Rejections are
// ordinary values; players may resubmit without limit.
type Reason string

const (
	ReasonTooFar          Reason = "too_far"
	ReasonWrongCode       Reason = "wrong_code"
	ReasonNotMatching     Reason = "not_matching"
	ReasonReviewTimeout   Reason = "review_timeout"
	ReasonReviewUncertain Reason = "review_uncertain"
	ReasonMissingEvidence Reason = "missing_evidence"
)

// Verdict is the outcome of checking submitted evidence against a step.
// Evidence and AIResponse carry what gets persisted into the completion
// ledger when the outcome is Accepted.
type Verdict struct {
	Outcome    Outcome
	Reason     Reason
	Evidence   models.Evidence
	AIResponse string
}

func accepted(ev models.Evidence) Verdict { return Verdict{Outcome: Accepted, Evidence: ev} }
func rejected(reason Reason) Verdict      { return Verdict{Outcome: Rejected, Reason: reason} }
func pending(reason Reason) Verdict       { return Verdict{Outcome: Pending, Reason: reason} }

// Reviewer is the external image-review collaborator.
type Reviewer interface {
	Review(ctx context.Context, photoRef, prompt string) (*review.Result, error)
}

type Service struct {
	reviewer Reviewer
}

func NewService(reviewer Reviewer) *Service {
	return &Service{reviewer: reviewer}
}

// Verify dispatches to the strategy matching the step's verification type.
// The switch is exhaustive over the closed set of types; an unknown type is a
// catalog-integrity error, never a silent pass. A returned error means broken
// catalog data or an unreachable collaborator, not a failed check.
func (s *Service) Verify(ctx context.Context, step *models.Step, evidence models.Evidence) (Verdict, error) {
	switch step.VerificationType {
	case models.VerifyNone:
		return accepted(models.Evidence{}), nil
	case models.VerifyLocation:
		return verifyLocation(step, evidence)
	case models.VerifyCode:
		return verifyCode(step, evidence)
	case models.VerifyPhoto:
		return s.verifyPhoto(ctx, step, evidence)
	default:
		return Verdict{}, fmt.Errorf("unknown verification type %q on step %s", step.VerificationType, step.ID)
	}
}
