package verify

import (
	"context"
	"errors"

	"questhunt/internal/models"
	"questhunt/pkg/review"
)

// verifyPhoto hands the photo reference to the external reviewer together
// with the step's prompt. A timed-out or inconclusive review is Pending:
// retryable, never a failure, and never something that advances progress.
func (s *Service) verifyPhoto(ctx context.Context, step *models.Step, ev models.Evidence) (Verdict, error) {
	if ev.PhotoURL == "" {
		return rejected(ReasonMissingEvidence), nil
	}
	if s.reviewer == nil {
		return Verdict{}, errors.New("photo review is not configured")
	}

	result, err := s.reviewer.Review(ctx, ev.PhotoURL, step.VerificationPrompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pending(ReasonReviewTimeout), nil
		}
		return Verdict{}, err
	}

	switch result.Verdict {
	case review.VerdictAccept:
		v := accepted(models.Evidence{PhotoURL: ev.PhotoURL})
		v.AIResponse = result.Explanation
		return v, nil
	case review.VerdictReject:
		v := rejected(ReasonNotMatching)
		v.AIResponse = result.Explanation
		return v, nil
	default:
		// The reviewer could not decide; treat like a timeout and let the
		// player retry or escalate to manual review.
		return pending(ReasonReviewUncertain), nil
	}
}
