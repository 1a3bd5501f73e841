package verify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questhunt/internal/models"
	"questhunt/pkg/review"
)

type fakeReviewer struct {
	result *review.Result
	err    error

	gotPhotoRef string
	gotPrompt   string
}

func (f *fakeReviewer) Review(ctx context.Context, photoRef, prompt string) (*review.Result, error) {
	f.gotPhotoRef = photoRef
	f.gotPrompt = prompt
	return f.result, f.err
}

func photoStep() *models.Step {
	return &models.Step{
		ID:                 "s1",
		VerificationType:   models.VerifyPhoto,
		VerificationPrompt: "Does the photo show an ornate building detail?",
	}
}

func TestVerifyPhotoAccepted(t *testing.T) {
	reviewer := &fakeReviewer{
		result: &review.Result{Verdict: review.VerdictAccept, Explanation: "Shows a carved cornice."},
	}
	svc := NewService(reviewer)

	verdict, err := svc.Verify(context.Background(), photoStep(), models.Evidence{
		PhotoURL: "https://photos.example.com/abc.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, Accepted, verdict.Outcome)
	assert.Equal(t, "https://photos.example.com/abc.jpg", verdict.Evidence.PhotoURL)
	assert.Equal(t, "Shows a carved cornice.", verdict.AIResponse)
	assert.Equal(t, "Does the photo show an ornate building detail?", reviewer.gotPrompt)
}

func TestVerifyPhotoRejected(t *testing.T) {
	reviewer := &fakeReviewer{
		result: &review.Result{Verdict: review.VerdictReject, Explanation: "Photo shows a parked car."},
	}
	svc := NewService(reviewer)

	verdict, err := svc.Verify(context.Background(), photoStep(), models.Evidence{PhotoURL: "https://photos.example.com/abc.jpg"})
	require.NoError(t, err)
	assert.Equal(t, Rejected, verdict.Outcome)
	assert.Equal(t, ReasonNotMatching, verdict.Reason)
}

func TestVerifyPhotoUncertainIsPending(t *testing.T) {
	reviewer := &fakeReviewer{
		result: &review.Result{Verdict: review.VerdictUncertain},
	}
	svc := NewService(reviewer)

	verdict, err := svc.Verify(context.Background(), photoStep(), models.Evidence{PhotoURL: "https://photos.example.com/abc.jpg"})
	require.NoError(t, err)
	assert.Equal(t, Pending, verdict.Outcome)
	assert.Equal(t, ReasonReviewUncertain, verdict.Reason)
}

func TestVerifyPhotoTimeoutIsPending(t *testing.T) {
	reviewer := &fakeReviewer{
		err: fmt.Errorf("review request: %w", context.DeadlineExceeded),
	}
	svc := NewService(reviewer)

	verdict, err := svc.Verify(context.Background(), photoStep(), models.Evidence{PhotoURL: "https://photos.example.com/abc.jpg"})
	require.NoError(t, err)
	assert.Equal(t, Pending, verdict.Outcome)
	assert.Equal(t, ReasonReviewTimeout, verdict.Reason)
}

func TestVerifyPhotoCollaboratorFailurePropagates(t *testing.T) {
	reviewer := &fakeReviewer{err: errors.New("connection refused")}
	svc := NewService(reviewer)

	_, err := svc.Verify(context.Background(), photoStep(), models.Evidence{PhotoURL: "https://photos.example.com/abc.jpg"})
	assert.Error(t, err)
}

func TestVerifyPhotoMissingReference(t *testing.T) {
	svc := NewService(&fakeReviewer{})

	verdict, err := svc.Verify(context.Background(), photoStep(), models.Evidence{})
	require.NoError(t, err)
	assert.Equal(t, Rejected, verdict.Outcome)
	assert.Equal(t, ReasonMissingEvidence, verdict.Reason)
}
