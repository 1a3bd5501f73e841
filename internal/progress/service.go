package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"questhunt/internal/catalog"
	"questhunt/internal/ledger"
	"questhunt/internal/models"
	"questhunt/internal/verify"
)

var (
	ErrProgressNotFound = errors.New("progress not found")
	ErrProgressTerminal = errors.New("progress is no longer active")
	ErrQuestNotPlayable = errors.New("quest is not playable")
)

// errActiveRunExists reports that the active-run unique index rejected a
// second concurrent start. It never leaves the package: Start resolves it by
// handing back the winner's run.
var errActiveRunExists = errors.New("active run already exists")

const (
	ResultAdvanced  = "advanced"
	ResultCompleted = "completed"
	ResultRejected  = "rejected"
	ResultPending   = "pending"
)

// SubmitResult is what a submission comes back with. Rejected and pending
// results carry a reason and leave all state untouched.
type SubmitResult struct {
	Result      string
	NextStep    *models.Step
	Reason      verify.Reason
	Explanation string
}

// Catalog is the read surface of the quest/step catalog the tracker needs.
type Catalog interface {
	GetQuest(questID string) (*models.Quest, error)
	FirstStep(questID string) (*models.Step, error)
	GetStep(questID, stepID string) (*models.Step, error)
	NextStep(questID, currentStepID string) (*models.Step, bool, error)
}

// Store persists progress records and commits completions atomically with
// their advancement.
type Store interface {
	GetProgress(id string) (*models.Progress, error)
	FindActive(userID, questID string) (*models.Progress, error)
	Create(progress *models.Progress) error
	Abandon(id string) (bool, error)
	CommitCompletion(progressID string, completion *models.Completion, nextStepID *string, completedAt *time.Time) error
}

// Verifier checks submitted evidence against a step.
type Verifier interface {
	Verify(ctx context.Context, step *models.Step, evidence models.Evidence) (verify.Verdict, error)
}

// Ledger is the read surface of the completion audit trail.
type Ledger interface {
	ListFor(progressID string) ([]models.Completion, error)
}

// Notifier pushes progress events to the player's connected devices.
type Notifier interface {
	PublishProgress(progressID string, eventType string, data interface{})
}

type Service struct {
	store    Store
	catalog  Catalog
	verifier Verifier
	ledger   Ledger
	notifier Notifier
}

func NewService(store Store, cat Catalog, verifier Verifier, led Ledger, notifier Notifier) *Service {
	return &Service{
		store:    store,
		catalog:  cat,
		verifier: verifier,
		ledger:   led,
		notifier: notifier,
	}
}

// Start begins a quest run for a user, pointing at the step with the lowest
// order number. Start is idempotent: an existing active run is returned
// instead of creating a duplicate.
func (s *Service) Start(userID, questID string) (*models.Progress, *models.Step, error) {
	quest, err := s.catalog.GetQuest(questID)
	if err != nil {
		return nil, nil, err
	}
	if !playable(quest) {
		return nil, nil, ErrQuestNotPlayable
	}

	existing, step, err := s.resumeActive(userID, questID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return existing, step, nil
	}

	first, err := s.catalog.FirstStep(questID)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyQuest) {
			return nil, nil, ErrQuestNotPlayable
		}
		return nil, nil, err
	}

	progress := &models.Progress{
		ID:            uuid.NewString(),
		UserID:        userID,
		QuestID:       questID,
		CurrentStepID: &first.ID,
		Status:        models.ProgressActive,
		StartedAt:     time.Now(),
	}
	if err := s.store.Create(progress); err != nil {
		if errors.Is(err, errActiveRunExists) {
			// Lost a concurrent start for the same quest; the winner's row is
			// committed now, so return that run instead.
			winner, step, rerr := s.resumeActive(userID, questID)
			if rerr != nil {
				return nil, nil, rerr
			}
			if winner != nil {
				return winner, step, nil
			}
		}
		return nil, nil, err
	}

	log.Printf("User %s started quest %s (progress %s)", userID, questID, progress.ID)
	return progress, first, nil
}

// resumeActive returns the user's active run for a quest together with its
// current step, or nil when there is none.
func (s *Service) resumeActive(userID, questID string) (*models.Progress, *models.Step, error) {
	existing, err := s.store.FindActive(userID, questID)
	if err != nil || existing == nil {
		return nil, nil, err
	}
	if existing.CurrentStepID == nil {
		return nil, nil, fmt.Errorf("progress %s has no current step", existing.ID)
	}
	step, err := s.catalog.GetStep(questID, *existing.CurrentStepID)
	if err != nil {
		return nil, nil, err
	}
	return existing, step, nil
}

// Submit checks evidence against the current step and, on acceptance,
// atomically records the completion and advances (or completes) the run.
// Rejections and pending reviews mutate nothing; the player may retry
// without limit.
func (s *Service) Submit(ctx context.Context, userID, progressID string, evidence models.Evidence) (*SubmitResult, error) {
	progress, err := s.store.GetProgress(progressID)
	if err != nil {
		return nil, err
	}
	if progress.UserID != userID {
		return nil, ErrProgressNotFound
	}
	if progress.Status != models.ProgressActive {
		return nil, ErrProgressTerminal
	}
	if progress.CurrentStepID == nil {
		return nil, fmt.Errorf("progress %s has no current step", progress.ID)
	}

	step, err := s.catalog.GetStep(progress.QuestID, *progress.CurrentStepID)
	if err != nil {
		return nil, err
	}

	// Verification runs before the commit transaction. The photo round-trip
	// can take seconds and must not hold the progress row.
	verdict, err := s.verifier.Verify(ctx, step, evidence)
	if err != nil {
		return nil, err
	}

	switch verdict.Outcome {
	case verify.Rejected:
		return &SubmitResult{
			Result:      ResultRejected,
			Reason:      verdict.Reason,
			Explanation: verdict.AIResponse,
		}, nil
	case verify.Pending:
		return &SubmitResult{Result: ResultPending, Reason: verdict.Reason}, nil
	}

	data, err := json.Marshal(verdict.Evidence)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	completion := &models.Completion{
		ID:               uuid.NewString(),
		ProgressID:       progress.ID,
		StepID:           step.ID,
		VerifiedAt:       now,
		VerificationData: datatypes.JSON(data),
		AIResponse:       verdict.AIResponse,
	}

	next, endOfQuest, err := s.catalog.NextStep(progress.QuestID, step.ID)
	if err != nil {
		return nil, err
	}

	var nextStepID *string
	var completedAt *time.Time
	if endOfQuest {
		completedAt = &now
	} else {
		nextStepID = &next.ID
	}

	err = s.store.CommitCompletion(progress.ID, completion, nextStepID, completedAt)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		// Double submit for a step that is already recorded: answer with the
		// recorded outcome instead of re-verifying or re-advancing.
		return s.recordedOutcome(progress.QuestID, progress.ID)
	}
	if err != nil {
		return nil, err
	}

	if endOfQuest {
		log.Printf("User %s completed quest %s (progress %s)", userID, progress.QuestID, progress.ID)
		s.notifier.PublishProgress(progress.ID, "quest_completed", map[string]interface{}{
			"progress_id": progress.ID,
			"quest_id":    progress.QuestID,
		})
		return &SubmitResult{Result: ResultCompleted}, nil
	}

	s.notifier.PublishProgress(progress.ID, "step_advanced", map[string]interface{}{
		"progress_id": progress.ID,
		"step_id":     next.ID,
		"order_num":   next.OrderNum,
	})
	return &SubmitResult{Result: ResultAdvanced, NextStep: next}, nil
}

// Abandon ends an active run without touching the completion ledger.
func (s *Service) Abandon(userID, progressID string) (*models.Progress, error) {
	progress, err := s.store.GetProgress(progressID)
	if err != nil {
		return nil, err
	}
	if progress.UserID != userID {
		return nil, ErrProgressNotFound
	}
	if progress.Status != models.ProgressActive {
		return nil, ErrProgressTerminal
	}

	abandoned, err := s.store.Abandon(progressID)
	if err != nil {
		return nil, err
	}
	if !abandoned {
		return nil, ErrProgressTerminal
	}

	progress.Status = models.ProgressAbandoned
	s.notifier.PublishProgress(progress.ID, "quest_abandoned", map[string]interface{}{
		"progress_id": progress.ID,
		"quest_id":    progress.QuestID,
	})
	return progress, nil
}

// Get returns a progress record with its completed-step history. Terminal
// records stay readable forever.
func (s *Service) Get(userID, progressID string) (*models.Progress, []models.Completion, error) {
	progress, err := s.store.GetProgress(progressID)
	if err != nil {
		return nil, nil, err
	}
	if progress.UserID != userID {
		return nil, nil, ErrProgressNotFound
	}

	completions, err := s.ledger.ListFor(progressID)
	if err != nil {
		return nil, nil, err
	}
	return progress, completions, nil
}

// recordedOutcome reloads the progress and answers as if the duplicate
// submission were freshly accepted.
func (s *Service) recordedOutcome(questID, progressID string) (*SubmitResult, error) {
	progress, err := s.store.GetProgress(progressID)
	if err != nil {
		return nil, err
	}
	if progress.Status == models.ProgressCompleted {
		return &SubmitResult{Result: ResultCompleted}, nil
	}
	if progress.CurrentStepID == nil {
		return nil, fmt.Errorf("progress %s has no current step", progress.ID)
	}
	step, err := s.catalog.GetStep(questID, *progress.CurrentStepID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Result: ResultAdvanced, NextStep: step}, nil
}

// playable reports whether new runs may start. Published quests are playable
// by anyone; public drafts are playable while their creator iterates;
// archived quests never accept new runs.
func playable(quest *models.Quest) bool {
	switch quest.Status {
	case models.QuestPublished:
		return true
	case models.QuestDraft:
		return quest.IsPublic
	default:
		return false
	}
}
