package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questhunt/internal/catalog"
	"questhunt/internal/ledger"
	"questhunt/internal/models"
	"questhunt/internal/verify"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

type fakeCatalog struct {
	quests map[string]*models.Quest
	steps  map[string][]models.Step // sorted by order_num
}

func (f *fakeCatalog) GetQuest(questID string) (*models.Quest, error) {
	quest, ok := f.quests[questID]
	if !ok {
		return nil, catalog.ErrQuestNotFound
	}
	return quest, nil
}

func (f *fakeCatalog) FirstStep(questID string) (*models.Step, error) {
	steps := f.steps[questID]
	if len(steps) == 0 {
		return nil, catalog.ErrEmptyQuest
	}
	return &steps[0], nil
}

func (f *fakeCatalog) GetStep(questID, stepID string) (*models.Step, error) {
	for i, s := range f.steps[questID] {
		if s.ID == stepID {
			return &f.steps[questID][i], nil
		}
	}
	return nil, catalog.ErrStepNotFound
}

func (f *fakeCatalog) NextStep(questID, currentStepID string) (*models.Step, bool, error) {
	steps := f.steps[questID]
	for i, s := range steps {
		if s.ID == currentStepID {
			if i == len(steps)-1 {
				return nil, true, nil
			}
			return &steps[i+1], false, nil
		}
	}
	return nil, false, catalog.ErrStepNotFound
}

// fakeStore keeps progress and completions in memory with the same
// uniqueness discipline the database enforces: one completion per
// (progress, step) and one active run per (user, quest). staleSnapshot
// replays the loser's side of a concurrent double-submit, missActiveReads
// the loser's side of a concurrent double-start.
type fakeStore struct {
	progresses      map[string]*models.Progress
	completions     []models.Completion
	staleSnapshot   *models.Progress
	staleReads      int
	missActiveReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{progresses: make(map[string]*models.Progress)}
}

func (f *fakeStore) GetProgress(id string) (*models.Progress, error) {
	if f.staleReads > 0 && f.staleSnapshot != nil && f.staleSnapshot.ID == id {
		f.staleReads--
		copied := *f.staleSnapshot
		return &copied, nil
	}
	progress, ok := f.progresses[id]
	if !ok {
		return nil, ErrProgressNotFound
	}
	copied := *progress
	return &copied, nil
}

func (f *fakeStore) FindActive(userID, questID string) (*models.Progress, error) {
	if f.missActiveReads > 0 {
		f.missActiveReads--
		return nil, nil
	}
	for _, p := range f.progresses {
		if p.UserID == userID && p.QuestID == questID && p.Status == models.ProgressActive {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Create(progress *models.Progress) error {
	for _, p := range f.progresses {
		if p.UserID == progress.UserID && p.QuestID == progress.QuestID && p.Status == models.ProgressActive {
			return errActiveRunExists
		}
	}
	copied := *progress
	f.progresses[progress.ID] = &copied
	return nil
}

func (f *fakeStore) Abandon(id string) (bool, error) {
	progress, ok := f.progresses[id]
	if !ok || progress.Status != models.ProgressActive {
		return false, nil
	}
	progress.Status = models.ProgressAbandoned
	return true, nil
}

func (f *fakeStore) CommitCompletion(progressID string, completion *models.Completion, nextStepID *string, completedAt *time.Time) error {
	for _, c := range f.completions {
		if c.ProgressID == progressID && c.StepID == completion.StepID {
			return ledger.ErrAlreadyExists
		}
	}

	progress, ok := f.progresses[progressID]
	if !ok || progress.Status != models.ProgressActive {
		return ErrProgressTerminal
	}

	f.completions = append(f.completions, *completion)
	if completedAt != nil {
		progress.Status = models.ProgressCompleted
		progress.CompletedAt = completedAt
	} else {
		progress.CurrentStepID = nextStepID
	}
	return nil
}

func (f *fakeStore) ListFor(progressID string) ([]models.Completion, error) {
	var out []models.Completion
	for _, c := range f.completions {
		if c.ProgressID == progressID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) PublishProgress(progressID string, eventType string, data interface{}) {
	f.events = append(f.events, eventType)
}

func parkAdventure() *fakeCatalog {
	return &fakeCatalog{
		quests: map[string]*models.Quest{
			"park-adventure": {ID: "park-adventure", CreatorID: "creator", Status: models.QuestPublished},
		},
		steps: map[string][]models.Step{
			"park-adventure": {
				{ID: "s1", QuestID: "park-adventure", OrderNum: 1, Type: models.StepStory, VerificationType: models.VerifyNone},
				{ID: "s2", QuestID: "park-adventure", OrderNum: 2, Type: models.StepLocation, VerificationType: models.VerifyNone},
				{ID: "s3", QuestID: "park-adventure", OrderNum: 3, Type: models.StepPhoto, VerificationType: models.VerifyNone},
				{ID: "s4", QuestID: "park-adventure", OrderNum: 4, Type: models.StepClue, VerificationType: models.VerifyNone},
				{ID: "s5", QuestID: "park-adventure", OrderNum: 5, Type: models.StepStory, VerificationType: models.VerifyNone},
			},
		},
	}
}

func newTestService(cat *fakeCatalog, store *fakeStore) (*Service, *fakeNotifier) {
	notifier := &fakeNotifier{}
	svc := NewService(store, cat, verify.NewService(nil), store, notifier)
	return svc, notifier
}

func TestStartPointsAtLowestOrderStep(t *testing.T) {
	svc, _ := newTestService(parkAdventure(), newFakeStore())

	progress, step, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)
	assert.Equal(t, models.ProgressActive, progress.Status)
	assert.Equal(t, "s1", step.ID)
	assert.Equal(t, "s1", *progress.CurrentStepID)
}

func TestStartIsIdempotent(t *testing.T) {
	svc, _ := newTestService(parkAdventure(), newFakeStore())

	first, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)
	second, step, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "s1", step.ID)
}

func TestConcurrentStartLoserGetsWinnersRun(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(parkAdventure(), store)

	winner, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	// The loser's pre-create check ran before the winner's row landed; its
	// insert then hits the active-run unique index and resolves to the winner.
	store.missActiveReads = 1
	loser, step, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, loser.ID)
	assert.Equal(t, "s1", step.ID)
	assert.Len(t, store.progresses, 1)
}

func TestStartRejectsUnplayableQuests(t *testing.T) {
	cat := parkAdventure()
	cat.quests["private-draft"] = &models.Quest{ID: "private-draft", Status: models.QuestDraft}
	cat.quests["retired"] = &models.Quest{ID: "retired", Status: models.QuestArchived}
	svc, _ := newTestService(cat, newFakeStore())

	_, _, err := svc.Start("alice", "private-draft")
	assert.ErrorIs(t, err, ErrQuestNotPlayable)

	_, _, err = svc.Start("alice", "retired")
	assert.ErrorIs(t, err, ErrQuestNotPlayable)

	_, _, err = svc.Start("alice", "no-such-quest")
	assert.ErrorIs(t, err, catalog.ErrQuestNotFound)
}

func TestStartRejectsQuestWithoutSteps(t *testing.T) {
	cat := &fakeCatalog{
		quests: map[string]*models.Quest{
			"hollow": {ID: "hollow", Status: models.QuestDraft, IsPublic: true},
		},
		steps: map[string][]models.Step{"hollow": {}},
	}
	svc, _ := newTestService(cat, newFakeStore())

	_, _, err := svc.Start("alice", "hollow")
	assert.ErrorIs(t, err, ErrQuestNotPlayable)
}

func TestParkAdventureFullTraversal(t *testing.T) {
	store := newFakeStore()
	svc, notifier := newTestService(parkAdventure(), store)

	progress, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	ctx := context.Background()
	expected := []string{"s2", "s3", "s4", "s5"}
	for _, next := range expected {
		result, err := svc.Submit(ctx, "alice", progress.ID, models.Evidence{})
		require.NoError(t, err)
		assert.Equal(t, ResultAdvanced, result.Result)
		assert.Equal(t, next, result.NextStep.ID)
	}

	result, err := svc.Submit(ctx, "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, result.Result)

	final := store.progresses[progress.ID]
	assert.Equal(t, models.ProgressCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Len(t, store.completions, 5)
	assert.Equal(t, "quest_completed", notifier.events[len(notifier.events)-1])

	// The run is terminal now; nothing more may be submitted.
	_, err = svc.Submit(ctx, "alice", progress.ID, models.Evidence{})
	assert.ErrorIs(t, err, ErrProgressTerminal)
}

func TestSubmitRejectionLeavesStateUntouched(t *testing.T) {
	cat := &fakeCatalog{
		quests: map[string]*models.Quest{
			"landmarks": {ID: "landmarks", Status: models.QuestPublished},
		},
		steps: map[string][]models.Step{
			"landmarks": {
				{
					ID: "clock-tower", QuestID: "landmarks", OrderNum: 1,
					Type:             models.StepLocation,
					VerificationType: models.VerifyLocation,
					LocationLat:      floatPtr(40.0),
					LocationLng:      floatPtr(-73.0),
					LocationRadius:   intPtr(50),
				},
				{ID: "finale", QuestID: "landmarks", OrderNum: 2, Type: models.StepStory, VerificationType: models.VerifyNone},
			},
		},
	}
	store := newFakeStore()
	svc, notifier := newTestService(cat, store)

	progress, _, err := svc.Start("alice", "landmarks")
	require.NoError(t, err)

	// ~1.1 km away from the clock tower.
	result, err := svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{
		Lat: floatPtr(40.01), Lng: floatPtr(-73.0),
	})
	require.NoError(t, err)
	assert.Equal(t, ResultRejected, result.Result)
	assert.Equal(t, verify.ReasonTooFar, result.Reason)
	assert.Empty(t, store.completions)
	assert.Equal(t, "clock-tower", *store.progresses[progress.ID].CurrentStepID)
	assert.Empty(t, notifier.events)

	// Retrying from the right spot works; rejections cost nothing.
	result, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{
		Lat: floatPtr(40.0), Lng: floatPtr(-73.0),
	})
	require.NoError(t, err)
	assert.Equal(t, ResultAdvanced, result.Result)
	assert.Equal(t, "finale", result.NextStep.ID)
	assert.Len(t, store.completions, 1)
}

func TestDuplicateSubmitAnswersWithRecordedOutcome(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(parkAdventure(), store)

	progress, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	// Winner's commit already landed: completion for s1 recorded, pointer on
	// s2. The loser still holds the stale active-at-s1 snapshot.
	stale := *store.progresses[progress.ID]
	_, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)

	store.staleSnapshot = &stale
	store.staleReads = 1

	result, err := svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ResultAdvanced, result.Result)
	assert.Equal(t, "s2", result.NextStep.ID)
	assert.Len(t, store.completions, 1)
	assert.Equal(t, "s2", *store.progresses[progress.ID].CurrentStepID)
}

func TestDuplicateSubmitOnFinalStepReportsCompleted(t *testing.T) {
	cat := &fakeCatalog{
		quests: map[string]*models.Quest{
			"one-shot": {ID: "one-shot", Status: models.QuestPublished},
		},
		steps: map[string][]models.Step{
			"one-shot": {
				{ID: "only", QuestID: "one-shot", OrderNum: 1, Type: models.StepStory, VerificationType: models.VerifyNone},
			},
		},
	}
	store := newFakeStore()
	svc, _ := newTestService(cat, store)

	progress, _, err := svc.Start("alice", "one-shot")
	require.NoError(t, err)

	stale := *store.progresses[progress.ID]
	result, err := svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, result.Result)

	store.staleSnapshot = &stale
	store.staleReads = 1

	result, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, result.Result)
	assert.Len(t, store.completions, 1)
}

func TestSubmitByAnotherUserLooksLikeMissingProgress(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(parkAdventure(), store)

	progress, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "mallory", progress.ID, models.Evidence{})
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestAbandon(t *testing.T) {
	store := newFakeStore()
	svc, notifier := newTestService(parkAdventure(), store)

	progress, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)

	abandoned, err := svc.Abandon("alice", progress.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressAbandoned, abandoned.Status)

	// Abandoning never touches the ledger.
	assert.Len(t, store.completions, 1)
	assert.Contains(t, notifier.events, "quest_abandoned")

	_, err = svc.Abandon("alice", progress.ID)
	assert.ErrorIs(t, err, ErrProgressTerminal)

	_, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	assert.ErrorIs(t, err, ErrProgressTerminal)

	// A fresh start after abandoning creates a new run; the old record stays.
	fresh, step, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)
	assert.NotEqual(t, progress.ID, fresh.ID)
	assert.Equal(t, "s1", step.ID)
}

func TestGetReturnsHistory(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(parkAdventure(), store)

	progress, _, err := svc.Start("alice", "park-adventure")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), "alice", progress.ID, models.Evidence{})
	require.NoError(t, err)

	got, completions, err := svc.Get("alice", progress.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3", *got.CurrentStepID)
	assert.Len(t, completions, 2)

	_, _, err = svc.Get("mallory", progress.ID)
	assert.ErrorIs(t, err, ErrProgressNotFound)
}
