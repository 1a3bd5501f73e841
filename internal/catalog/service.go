package catalog

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"questhunt/internal/models"
)

var (
	ErrQuestNotFound     = errors.New("quest not found")
	ErrStepNotFound      = errors.New("step not found")
	ErrNotCreator        = errors.New("only the quest creator may do this")
	ErrQuestNotEditable  = errors.New("quest is no longer editable")
	ErrDuplicateOrder    = errors.New("order number already used in this quest")
	ErrInvalidStep       = errors.New("step is missing required verification fields")
	ErrEmptyQuest        = errors.New("quest has no steps")
	ErrInvalidTransition = errors.New("invalid quest status transition")
)

// Store is the persistence surface of the catalog, implemented by Repository.
type Store interface {
	GetQuest(questID string) (*models.Quest, error)
	ListSteps(questID string) ([]models.Step, error)
	GetStep(questID, stepID string) (*models.Step, error)
	CreateQuest(quest *models.Quest) error
	CreateStep(step *models.Step) error
	UpdateStep(step *models.Step) error
	UpdateQuestStatus(questID string, from, to models.QuestStatus) (bool, error)
	DeleteQuest(questID string) error
}

// Cache holds published catalog data keyed by quest id.
type Cache interface {
	GetQuest(questID string) (*models.Quest, error)
	SetQuest(quest *models.Quest) error
	DeleteQuest(questID string) error
	GetSteps(questID string) ([]models.Step, error)
	SetSteps(questID string, steps []models.Step) error
	DeleteSteps(questID string) error
}

// Service owns the quest/step catalog. Reads go through the redis cache for
// published quests; steps are immutable after publish so cached entries only
// ever expire, never invalidate.
type Service struct {
	repo  Store
	cache Cache
}

func NewService(repo Store, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) GetQuest(questID string) (*models.Quest, error) {
	if quest, err := s.cache.GetQuest(questID); err == nil {
		return quest, nil
	}

	quest, err := s.repo.GetQuest(questID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}

	if quest.Status == models.QuestPublished {
		if err := s.cache.SetQuest(quest); err != nil {
			log.Printf("Error caching quest %s: %v", questID, err)
		}
	}
	return quest, nil
}

// GetQuestForViewer applies visibility: drafts are visible to their creator
// only; published and archived quests are visible to everyone.
func (s *Service) GetQuestForViewer(questID, viewerID string) (*models.Quest, error) {
	quest, err := s.GetQuest(questID)
	if err != nil {
		return nil, err
	}
	if quest.Status == models.QuestDraft && quest.CreatorID != viewerID {
		return nil, ErrQuestNotFound
	}
	return quest, nil
}

func (s *Service) ListSteps(questID string) ([]models.Step, error) {
	if steps, err := s.cache.GetSteps(questID); err == nil {
		return steps, nil
	}

	steps, err := s.repo.ListSteps(questID)
	if err != nil {
		return nil, err
	}

	quest, err := s.GetQuest(questID)
	if err != nil {
		return nil, err
	}
	if quest.Status == models.QuestPublished {
		if err := s.cache.SetSteps(questID, steps); err != nil {
			log.Printf("Error caching steps for quest %s: %v", questID, err)
		}
	}
	return steps, nil
}

func (s *Service) GetStep(questID, stepID string) (*models.Step, error) {
	steps, err := s.ListSteps(questID)
	if err != nil {
		return nil, err
	}
	for i := range steps {
		if steps[i].ID == stepID {
			return &steps[i], nil
		}
	}
	return nil, ErrStepNotFound
}

// FirstStep returns the step with the lowest order number.
func (s *Service) FirstStep(questID string) (*models.Step, error) {
	steps, err := s.ListSteps(questID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, ErrEmptyQuest
	}
	return &steps[0], nil
}

// NextStep returns the step with the smallest order number strictly greater
// than the current step's, or endOfQuest = true when the current step is the
// last one. End of quest is a signal, not an error.
func (s *Service) NextStep(questID, currentStepID string) (*models.Step, bool, error) {
	steps, err := s.ListSteps(questID)
	if err != nil {
		return nil, false, err
	}
	return stepAfter(steps, currentStepID)
}

// stepAfter walks an order_num-sorted step list and returns the successor of
// the given step, or endOfQuest when it is the last one.
func stepAfter(steps []models.Step, currentStepID string) (*models.Step, bool, error) {
	for i := range steps {
		if steps[i].ID == currentStepID {
			if i == len(steps)-1 {
				return nil, true, nil
			}
			return &steps[i+1], false, nil
		}
	}
	return nil, false, ErrStepNotFound
}

func (s *Service) CreateQuest(creatorID string, req *models.CreateQuestRequest) (*models.Quest, error) {
	quest := &models.Quest{
		ID:            uuid.NewString(),
		CreatorID:     creatorID,
		Title:         req.Title,
		Description:   req.Description,
		CoverImageURL: req.CoverImageURL,
		Status:        models.QuestDraft,
		IsPublic:      req.IsPublic,
	}
	if err := s.repo.CreateQuest(quest); err != nil {
		return nil, err
	}
	return quest, nil
}

// AddStep appends a step to a draft quest. Structural invariants are checked
// here, at write time; reads never repair bad data.
func (s *Service) AddStep(creatorID, questID string, req *models.StepRequest) (*models.Step, error) {
	quest, err := s.editableQuest(creatorID, questID)
	if err != nil {
		return nil, err
	}

	step := &models.Step{
		ID:                 uuid.NewString(),
		QuestID:            quest.ID,
		OrderNum:           req.OrderNum,
		Type:               req.Type,
		Title:              req.Title,
		Content:            req.Content,
		Hint:               req.Hint,
		LocationLat:        req.LocationLat,
		LocationLng:        req.LocationLng,
		LocationRadius:     req.LocationRadius,
		VerificationType:   req.VerificationType,
		VerificationPrompt: req.VerificationPrompt,
		VerificationCode:   req.VerificationCode,
		CreatedAt:          time.Now(),
	}
	if step.VerificationType == "" {
		step.VerificationType = models.VerifyNone
	}

	if err := validateStepFields(step); err != nil {
		return nil, err
	}

	if err := s.repo.CreateStep(step); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateOrder
		}
		return nil, err
	}
	return step, nil
}

// UpdateStep edits a step. While the quest is a draft any field may change.
// After publish only title, content and hint may change: progress records
// hold pointers into the sequence, so structure is frozen.
func (s *Service) UpdateStep(creatorID, questID, stepID string, req *models.StepRequest) (*models.Step, error) {
	quest, err := s.GetQuest(questID)
	if err != nil {
		return nil, err
	}
	if quest.CreatorID != creatorID {
		return nil, ErrNotCreator
	}
	if quest.Status == models.QuestArchived {
		return nil, ErrQuestNotEditable
	}

	step, err := s.repo.GetStep(questID, stepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}

	if quest.Status == models.QuestPublished {
		if structurallyChanged(step, req) {
			return nil, ErrQuestNotEditable
		}
		step.Title = req.Title
		step.Content = req.Content
		step.Hint = req.Hint
		if err := s.repo.UpdateStep(step); err != nil {
			return nil, err
		}
		// Published steps are cached; drop the entry so the text edit shows.
		if err := s.cache.DeleteSteps(questID); err != nil {
			log.Printf("Error dropping step cache for quest %s: %v", questID, err)
		}
		return step, nil
	}

	step.OrderNum = req.OrderNum
	step.Type = req.Type
	step.Title = req.Title
	step.Content = req.Content
	step.Hint = req.Hint
	step.LocationLat = req.LocationLat
	step.LocationLng = req.LocationLng
	step.LocationRadius = req.LocationRadius
	step.VerificationType = req.VerificationType
	if step.VerificationType == "" {
		step.VerificationType = models.VerifyNone
	}
	step.VerificationPrompt = req.VerificationPrompt
	step.VerificationCode = req.VerificationCode

	if err := validateStepFields(step); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStep(step); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateOrder
		}
		return nil, err
	}
	return step, nil
}

// PublishQuest moves draft -> published. A quest with zero steps cannot be
// published, so nothing unplayable ever reaches players.
func (s *Service) PublishQuest(creatorID, questID string) (*models.Quest, error) {
	quest, err := s.repo.GetQuest(questID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	if quest.CreatorID != creatorID {
		return nil, ErrNotCreator
	}
	if quest.Status != models.QuestDraft {
		return nil, ErrInvalidTransition
	}

	steps, err := s.repo.ListSteps(questID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, ErrEmptyQuest
	}
	for i := range steps {
		if err := validateStepFields(&steps[i]); err != nil {
			return nil, err
		}
	}

	moved, err := s.repo.UpdateQuestStatus(questID, models.QuestDraft, models.QuestPublished)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrInvalidTransition
	}

	quest.Status = models.QuestPublished
	if err := s.cache.SetQuest(quest); err != nil {
		log.Printf("Error caching quest %s on publish: %v", questID, err)
	}
	if err := s.cache.SetSteps(questID, steps); err != nil {
		log.Printf("Error caching steps for quest %s on publish: %v", questID, err)
	}
	log.Printf("Published quest %s with %d steps", questID, len(steps))
	return quest, nil
}

// ArchiveQuest moves published -> archived. Archiving stops new starts; there
// is no way back.
func (s *Service) ArchiveQuest(creatorID, questID string) (*models.Quest, error) {
	quest, err := s.repo.GetQuest(questID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	if quest.CreatorID != creatorID {
		return nil, ErrNotCreator
	}
	if quest.Status != models.QuestPublished {
		return nil, ErrInvalidTransition
	}

	moved, err := s.repo.UpdateQuestStatus(questID, models.QuestPublished, models.QuestArchived)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrInvalidTransition
	}

	quest.Status = models.QuestArchived
	if err := s.cache.DeleteQuest(questID); err != nil {
		log.Printf("Error dropping cached quest %s: %v", questID, err)
	}
	return quest, nil
}

// DeleteQuest removes a draft quest and, cascading, its steps. Published and
// archived quests are never deleted: progress records point into them.
func (s *Service) DeleteQuest(creatorID, questID string) error {
	_, err := s.editableQuest(creatorID, questID)
	if err != nil {
		return err
	}
	return s.repo.DeleteQuest(questID)
}

func (s *Service) editableQuest(creatorID, questID string) (*models.Quest, error) {
	quest, err := s.repo.GetQuest(questID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestNotFound
		}
		return nil, err
	}
	if quest.CreatorID != creatorID {
		return nil, ErrNotCreator
	}
	if quest.Status != models.QuestDraft {
		return nil, ErrQuestNotEditable
	}
	return quest, nil
}

// validateStepFields enforces the per-type verification requirements. A
// violation is fatal to the write, never coerced.
func validateStepFields(step *models.Step) error {
	switch step.VerificationType {
	case models.VerifyNone:
		return nil
	case models.VerifyLocation:
		if step.LocationLat == nil || step.LocationLng == nil || step.LocationRadius == nil {
			return ErrInvalidStep
		}
	case models.VerifyCode:
		if step.VerificationCode == "" {
			return ErrInvalidStep
		}
	case models.VerifyPhoto:
		if step.VerificationPrompt == "" {
			return ErrInvalidStep
		}
	default:
		return ErrInvalidStep
	}
	return nil
}

func structurallyChanged(step *models.Step, req *models.StepRequest) bool {
	if req.OrderNum != step.OrderNum || req.Type != step.Type {
		return true
	}
	if req.VerificationType != step.VerificationType {
		return true
	}
	if !floatPtrEqual(req.LocationLat, step.LocationLat) ||
		!floatPtrEqual(req.LocationLng, step.LocationLng) ||
		!intPtrEqual(req.LocationRadius, step.LocationRadius) {
		return true
	}
	return req.VerificationPrompt != step.VerificationPrompt ||
		req.VerificationCode != step.VerificationCode
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
