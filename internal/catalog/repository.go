package catalog

import (
	"log"

	"gorm.io/gorm"

	"questhunt/internal/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetQuest(questID string) (*models.Quest, error) {
	var quest models.Quest
	err := r.db.First(&quest, "id = ?", questID).Error
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

// ListSteps returns the quest's steps in traversal order. Ordering always
// comes from order_num, never from insertion time.
func (r *Repository) ListSteps(questID string) ([]models.Step, error) {
	var steps []models.Step
	err := r.db.Where("quest_id = ?", questID).
		Order("order_num asc").
		Find(&steps).Error
	if err != nil {
		log.Printf("Error listing steps for quest %s: %v", questID, err)
		return nil, err
	}
	return steps, nil
}

// GetStep looks a step up within a quest. A step id from a different quest is
// not found, which blocks cross-quest step injection from tampered requests.
func (r *Repository) GetStep(questID, stepID string) (*models.Step, error) {
	var step models.Step
	err := r.db.Where("id = ? AND quest_id = ?", stepID, questID).First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *Repository) CreateQuest(quest *models.Quest) error {
	err := r.db.Create(quest).Error
	if err != nil {
		log.Printf("Error creating quest: %v", err)
		return err
	}
	log.Printf("Created quest %s", quest.ID)
	return nil
}

// CreateStep inserts a step. The unique index on (quest_id, order_num)
// rejects duplicate order numbers at write time; callers see
// gorm.ErrDuplicatedKey.
func (r *Repository) CreateStep(step *models.Step) error {
	return r.db.Create(step).Error
}

func (r *Repository) UpdateStep(step *models.Step) error {
	return r.db.Save(step).Error
}

// UpdateQuestStatus moves a quest from one lifecycle status to another. The
// status guard in the WHERE clause makes concurrent transitions race-safe:
// only one writer observes RowsAffected == 1.
func (r *Repository) UpdateQuestStatus(questID string, from, to models.QuestStatus) (bool, error) {
	result := r.db.Model(&models.Quest{}).
		Where("id = ? AND status = ?", questID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteQuest removes a quest and, through the FK cascade, all of its steps.
func (r *Repository) DeleteQuest(questID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quest_id = ?", questID).Delete(&models.Step{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Quest{}, "id = ?", questID).Error
	})
}
