package progress

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"questhunt/internal/ledger"
	"questhunt/internal/models"
)

type Repository struct {
	db     *gorm.DB
	ledger *ledger.Repository
}

func NewRepository(db *gorm.DB, ledger *ledger.Repository) *Repository {
	return &Repository{db: db, ledger: ledger}
}

func (r *Repository) GetProgress(id string) (*models.Progress, error) {
	var progress models.Progress
	err := r.db.First(&progress, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProgressNotFound
		}
		return nil, err
	}
	return &progress, nil
}

// FindActive returns the user's active progress for a quest, or nil when
// there is none. Terminal records are historical and never match.
func (r *Repository) FindActive(userID, questID string) (*models.Progress, error) {
	var progress models.Progress
	err := r.db.Where("user_id = ? AND quest_id = ? AND status = ?",
		userID, questID, models.ProgressActive).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// Create inserts a new run. The partial unique index over active rows
// arbitrates concurrent starts for the same (user, quest); the loser sees
// errActiveRunExists.
func (r *Repository) Create(progress *models.Progress) error {
	err := r.db.Create(progress).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errActiveRunExists
	}
	return err
}

// Abandon marks an active progress abandoned. The status guard in the WHERE
// clause means a racing terminal transition leaves RowsAffected at zero.
func (r *Repository) Abandon(id string) (bool, error) {
	result := r.db.Model(&models.Progress{}).
		Where("id = ? AND status = ?", id, models.ProgressActive).
		Update("status", models.ProgressAbandoned)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CommitCompletion is the single correctness-critical write of the engine:
// the completion insert and the progress advancement commit together or not
// at all. The (progress_id, step_id) unique index arbitrates concurrent
// duplicate accepts; the loser gets ledger.ErrAlreadyExists and the
// transaction rolls back without touching the progress row.
func (r *Repository) CommitCompletion(progressID string, completion *models.Completion, nextStepID *string, completedAt *time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := r.ledger.WithTx(tx).Append(completion); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if completedAt != nil {
			updates["status"] = models.ProgressCompleted
			updates["completed_at"] = *completedAt
		} else {
			updates["current_step_id"] = nextStepID
		}

		result := tx.Model(&models.Progress{}).
			Where("id = ? AND status = ?", progressID, models.ProgressActive).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrProgressTerminal
		}
		return nil
	})
}
