// Package ledger is the append-only record of verified step completions.
// Rows are written exclusively by the progress tracker, inside its commit
// transaction, and are never updated or deleted.
package ledger

import (
	"errors"

	"gorm.io/gorm"

	"questhunt/internal/models"
)

// ErrAlreadyExists reports that a completion for this (progress, step) pair
// was already recorded. It is a signal, not a failure: the progress tracker
// uses it to answer duplicate submissions idempotently.
var ErrAlreadyExists = errors.New("completion already recorded")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction, so an
// append can commit atomically with the progress advancement.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Append inserts a completion. The unique index on (progress_id, step_id) is
// the arbiter: a concurrent duplicate comes back as ErrAlreadyExists.
func (r *Repository) Append(completion *models.Completion) error {
	err := r.db.Create(completion).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

// ListFor returns a progress record's completions ordered by verification
// time.
func (r *Repository) ListFor(progressID string) ([]models.Completion, error) {
	var completions []models.Completion
	err := r.db.Where("progress_id = ?", progressID).
		Order("verified_at asc").
		Find(&completions).Error
	if err != nil {
		return nil, err
	}
	return completions, nil
}
