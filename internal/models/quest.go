package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestStatus is the publication lifecycle of a quest. Transitions are
// one-directional: draft -> published -> archived.
type QuestStatus string

const (
	QuestDraft     QuestStatus = "draft"
	QuestPublished QuestStatus = "published"
	QuestArchived  QuestStatus = "archived"
)

// StepType describes what the player is asked to do at a step.
type StepType string

const (
	StepStory    StepType = "story"
	StepClue     StepType = "clue"
	StepLocation StepType = "location"
	StepPhoto    StepType = "photo"
	StepInteract StepType = "interact"
)

// VerificationType selects the check a player must pass to clear a step.
// The set is closed; dispatch over it must be exhaustive.
type VerificationType string

const (
	VerifyNone     VerificationType = "none"
	VerifyLocation VerificationType = "location"
	VerifyPhoto    VerificationType = "photo"
	VerifyCode     VerificationType = "code"
)

// ProgressStatus is the state of one player's run through a quest.
// completed and abandoned are terminal.
type ProgressStatus string

const (
	ProgressActive    ProgressStatus = "active"
	ProgressCompleted ProgressStatus = "completed"
	ProgressAbandoned ProgressStatus = "abandoned"
)

type Quest struct {
	ID            string      `json:"id" gorm:"primaryKey;size:36"`
	CreatorID     string      `json:"creator_id" gorm:"size:36;index;not null"`
	Title         string      `json:"title" gorm:"not null"`
	Description   string      `json:"description"`
	CoverImageURL string      `json:"cover_image_url,omitempty"`
	Status        QuestStatus `json:"status" gorm:"size:16;index;not null;default:draft"`
	IsPublic      bool        `json:"is_public" gorm:"default:false"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	Steps         []Step      `json:"steps,omitempty" gorm:"foreignKey:QuestID;constraint:OnDelete:CASCADE"`
}

// Step is one unit of a quest. OrderNum is unique per quest and defines
// traversal order; insertion time is never used for ordering.
type Step struct {
	ID                 string           `json:"id" gorm:"primaryKey;size:36"`
	QuestID            string           `json:"quest_id" gorm:"size:36;not null;uniqueIndex:idx_steps_quest_order"`
	OrderNum           int              `json:"order_num" gorm:"not null;uniqueIndex:idx_steps_quest_order"`
	Type               StepType         `json:"type" gorm:"size:16;not null"`
	Title              string           `json:"title"`
	Content            string           `json:"content"`
	Hint               string           `json:"hint,omitempty"`
	LocationLat        *float64         `json:"location_lat,omitempty"`
	LocationLng        *float64         `json:"location_lng,omitempty"`
	LocationRadius     *int             `json:"location_radius,omitempty"`
	VerificationType   VerificationType `json:"verification_type" gorm:"size:16;not null;default:none"`
	VerificationPrompt string           `json:"verification_prompt,omitempty"`
	VerificationCode   string           `json:"verification_code,omitempty"` // redacted by StepDTO for non-creators
	CreatedAt          time.Time        `json:"created_at"`
}

// Progress tracks one player's run through one quest. CurrentStepID always
// points at a step of the same quest while the run is active. The partial
// unique index over active rows enforces at most one active run per
// (user, quest); terminal rows accumulate freely.
type Progress struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	UserID        string         `json:"user_id" gorm:"size:36;not null;index:idx_progress_user_quest;uniqueIndex:idx_progress_active,where:status = 'active'"`
	QuestID       string         `json:"quest_id" gorm:"size:36;not null;index:idx_progress_user_quest;uniqueIndex:idx_progress_active"`
	CurrentStepID *string        `json:"current_step_id"`
	Status        ProgressStatus `json:"status" gorm:"size:16;not null;default:active"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Completion is the append-only audit record of one verified step. The
// unique index on (progress_id, step_id) is the arbiter for duplicate
// submissions; rows are never updated or deleted.
type Completion struct {
	ID               string         `json:"id" gorm:"primaryKey;size:36"`
	ProgressID       string         `json:"progress_id" gorm:"size:36;not null;uniqueIndex:idx_completions_progress_step"`
	StepID           string         `json:"step_id" gorm:"size:36;not null;uniqueIndex:idx_completions_progress_step;index"`
	VerifiedAt       time.Time      `json:"verified_at" gorm:"not null"`
	VerificationData datatypes.JSON `json:"verification_data,omitempty"`
	AIResponse       string         `json:"ai_response,omitempty"`
	Progress         *Progress      `json:"-" gorm:"foreignKey:ProgressID;constraint:OnDelete:CASCADE"`
}
