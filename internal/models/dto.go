package models

// Evidence is what a player submits against the current step. Which fields
// matter depends on the step's verification type; the rest are ignored.
type Evidence struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Code     string   `json:"code,omitempty"`
	PhotoURL string   `json:"photo_url,omitempty" validate:"omitempty,url"`
}

type StepDTO struct {
	ID                 string           `json:"id"`
	QuestID            string           `json:"quest_id"`
	OrderNum           int              `json:"order_num"`
	Type               StepType         `json:"type"`
	Title              string           `json:"title"`
	Content            string           `json:"content"`
	Hint               string           `json:"hint,omitempty"`
	LocationLat        *float64         `json:"location_lat,omitempty"`
	LocationLng        *float64         `json:"location_lng,omitempty"`
	LocationRadius     *int             `json:"location_radius,omitempty"`
	VerificationType   VerificationType `json:"verification_type"`
	VerificationPrompt string           `json:"verification_prompt,omitempty"`
	VerificationCode   string           `json:"verification_code,omitempty"` // creator only
}

// ToDTO renders a step for a client. The verification code is write-only to
// everyone except the quest's creator.
func (s Step) ToDTO(isCreator bool) StepDTO {
	dto := StepDTO{
		ID:                 s.ID,
		QuestID:            s.QuestID,
		OrderNum:           s.OrderNum,
		Type:               s.Type,
		Title:              s.Title,
		Content:            s.Content,
		Hint:               s.Hint,
		LocationLat:        s.LocationLat,
		LocationLng:        s.LocationLng,
		LocationRadius:     s.LocationRadius,
		VerificationType:   s.VerificationType,
		VerificationPrompt: s.VerificationPrompt,
	}
	if isCreator {
		dto.VerificationCode = s.VerificationCode
	}
	return dto
}

type QuestDTO struct {
	ID            string      `json:"id"`
	CreatorID     string      `json:"creator_id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	CoverImageURL string      `json:"cover_image_url,omitempty"`
	Status        QuestStatus `json:"status"`
	IsPublic      bool        `json:"is_public"`
	Steps         []StepDTO   `json:"steps,omitempty"`
}

func (q Quest) ToDTO(isCreator bool) QuestDTO {
	dto := QuestDTO{
		ID:            q.ID,
		CreatorID:     q.CreatorID,
		Title:         q.Title,
		Description:   q.Description,
		CoverImageURL: q.CoverImageURL,
		Status:        q.Status,
		IsPublic:      q.IsPublic,
	}
	for _, s := range q.Steps {
		dto.Steps = append(dto.Steps, s.ToDTO(isCreator))
	}
	return dto
}

type CreateQuestRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	Description   string `json:"description"`
	CoverImageURL string `json:"cover_image_url" validate:"omitempty,url"`
	IsPublic      bool   `json:"is_public"`
}

type StepRequest struct {
	OrderNum           int              `json:"order_num" validate:"required,min=1"`
	Type               StepType         `json:"type" validate:"required,oneof=story clue location photo interact"`
	Title              string           `json:"title" validate:"max=200"`
	Content            string           `json:"content"`
	Hint               string           `json:"hint"`
	LocationLat        *float64         `json:"location_lat" validate:"omitempty,min=-90,max=90"`
	LocationLng        *float64         `json:"location_lng" validate:"omitempty,min=-180,max=180"`
	LocationRadius     *int             `json:"location_radius" validate:"omitempty,min=1"`
	VerificationType   VerificationType `json:"verification_type" validate:"omitempty,oneof=none location photo code"`
	VerificationPrompt string           `json:"verification_prompt"`
	VerificationCode   string           `json:"verification_code"`
}

type SubmitRequest struct {
	Evidence Evidence `json:"evidence"`
}

type StartResponse struct {
	ProgressID  string  `json:"progress_id"`
	CurrentStep StepDTO `json:"current_step"`
}

type SubmitResponse struct {
	Result      string   `json:"result"` // advanced | completed | rejected | pending
	NextStep    *StepDTO `json:"next_step,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

type ProgressDTO struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	QuestID       string         `json:"quest_id"`
	CurrentStepID *string        `json:"current_step_id"`
	Status        ProgressStatus `json:"status"`
	StartedAt     string         `json:"started_at"`
	CompletedAt   *string        `json:"completed_at,omitempty"`
	Completions   []Completion   `json:"completions,omitempty"`
}
