package progress

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"questhunt/internal/auth"
	"questhunt/internal/catalog"
	"questhunt/internal/models"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questID := mux.Vars(r)["questId"]

	progress, step, err := h.service.Start(principal.UserID, questID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(models.StartResponse{
		ProgressID:  progress.ID,
		CurrentStep: step.ToDTO(false),
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	progressID := mux.Vars(r)["progressId"]

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Submit(r.Context(), principal.UserID, progressID, req.Evidence)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := models.SubmitResponse{
		Result:      result.Result,
		Reason:      string(result.Reason),
		Explanation: result.Explanation,
	}
	if result.NextStep != nil {
		dto := result.NextStep.ToDTO(false)
		resp.NextStep = &dto
	}

	// Rejections and pending reviews are expected outcomes, not errors: the
	// player is supposed to try again, so the response stays 200-class.
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	progressID := mux.Vars(r)["progressId"]

	progress, err := h.service.Abandon(principal.UserID, progressID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": string(progress.Status)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	progressID := mux.Vars(r)["progressId"]

	progress, completions, err := h.service.Get(principal.UserID, progressID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto := models.ProgressDTO{
		ID:            progress.ID,
		UserID:        progress.UserID,
		QuestID:       progress.QuestID,
		CurrentStepID: progress.CurrentStepID,
		Status:        progress.Status,
		StartedAt:     progress.StartedAt.Format(time.RFC3339),
		Completions:   completions,
	}
	if progress.CompletedAt != nil {
		completedAt := progress.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &completedAt
	}

	json.NewEncoder(w).Encode(dto)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProgressNotFound),
		errors.Is(err, catalog.ErrQuestNotFound),
		errors.Is(err, catalog.ErrStepNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrProgressTerminal), errors.Is(err, ErrQuestNotPlayable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
