package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"questhunt/internal/auth"
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

func (h *Handler) CreateQuest(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateQuestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quest, err := h.service.CreateQuest(principal.UserID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(quest.ToDTO(true))
}

func (h *Handler) GetQuest(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questID := mux.Vars(r)["questId"]

	quest, err := h.service.GetQuestForViewer(questID, principal.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	steps, err := h.service.ListSteps(questID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	quest.Steps = steps

	json.NewEncoder(w).Encode(quest.ToDTO(quest.CreatorID == principal.UserID))
}

func (h *Handler) AddStep(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	questID := mux.Vars(r)["questId"]

	var req models.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	step, err := h.service.AddStep(principal.UserID, questID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(step.ToDTO(true))
}

func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	vars := mux.Vars(r)

	var req models.StepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	step, err := h.service.UpdateStep(principal.UserID, vars["questId"], vars["stepId"], &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(step.ToDTO(true))
}

func (h *Handler) PublishQuest(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	quest, err := h.service.PublishQuest(principal.UserID, mux.Vars(r)["questId"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(quest.ToDTO(true))
}

func (h *Handler) ArchiveQuest(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	quest, err := h.service.ArchiveQuest(principal.UserID, mux.Vars(r)["questId"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(quest.ToDTO(true))
}

func (h *Handler) DeleteQuest(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteQuest(principal.UserID, mux.Vars(r)["questId"]); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrQuestNotFound), errors.Is(err, ErrStepNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotCreator):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrQuestNotEditable),
		errors.Is(err, ErrDuplicateOrder),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrEmptyQuest):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidStep):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
