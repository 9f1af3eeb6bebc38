package handler

import (
	"encoding/json"
	"net/http"

	"opd-token-allocation/internal/converter"
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/usecase"
	"opd-token-allocation/pkg/response"
	"opd-token-allocation/pkg/validator"

	"github.com/gorilla/mux"
)

type TokenHandler struct {
	allocationUsecase   usecase.TokenAllocationUsecase
	reallocationUsecase usecase.TokenReallocationUsecase
	queryUsecase        usecase.TokenQueryUsecase
	validator           *validator.CustomValidator
}

func NewTokenHandler(
	allocationUsecase usecase.TokenAllocationUsecase,
	reallocationUsecase usecase.TokenReallocationUsecase,
	queryUsecase usecase.TokenQueryUsecase,
	validator *validator.CustomValidator,
) *TokenHandler {
	return &TokenHandler{
		allocationUsecase:   allocationUsecase,
		reallocationUsecase: reallocationUsecase,
		queryUsecase:        queryUsecase,
		validator:           validator,
	}
}

// AllocateToken answers 201 when a position was assigned (directly or by
// redirect) and 202 when the token was queued.
func (h *TokenHandler) AllocateToken(w http.ResponseWriter, r *http.Request) {
	var req dto.AllocateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	result, err := h.allocationUsecase.Allocate(r.Context(), &req)
	if err != nil {
		writeError(w, err, "Failed to allocate token")
		return
	}

	status := http.StatusCreated
	if result.Outcome == usecase.OutcomeQueued {
		status = http.StatusAccepted
	}

	response.Success(w, status, result.Message, &dto.AllocationResponse{
		Token:         converter.TokenToResponse(result.Token),
		Outcome:       string(result.Outcome),
		RequestedSlot: result.RequestedSlot,
		Message:       result.Message,
	})
}

func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.queryUsecase.GetToken(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Failed to get token")
		return
	}

	response.Success(w, http.StatusOK, "Token retrieved successfully", token)
}

func (h *TokenHandler) GetTokenEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.queryUsecase.TokenEvents(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "Failed to get token events")
		return
	}

	response.Success(w, http.StatusOK, "Token events retrieved successfully", events)
}

func (h *TokenHandler) ListSlotTokens(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tokens, err := h.queryUsecase.ListSlotTokens(r.Context(), vars["doctorId"], vars["slot"], vars["date"])
	if err != nil {
		writeError(w, err, "Failed to list tokens")
		return
	}

	response.Success(w, http.StatusOK, "Tokens retrieved successfully", tokens)
}

func (h *TokenHandler) CancelToken(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled by patient"
	}

	h.transition(w, r, "Token cancelled", "Failed to cancel token", func(id string) (*entity.Token, error) {
		return h.reallocationUsecase.CancelToken(r.Context(), id, reason)
	})
}

func (h *TokenHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Token marked as no-show", "Failed to mark no-show", func(id string) (*entity.Token, error) {
		return h.reallocationUsecase.MarkNoShow(r.Context(), id)
	})
}

func (h *TokenHandler) InsertEmergency(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Emergency token inserted", "Failed to insert emergency token", func(id string) (*entity.Token, error) {
		return h.reallocationUsecase.InsertEmergencyToken(r.Context(), id)
	})
}

func (h *TokenHandler) StartToken(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Consultation started", "Failed to start token", func(id string) (*entity.Token, error) {
		return h.reallocationUsecase.StartToken(r.Context(), id)
	})
}

func (h *TokenHandler) CompleteToken(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Consultation completed", "Failed to complete token", func(id string) (*entity.Token, error) {
		return h.reallocationUsecase.CompleteToken(r.Context(), id)
	})
}

func (h *TokenHandler) transition(w http.ResponseWriter, r *http.Request, message, failure string, op func(id string) (*entity.Token, error)) {
	token, err := op(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, failure)
		return
	}

	response.Success(w, http.StatusOK, message, converter.TokenToResponse(token))
}
