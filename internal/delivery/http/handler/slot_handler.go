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

type SlotHandler struct {
	reallocationUsecase usecase.TokenReallocationUsecase
	queryUsecase        usecase.TokenQueryUsecase
	validator           *validator.CustomValidator
}

func NewSlotHandler(
	reallocationUsecase usecase.TokenReallocationUsecase,
	queryUsecase usecase.TokenQueryUsecase,
	validator *validator.CustomValidator,
) *SlotHandler {
	return &SlotHandler{
		reallocationUsecase: reallocationUsecase,
		queryUsecase:        queryUsecase,
		validator:           validator,
	}
}

func (h *SlotHandler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	capacity, err := h.queryUsecase.SlotCapacity(r.Context(), vars["doctorId"], vars["slot"], vars["date"])
	if err != nil {
		writeError(w, err, "Failed to get slot capacity")
		return
	}

	response.Success(w, http.StatusOK, "Slot capacity retrieved successfully", capacity)
}

func (h *SlotHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	key, ok := slotKeyFromPath(w, r)
	if !ok {
		return
	}

	var req dto.SetSlotCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	snap, err := h.reallocationUsecase.SetSlotCapacity(r.Context(), key.DoctorID, key.Slot, key.VisitDate, *req.Capacity)
	if err != nil {
		writeError(w, err, "Failed to set slot capacity")
		return
	}

	response.Success(w, http.StatusOK, "Slot capacity updated", converter.SlotCapacityToResponse(key, snap))
}

func (h *SlotHandler) ReportDelay(w http.ResponseWriter, r *http.Request) {
	key, ok := slotKeyFromPath(w, r)
	if !ok {
		return
	}

	var req dto.SlotDelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		response.ValidationError(w, h.validator.FormatValidationErrors(err))
		return
	}

	if err := h.reallocationUsecase.HandleDelay(r.Context(), key.DoctorID, key.Slot, key.VisitDate, req.DelayMinutes); err != nil {
		writeError(w, err, "Failed to record delay")
		return
	}

	response.Success(w, http.StatusAccepted, "Slot delay recorded", req)
}

func slotKeyFromPath(w http.ResponseWriter, r *http.Request) (entity.SlotKey, bool) {
	vars := mux.Vars(r)

	date, err := entity.ParseVisitDate(vars["date"])
	if err != nil {
		response.BadRequest(w, "Date must be formatted as YYYY-MM-DD")
		return entity.SlotKey{}, false
	}
	if _, err := entity.ParseSlot(vars["slot"]); err != nil {
		response.BadRequest(w, "Slot must be an hour range like 09-10")
		return entity.SlotKey{}, false
	}

	return entity.NewSlotKey(vars["doctorId"], vars["slot"], date), true
}
