package handler

import (
	"net/http"

	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/usecase"
	"opd-token-allocation/pkg/response"
)

// statusFor maps an engine error kind to an HTTP status code.
func statusFor(te *usecase.TokenError) int {
	switch te.Kind {
	case usecase.KindNotFound:
		return http.StatusNotFound
	case usecase.KindInvalidState, usecase.KindCapacityExhausted:
		if te.Reason == usecase.ReasonDoctorExists || te.Reason == usecase.ReasonPatientExists {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case usecase.KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a usecase failure. Store failure details stay in the logs.
func writeError(w http.ResponseWriter, err error, fallback string) {
	te, ok := usecase.AsTokenError(err)
	if !ok {
		response.InternalServerError(w, fallback)
		return
	}

	status := statusFor(te)
	message := te.Message
	if status == http.StatusInternalServerError {
		message = fallback
	}

	response.Error(w, status, message, dto.ErrorDetail{
		Kind:   string(te.Kind),
		Reason: string(te.Reason),
	})
}
