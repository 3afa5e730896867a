package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"canteen-system/internal/domain"
)

// jsonResponse writes the given data as a JSON-encoded HTTP response.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes an error response as JSON with the specified HTTP status
// code.
func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps the business error taxonomy onto HTTP codes. Anything
// unrecognized is a system fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBranchNotFound),
		errors.Is(err, domain.ErrFoodNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPlanNotFound),
		errors.Is(err, domain.ErrQRNotFound),
		errors.Is(err, domain.ErrNoEntitlement):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrQuotaExhausted),
		errors.Is(err, domain.ErrDailyLimitReached),
		errors.Is(err, domain.ErrOutsideAllowedWindow),
		errors.Is(err, domain.ErrQRUsed),
		errors.Is(err, domain.ErrQRExpired),
		errors.Is(err, domain.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrEntitlementConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
