package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/custodia/escrowd/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    code,
		Status:  statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL", message)
}

// domainCodes maps engine failures to HTTP status and stable machine codes.
var domainCodes = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInvalidTokenAddress, http.StatusBadRequest, "INVALID_TOKEN_ADDRESS"},
	{model.ErrInvalidLockDuration, http.StatusBadRequest, "INVALID_LOCK_DURATION"},
	{model.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{model.ErrInsufficientPoolFunds, http.StatusConflict, "INSUFFICIENT_POOL_FUNDS"},
	{model.ErrEmergencyModeActive, http.StatusConflict, "EMERGENCY_MODE_ACTIVE"},
	{model.ErrEmergencyModeNotActive, http.StatusConflict, "EMERGENCY_MODE_NOT_ACTIVE"},
	{model.ErrLockPeriodNotExpired, http.StatusConflict, "LOCK_PERIOD_NOT_EXPIRED"},
	{model.ErrNoFundsToClaim, http.StatusConflict, "NO_FUNDS_TO_CLAIM"},
	{model.ErrUnauthorizedAccess, http.StatusForbidden, "UNAUTHORIZED_ACCESS"},
	{model.ErrVaultNotFound, http.StatusNotFound, "VAULT_NOT_FOUND"},
	{model.ErrTransferFailed, http.StatusBadGateway, "TRANSFER_FAILED"},
}

// WriteDomainError maps a ledger error to its response. Unrecognized errors
// become 500s without leaking internals.
func WriteDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainCodes {
		if errors.Is(err, m.err) {
			WriteError(w, m.status, m.code, err.Error())
			return
		}
	}
	log.Error().Err(err).Msg("unmapped domain error")
	WriteInternalError(w, "internal error")
}
