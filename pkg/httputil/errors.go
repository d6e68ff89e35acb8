package httputil

import (
	"errors"
	"net/http"

	"github.com/guildhall-io/guildhall/pkg/governance"
)

// WriteDomainError maps a governance error to its HTTP status. Rule
// violations carry the rule name so the caller can present a precise
// message; retryable storage failures become 503 so clients know the
// attempt is safe to repeat.
func WriteDomainError(w http.ResponseWriter, err error) {
	var violation *governance.RuleViolationError
	switch {
	case errors.As(err, &violation):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": violation.Error(),
			"rule":  string(violation.Rule),
		})
	case errors.Is(err, governance.ErrUnauthorized):
		WriteForbidden(w, err.Error())
	case errors.Is(err, governance.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, governance.ErrConflict):
		WriteErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, governance.ErrInvalidState):
		WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case governance.IsRetryable(err):
		WriteServiceUnavailable(w, "storage temporarily unavailable, retry the request")
	default:
		WriteInternalError(w)
	}
}
