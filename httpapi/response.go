package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/MrEthical07/authshield"
)

// envelope is the body of every response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code           string            `json:"code"`
	Message        string            `json:"message"`
	RetryAfter     int               `json:"retryAfter,omitempty"`
	LockoutMinutes int               `json:"lockoutMinutes,omitempty"`
	Fields         map[string]string `json:"fields,omitempty"`
}

const codeBadRequest = "bad_request"
const codeInternal = "internal_error"

var statusByCode = map[authshield.Code]int{
	authshield.CodeInvalidCredentials: http.StatusUnauthorized,
	authshield.CodeAccountLocked:      http.StatusLocked,
	authshield.CodeRateLimited:        http.StatusTooManyRequests,
	authshield.CodeEmailNotVerified:   http.StatusForbidden,
	authshield.CodeTokenInvalid:       http.StatusBadRequest,
	authshield.CodeTokenExpired:       http.StatusBadRequest,
	authshield.CodeAccountExists:      http.StatusConflict,
	authshield.CodeUserNotFound:       http.StatusNotFound,
	authshield.CodePermissionDenied:   http.StatusForbidden,
	authshield.CodeAccountNotLocked:   http.StatusConflict,
	authshield.CodeValidation:         http.StatusBadRequest,
	authshield.CodePasswordReuse:      http.StatusBadRequest,
	authshield.CodeSessionInvalid:     http.StatusUnauthorized,
	authshield.CodeServiceUnavailable: http.StatusServiceUnavailable,
}

func ok(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Success: true, Data: data})
}

func fail(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	render.Status(r, status)
	render.JSON(w, r, envelope{Error: &body})
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	fail(w, r, http.StatusBadRequest, errorBody{Code: codeBadRequest, Message: message})
}

// writeError maps engine errors to status codes. Anything that is not an
// *authshield.Error is logged and answered with a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, isAuth := authshield.AsError(err)
	if !isAuth {
		if errors.Is(err, authshield.ErrEngineNotReady) {
			fail(w, r, http.StatusServiceUnavailable, errorBody{Code: string(authshield.CodeServiceUnavailable), Message: "Service temporarily unavailable"})
			return
		}
		h.logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
		fail(w, r, http.StatusInternalServerError, errorBody{Code: codeInternal, Message: "Internal server error"})
		return
	}

	status, known := statusByCode[ae.Code]
	if !known {
		status = http.StatusInternalServerError
	}
	if ae.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
	}
	fail(w, r, status, errorBody{
		Code:           string(ae.Code),
		Message:        ae.Message,
		RetryAfter:     ae.RetryAfter,
		LockoutMinutes: ae.LockoutMinutes,
		Fields:         ae.Fields,
	})
}
