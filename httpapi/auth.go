package httpapi

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/MrEthical07/authshield"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// VerificationResentMessage is returned for every accepted resend request.
const VerificationResentMessage = "If the account exists and is unverified, a new verification link has been sent."

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		badRequest(w, r, "Request body must be valid JSON")
		return false
	}
	return true
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Register(r.Context(), authshield.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, res)
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.engine.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, user)
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusAccepted, messageResponse{Message: VerificationResentMessage})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusAccepted, messageResponse{Message: authshield.PasswordResetRequestedMessage})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

// logout is idempotent and does not require a valid session.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), bearer(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	ok(w, r, http.StatusOK, sessionFrom(r).info)
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListSessions(r.Context(), sessionFrom(r).handle)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, list)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.LogoutAll(r.Context(), sessionFrom(r).handle)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, map[string]int{"revoked": n})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.engine.ChangePassword(r.Context(), sessionFrom(r).handle, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, messageResponse{Message: "Password changed"})
}

func (h *Handler) ownLockoutStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.GetAccountLockoutStatus(r.Context(), sessionFrom(r).info.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, status)
}
