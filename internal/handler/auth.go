package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/apse-storefront/internal/model"
	"github.com/mmeshcher/apse-storefront/internal/service"
)

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.RegisterUser(r.Context(), service.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(w, err, "register user")
		return
	}

	h.issueToken(w, u, http.StatusCreated)
}

// Login выполняет аутентификацию пользователя и выдаёт токен доступа.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err, "login user")
		return
	}

	h.issueToken(w, u, http.StatusOK)
}

func (h *Handler) issueToken(w http.ResponseWriter, u *model.User, status int) {
	token, err := h.authMiddleware.Issue(u.ID, u.Role)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.String("userID", u.ID))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respond(w, status, authResponse{Token: token, User: u})
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), uid)
	if err != nil {
		h.fail(w, err, "get user", zap.String("userID", uid))
		return
	}
	respond(w, http.StatusOK, u)
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestReset отправляет ссылку сброса пароля. Ответ не зависит от существования email.
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.Error("request reset error", zap.Error(err))
	}
	respondMessage(w, http.StatusOK, "If the email exists, a reset link has been sent.")
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ResetPassword устанавливает новый пароль по токену.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, err, "reset password")
		return
	}
	respondMessage(w, http.StatusOK, "Password has been reset")
}

// VerifyEmail подтверждает email по токену из ссылки.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, err, "verify email")
		return
	}
	respond(w, http.StatusOK, u)
}

// ResendVerification повторно отправляет ссылку подтверждения email.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.logger.Error("resend verification error", zap.Error(err))
	}
	respondMessage(w, http.StatusOK, "If the email exists, a verification link has been sent.")
}
