package handler

import (
	"net/http"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/middleware"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/security"
	"github.com/sandeepkv93/crudguard/internal/service"
)

type AuthHandler struct {
	auth          *service.AuthService
	tokens        *service.UserTokenService
	captcha       *service.CaptchaService
	secureCookies bool
}

func NewAuthHandler(auth *service.AuthService, tokens *service.UserTokenService, captcha *service.CaptchaService, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, captcha: captcha, secureCookies: secureCookies}
}

type signInRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	TwoFACode string `json:"two_fa_code,omitempty"`
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}
	res, err := h.auth.SignIn(r.Context(), rc.IP, req.Email, req.Password, req.TwoFACode)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	ttl := time.Until(res.ExpiresAt)
	rc.SetCookie(middleware.AccessTokenCookie, domain.CookieToSet{
		Value:    res.AccessToken,
		HTTPOnly: true,
		Secure:   h.secureCookies,
		MaxAge:   ttl,
	})
	rc.SetCookie(middleware.CSRFCookie, domain.CookieToSet{
		Value:  csrf,
		Secure: h.secureCookies,
		MaxAge: ttl,
	})
	response.JSON(w, r, http.StatusOK, res)
}

// SignOut drops the session cookies. Header bearer tokens stay valid until
// they expire or are revoked.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	middleware.ExpireSessionCookies(rc)
	observability.Audit(r, "auth.signout")
	response.JSON(w, r, http.StatusOK, map[string]bool{"signed_out": true})
}

func (h *AuthHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	rc, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.tokens.SendVerificationEmail(r.Context(), rc.UserID); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"sent": true})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	rc, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.tokens.VerifyEmail(r.Context(), rc.UserID, req.Token); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}

type resetSendRequest struct {
	Email string `json:"email"`
}

// SendPasswordReset answers the same way whether or not the address exists.
func (h *AuthHandler) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}
	if err := h.tokens.SendPasswordResetEmail(r.Context(), req.Email); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusAccepted, map[string]bool{"sent": true})
}

type resetConfirmRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Token == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email, token and password are required", nil)
		return
	}
	if err := h.tokens.ResetPassword(r.Context(), req.Email, req.Token, req.Password); err != nil {
		response.FromError(w, r, err)
		return
	}
	observability.Audit(r, "password.reset")
	response.JSON(w, r, http.StatusOK, map[string]bool{"reset": true})
}

type captchaRequest struct {
	Response string `json:"response"`
}

func (h *AuthHandler) Captcha(w http.ResponseWriter, r *http.Request) {
	rc, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req captchaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.captcha.Submit(r.Context(), rc, req.Response); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"did_captcha": true})
}
