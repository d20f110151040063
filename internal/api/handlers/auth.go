package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/identity"
)

type AuthHandler struct {
	authService *identity.Service
	google      *identity.GoogleAuthenticator
}

func NewAuthHandler(authService *identity.Service, google *identity.GoogleAuthenticator) *AuthHandler {
	return &AuthHandler{authService: authService, google: google}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Register(r.Context(), identity.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})

	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUserExists):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "User already exists"})
		case errors.Is(err, identity.ErrInviteExpired):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Invitation has expired"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Registration failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusCreated, authResponse(resp))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.Login(r.Context(), identity.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})

	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid credentials"})
		case errors.Is(err, identity.ErrInactiveUser):
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Account is inactive"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, authResponse(resp))
}

// RequestLoginCode emails a one-time code. It always answers 200 so the
// endpoint cannot be used to probe which addresses have accounts.
func (h *AuthHandler) RequestLoginCode(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.authService.RequestLoginCode(r.Context(), req.Email); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Could not send code"})
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Code sent"})
}

func (h *AuthHandler) VerifyLoginCode(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginCodeVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	resp, err := h.authService.VerifyLoginCode(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrCodeInvalid):
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired code"})
		case errors.Is(err, identity.ErrInviteExpired):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Invitation has expired"})
		default:
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, authResponse(resp))
}

// GoogleLogin redirects the browser to Google's consent page.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		writeJSON(w, http.StatusNotImplemented, dto.ErrorResponse{Error: "Google login is not configured"})
		return
	}

	state := randomState()
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	url, err := h.google.LoginURL(state)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Login failed"})
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		writeJSON(w, http.StatusNotImplemented, dto.ErrorResponse{Error: "Google login is not configured"})
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid OAuth state"})
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Missing authorization code"})
		return
	}

	resp, err := h.google.HandleCallback(r.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInviteExpired):
			writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Invitation has expired"})
		default:
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Google login failed"})
		}
		return
	}

	setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, authResponse(resp))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400, // 24 hours
	})
}

func authResponse(resp *identity.AuthResponse) dto.AuthResponse {
	return dto.AuthResponse{
		Token: resp.Token,
		User:  userDTO(resp.User),
	}
}

func userDTO(user *models.User) dto.UserDTO {
	out := dto.UserDTO{
		ID:          user.ID.String(),
		Email:       user.Email,
		Name:        user.Name,
		Image:       user.Image,
		Role:        string(user.Role),
		Status:      string(user.Status),
		IsOnboarded: user.IsOnboarded,
	}
	if user.HasOrganization() {
		out.OrganizationID = user.OrganizationID.String()
	}
	if user.Organization != nil {
		out.OrgName = user.Organization.Name
	}
	return out
}

func randomState() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
