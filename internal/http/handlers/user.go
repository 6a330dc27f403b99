package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/quillpost/server/internal/auth"
	"github.com/quillpost/server/internal/mail"
	"github.com/quillpost/server/internal/middleware"
	"github.com/quillpost/server/internal/model"
	"github.com/quillpost/server/internal/repo"
)

const (
	passwordMinLen = 8
	dateLayout     = "2006-01-02"
)

// UserHandler handles the user-management endpoints
type UserHandler struct {
	authService   *auth.Service
	users         repo.UserRepo
	loginLimiter  *middleware.RateLimiter
	verifyLimiter *middleware.RateLimiter
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *auth.Service, users repo.UserRepo) *UserHandler {
	// Per-IP limits: 10 logins and 20 verification attempts per 10 minutes.
	return &UserHandler{
		authService:   authService,
		users:         users,
		loginLimiter:  middleware.NewRateLimiter(10*time.Minute, 10),
		verifyLimiter: middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// profileResponse is the public view of a user in API responses
type profileResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	IsVerified  bool      `json:"isVerified"`
	DateOfBirth *string   `json:"dateOfBirth,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	District    *string   `json:"district,omitempty"`
	City        *string   `json:"city,omitempty"`
	Photo       *string   `json:"photo,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProfile(user model.User) profileResponse {
	p := profileResponse{
		ID:         user.ID.String(),
		Email:      user.Email,
		Username:   user.Username,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		IsVerified: user.IsVerified,
		Bio:        user.Bio,
		District:   user.District,
		City:       user.City,
		Photo:      user.PhotoURL,
		CreatedAt:  user.CreatedAt,
	}
	if user.DateOfBirth != nil {
		dob := user.DateOfBirth.Format(dateLayout)
		p.DateOfBirth = &dob
	}
	return p
}

// sessionResponse is the JSON response for a successful login or verification
type sessionResponse struct {
	Message      string          `json:"message"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         profileResponse `json:"user"`
}

// createUserRequest is the request body for POST /user/create
type createUserRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// HandleCreate handles POST /user/create
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)

	fields := map[string]string{}
	if req.FirstName == "" {
		fields["firstName"] = "This field is required."
	}
	if req.LastName == "" {
		fields["lastName"] = "This field is required."
	}
	if req.Email == "" {
		fields["email"] = "This field is required."
	} else if _, err := netmail.ParseAddress(req.Email); err != nil {
		fields["email"] = "Enter a valid email address."
	}
	if len(req.Password) < passwordMinLen {
		fields["password"] = "Password must be at least 8 characters."
	}
	if req.Password != req.ConfirmPassword {
		fields["confirmPassword"] = "Passwords do not match."
	}
	if len(fields) > 0 {
		respondWithFieldErrors(w, http.StatusBadRequest, "validation_error", fields)
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			respondWithFieldErrors(w, http.StatusBadRequest, "duplicate_email", map[string]string{
				"email": "A user with this email already exists.",
			})
			return
		}
		logBlurredEmail(req.Email, "registration failed", err)
		respondWithError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	respondWithJSON(w, http.StatusCreated, toProfile(user))
}

// loginRequest is the request body for POST /user/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /user/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	if !h.loginLimiter.Allow(middleware.ClientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		case errors.Is(err, auth.ErrDeliveryFailure):
			logBlurredEmail(req.Email, "verification mail delivery failed", err)
			respondWithError(w, http.StatusInternalServerError, "delivery_failure", "failed to send verification email")
		default:
			logBlurredEmail(req.Email, "login failed", err)
			respondWithError(w, http.StatusInternalServerError, "internal_error", "login failed")
		}
		return
	}

	if result.ChallengeSent {
		// Never echo the code back to the caller.
		respondWithJSON(w, http.StatusOK, map[string]string{"message": "verification code sent"})
		return
	}

	h.respondWithSession(w, "Login successful", result)
}

// verifyRequest is the request body for POST /user/verify
type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// HandleVerify handles POST /user/verify
func (h *UserHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "email and code are required")
		return
	}

	if !h.verifyLimiter.Allow(middleware.ClientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, try again later")
		return
	}

	result, err := h.authService.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "user_not_found", "No account with this email")
		case errors.Is(err, auth.ErrInvalidCode):
			respondWithError(w, http.StatusBadRequest, "invalid_code", "Invalid verification code")
		case errors.Is(err, auth.ErrCodeExpired):
			respondWithError(w, http.StatusBadRequest, "code_expired", "Verification code has expired")
		default:
			logBlurredEmail(req.Email, "verification failed", err)
			respondWithError(w, http.StatusInternalServerError, "internal_error", "verification failed")
		}
		return
	}

	h.respondWithSession(w, "Email verified", result)
}

// refreshRequest is the request body for POST /user/token/refresh
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh handles POST /user/token/refresh
func (h *UserHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "validation_error", "refreshToken is required")
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// Failure kind stays internal; response is uniform.
		log.Printf("refresh token rejected: %v", err)
		respondWithError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	setAccessCookie(w, accessToken, h.authService.AccessTTL())
	respondWithJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

// HandleMe handles GET /user/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	respondWithJSON(w, http.StatusOK, toProfile(*user))
}

// HandleDetails handles GET /user/details
func (h *UserHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		log.Printf("list users failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}
	profiles := make([]profileResponse, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, toProfile(user))
	}
	respondWithJSON(w, http.StatusOK, profiles)
}

// updateProfileRequest is the request body for PATCH /user/profile/update.
// All fields are optional; absent fields stay unchanged.
type updateProfileRequest struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	DateOfBirth *string `json:"dateOfBirth"`
	Bio         *string `json:"bio"`
	District    *string `json:"district"`
	City        *string `json:"city"`
}

// HandleProfileUpdate handles PATCH /user/profile/update
func (h *UserHandler) HandleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	updated := *user
	if req.FirstName != nil {
		updated.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updated.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Username != nil {
		updated.Username = strings.TrimSpace(*req.Username)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if _, err := netmail.ParseAddress(email); err != nil {
			respondWithFieldErrors(w, http.StatusBadRequest, "validation_error", map[string]string{
				"email": "Enter a valid email address.",
			})
			return
		}
		updated.Email = email
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse(dateLayout, *req.DateOfBirth)
		if err != nil {
			respondWithFieldErrors(w, http.StatusBadRequest, "validation_error", map[string]string{
				"dateOfBirth": "Enter a valid date (YYYY-MM-DD).",
			})
			return
		}
		updated.DateOfBirth = &dob
	}
	if req.Bio != nil {
		updated.Bio = req.Bio
	}
	if req.District != nil {
		updated.District = req.District
	}
	if req.City != nil {
		updated.City = req.City
	}

	saved, err := h.users.UpdateProfile(r.Context(), updated)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			respondWithFieldErrors(w, http.StatusBadRequest, "duplicate_email", map[string]string{
				"email": "This email is already in use.",
			})
			return
		}
		log.Printf("profile update failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal_error", "failed to update profile")
		return
	}

	respondWithJSON(w, http.StatusOK, toProfile(saved))
}

// photoUpdateRequest is the request body for PATCH /user/photo
type photoUpdateRequest struct {
	Photo string `json:"photo"`
}

// HandlePhotoUpdate handles PATCH /user/photo
func (h *UserHandler) HandlePhotoUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req photoUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.Photo = strings.TrimSpace(req.Photo)
	if req.Photo == "" {
		respondWithFieldErrors(w, http.StatusBadRequest, "validation_error", map[string]string{
			"photo": "This field is required.",
		})
		return
	}

	saved, err := h.users.UpdatePhoto(r.Context(), user.ID, req.Photo)
	if err != nil {
		log.Printf("photo update failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal_error", "failed to update photo")
		return
	}

	respondWithJSON(w, http.StatusOK, toProfile(saved))
}

// respondWithSession writes the token pair and profile, and sets the
// access_token cookie to the same access token as the body.
func (h *UserHandler) respondWithSession(w http.ResponseWriter, message string, result *auth.LoginResult) {
	setAccessCookie(w, result.AccessToken, h.authService.AccessTTL())
	respondWithJSON(w, http.StatusOK, sessionResponse{
		Message:      message,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         toProfile(result.User),
	})
}

func setAccessCookie(w http.ResponseWriter, accessToken string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// respondWithJSON writes a JSON response with the given status code
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error with a stable machine-checkable code
func respondWithError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error_code": errorCode,
		"message":    message,
	})
}

// respondWithFieldErrors sends a JSON error carrying per-field messages
func respondWithFieldErrors(w http.ResponseWriter, statusCode int, errorCode string, fields map[string]string) {
	respondWithJSON(w, statusCode, map[string]any{
		"error_code": errorCode,
		"message":    "invalid input",
		"fields":     fields,
	})
}

// logBlurredEmail logs a message with the email address blurred
func logBlurredEmail(email, msg string, err error) {
	log.Printf("%s (%s): %v", msg, mail.BlurEmail(email), err)
}
