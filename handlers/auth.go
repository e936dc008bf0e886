package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"posture-service/database"
	"posture-service/models"
	"posture-service/utils/email"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles account management requests.
type AuthHandler struct {
	users           *database.UserService
	mailer          *email.Sender
	resetURLBase    string
	tokenExpirySecs int
}

// NewAuthHandler creates an auth handler instance. mailer may be nil, in
// which case password-reset emails are logged instead of sent.
func NewAuthHandler(users *database.UserService, mailer *email.Sender, resetURLBase string, tokenExpirySecs int) *AuthHandler {
	return &AuthHandler{
		users:           users,
		mailer:          mailer,
		resetURLBase:    resetURLBase,
		tokenExpirySecs: tokenExpirySecs,
	}
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) || errors.Is(err, database.ErrDuplicateUsername) {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Errorf("Error creating user: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login handles user authentication.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: err.Error()})
			return
		}
		if errors.Is(err, database.ErrInactiveUser) {
			c.JSON(http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Errorf("Error authenticating user: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to authenticate"})
		return
	}

	token, err := h.users.GenerateToken(user.ID, user.Username)
	if err != nil {
		log.Errorf("Error generating token: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: h.tokenExpirySecs,
		UserID:    user.ID,
		Username:  user.Username,
	})
}

// GetMe retrieves the authenticated user's profile.
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Errorf("Error getting user: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to get user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateMe updates the authenticated user's profile.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrUserNotFound):
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		case errors.Is(err, database.ErrDuplicateEmail), errors.Is(err, database.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
		default:
			log.Errorf("Error updating user: %v", err)
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to update user"})
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteMe deletes the authenticated user's account and all its records.
func (h *AuthHandler) DeleteMe(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.users.DeleteUser(c.Request.Context(), userID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Errorf("Error deleting user: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to delete user"})
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "user deleted successfully"})
}

// RequestPasswordReset issues a reset token and emails it. The response is
// the same whether or not the email is registered, so accounts cannot be
// enumerated.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	response := models.MessageResponse{Message: "if the email is registered, a reset link has been sent"}

	token, user, err := h.users.CreatePasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			log.Errorf("Error creating password reset: %v", err)
		}
		c.JSON(http.StatusOK, response)
		return
	}

	resetURL := fmt.Sprintf("%s?token=%s", h.resetURLBase, token)
	if h.mailer == nil {
		log.Warnf("No email sender configured, reset URL for %s: %s", user.Email, resetURL)
		c.JSON(http.StatusOK, response)
		return
	}

	go func() {
		if err := h.mailer.SendPasswordResetEmail(user.Email, resetURL); err != nil {
			log.Errorf("Failed to send password reset email to %s: %v", user.Email, err)
		}
	}()

	c.JSON(http.StatusOK, response)
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req models.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, database.ErrInvalidResetToken) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Errorf("Error resetting password: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to reset password"})
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "password updated successfully"})
}
