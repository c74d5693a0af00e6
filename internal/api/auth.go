package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/auth"
	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/services"
)

// AuthHandler handles authentication routes
type AuthHandler struct {
	Accounts *services.AccountService
	// SecureCookie marks the session cookie Secure (production only)
	SecureCookie bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *services.AccountService, secureCookie bool) *AuthHandler {
	return &AuthHandler{Accounts: accounts, SecureCookie: secureCookie}
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", h.SecureCookie, true)
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var input models.UserSignup
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	if _, err := h.Accounts.Signup(c.Request.Context(), input); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully. Please check your email for the verification code.",
	})
}

// VerifyEmail consumes a verification code
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var input models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	if _, err := h.Accounts.VerifyEmail(c.Request.Context(), input.Code); err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email verified successfully! You can now log in.",
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var input models.UserLogin
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.Accounts.Login(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	token, _, err := auth.GenerateToken(user)
	if err != nil {
		log.Error("Failed to generate token for %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate token"})
		return
	}
	h.setSessionCookie(c, token, int(auth.TokenTTL().Seconds()))

	c.JSON(http.StatusOK, models.LoginResponse{UserResponse: user.Response(), Token: token})
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// UpdateProfile edits the current user's picture, name or bio
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var input models.ProfileUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.Accounts.UpdateProfile(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Response())
}

// CheckAuth returns the current user
func (h *AuthHandler) CheckAuth(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := h.Accounts.CurrentUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Response())
}

// RequestPasswordReset mails a reset link
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var input models.PasswordResetRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.Accounts.RequestPasswordReset(c.Request.Context(), input.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset link sent to your email"})
}

// ResetPassword sets a new password using a reset token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var input models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	if err := h.Accounts.ResetPassword(c.Request.Context(), input.Token, input.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}
