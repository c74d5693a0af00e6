package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chatty/internal/auth"
	"github.com/ammar1510/chatty/internal/models"
)

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// TestSignupVerifyLoginFlow walks an account from signup to an authenticated check
func TestSignupVerifyLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	signup := models.UserSignup{Email: "test@example.com", Password: "password123", FullName: "Test User"}

	w := env.do(t, http.MethodPost, "/api/auth/signup", signup, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Signing up again while unverified just refreshes the pending account
	w = env.do(t, http.MethodPost, "/api/auth/signup", signup, "")
	require.Equal(t, http.StatusCreated, w.Code)

	login := models.UserLogin{Email: "test@example.com", Password: "password123"}
	w = env.do(t, http.MethodPost, "/api/auth/login", login, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please verify your email before logging in.", messageOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/verify-email", models.VerifyEmailRequest{Code: "badcode"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	code := env.mail.code("test@example.com")
	require.NotEmpty(t, code)
	w = env.do(t, http.MethodPost, "/api/auth/verify-email", models.VerifyEmailRequest{Code: code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/auth/signup", signup, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists and is verified", messageOf(t, w))

	w = env.do(t, http.MethodPost, "/api/auth/login", login, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	decode(t, w, &resp)
	assert.Equal(t, "test@example.com", resp.Email)
	assert.True(t, resp.IsVerified)
	assert.NotEqual(t, uuid.Nil, resp.ID)

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, resp.Token, cookie.Value)

	claims, err := auth.ValidateToken(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, resp.ID.String(), claims.UserID)

	// The cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.UserResponse
	decode(t, rec, &me)
	assert.Equal(t, resp.ID, me.ID)
	assert.Equal(t, "Test User", me.FullName)
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		input models.UserSignup
	}{
		{"missing fields", models.UserSignup{Email: "a@example.com"}},
		{"invalid email", models.UserSignup{Email: "invalid-email", Password: "password123", FullName: "A"}},
		{"short password", models.UserSignup{Email: "a@example.com", Password: "123", FullName: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/signup", tt.input, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "test@example.com")

	tests := []struct {
		name       string
		input      models.UserLogin
		wantStatus int
	}{
		{"valid login", models.UserLogin{Email: "test@example.com", Password: "password123"}, http.StatusOK},
		{"invalid password", models.UserLogin{Email: "test@example.com", Password: "wrongpassword"}, http.StatusBadRequest},
		{"non-existent user", models.UserLogin{Email: "nonexistent@example.com", Password: "password123"}, http.StatusBadRequest},
		{"invalid input", models.UserLogin{Email: "invalid-email"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", tt.input, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.NotNil(t, sessionCookie(w))
			} else {
				assert.Nil(t, sessionCookie(w))
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.MaxAge < 0)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "pic@example.com")

	pic := "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="
	w := env.do(t, http.MethodPut, "/api/auth/update-profile", map[string]string{"profilePic": pic, "about": "hi"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me models.UserResponse
	decode(t, w, &me)
	assert.Equal(t, pic, me.ProfilePic)
	assert.Equal(t, "hi", me.About)

	w = env.do(t, http.MethodPut, "/api/auth/update-profile", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/auth/update-profile", map[string]string{"profilePic": "not a data url"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckAuthDeletedUser(t *testing.T) {
	env := newTestEnv(t)

	ghost := &models.User{ID: uuid.New(), Email: "ghost@example.com"}
	token, _, err := auth.GenerateToken(ghost)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/auth/check", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "reset@example.com")

	w := env.do(t, http.MethodPost, "/api/auth/request-password-reset", models.PasswordResetRequest{Email: "nobody@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/request-password-reset", models.PasswordResetRequest{Email: "reset@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	link := env.mail.link("reset@example.com")
	require.True(t, strings.HasPrefix(link, "http://frontend.test/reset-password/"), link)
	token := strings.TrimPrefix(link, "http://frontend.test/reset-password/")

	w = env.do(t, http.MethodPut, "/api/auth/reset-password", models.ResetPasswordRequest{Token: "nope", NewPassword: "newpass1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired token", messageOf(t, w))

	w = env.do(t, http.MethodPut, "/api/auth/reset-password", models.ResetPasswordRequest{Token: token, NewPassword: "newpass1"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", models.UserLogin{Email: "reset@example.com", Password: "newpass1"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
