package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the chat system
type User struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	FullName              string     `json:"fullName"`
	PasswordHash          string     `json:"-"` // Never send to client
	ProfilePic            string     `json:"profilePic"`
	About                 string     `json:"about"`
	IsVerified            bool       `json:"isVerified"`
	VerificationCode      string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetToken            string     `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// UserSignup contains data needed for user registration
type UserSignup struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// UserLogin contains data needed for user login
type UserLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate is the body of PUT /auth/update-profile. Nil fields are left untouched.
type ProfileUpdate struct {
	ProfilePic *string `json:"profilePic"`
	FullName   *string `json:"fullName"`
	About      *string `json:"about"`
}

// UserResponse is what we return to the client
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
	About      string    `json:"about"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PublicUser is the projection returned by search and embedded in friend requests.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
}

// Response builds the self-view projection of u.
func (u *User) Response() UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		About:      u.About,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

// Public builds the projection that is safe to show to other users.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
	}
}

// PublicUsers maps a slice of users to their public projection.
func PublicUsers(users []*User) []PublicUser {
	out := make([]PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}

// LoginResponse is the self view plus the session token for clients that
// cannot use the cookie.
type LoginResponse struct {
	UserResponse
	Token string `json:"token"`
}

// VerifyEmailRequest is the body of POST /auth/verify-email
type VerifyEmailRequest struct {
	Code string `json:"code"`
}

// PasswordResetRequest is the body of POST /auth/request-password-reset
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of PUT /auth/reset-password
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
