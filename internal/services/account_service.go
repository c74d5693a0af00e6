package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chatty/internal/apperr"
	"github.com/ammar1510/chatty/internal/auth"
	"github.com/ammar1510/chatty/internal/database"
	"github.com/ammar1510/chatty/internal/mailer"
	"github.com/ammar1510/chatty/internal/models"
	"github.com/ammar1510/chatty/internal/storage"
)

const maxAboutLength = 500

var (
	ErrMissingFields       = apperr.Validation("All fields are required")
	ErrInvalidEmail        = apperr.Validation("Invalid email format")
	ErrPasswordTooShort    = apperr.Validation("Password must be at least 6 characters")
	ErrAlreadyVerified     = apperr.Conflict("User already exists and is verified")
	ErrInvalidCode         = apperr.Validation("Invalid or expired verification code")
	ErrInvalidCredentials  = apperr.Auth("Invalid credentials")
	ErrNotVerified         = apperr.Auth("Please verify your email before logging in.")
	ErrResetTokenInvalid   = apperr.Validation("Invalid or expired token")
	ErrFrontendURLMissing  = apperr.New(apperr.KindInternal, "FRONTEND_URL is not set")
	ErrNothingToUpdate     = apperr.Validation("Nothing to update")
	ErrSessionUserNotFound = apperr.New(apperr.KindUnauthorized, "Unauthorized - User not found")
)

// AccountConfig holds the lifetimes and links used by the account flows
type AccountConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	FrontendURL     string
}

type stopper interface {
	Stop() bool
}

// AccountService implements signup, verification, login and password reset
type AccountService struct {
	db     database.UserStore
	mail   mailer.Mailer
	images storage.ImageStore
	cfg    AccountConfig

	now      Clock
	newCode  func() (string, error)
	schedule func(d time.Duration, f func()) stopper

	mu     sync.Mutex
	sweeps map[string]stopper
}

func NewAccountService(db database.UserStore, m mailer.Mailer, images storage.ImageStore, cfg AccountConfig) *AccountService {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 15 * time.Minute
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &AccountService{
		db:      db,
		mail:    m,
		images:  images,
		cfg:     cfg,
		now:     time.Now,
		newCode: auth.GenerateVerificationCode,
		schedule: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		sweeps: make(map[string]stopper),
	}
}

// Signup creates an unverified account and mails its code. Signing up again
// with an email that is still unverified refreshes the pending account.
func (s *AccountService) Signup(ctx context.Context, in models.UserSignup) (*models.User, error) {
	email := normalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if email == "" || fullName == "" || in.Password == "" {
		return nil, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	existing, err := s.db.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		existing = nil
	case err != nil:
		return nil, internal("signup lookup", err)
	case existing.IsVerified:
		return nil, ErrAlreadyVerified
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}
	code, err := s.uniqueCode(ctx, email)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.cfg.VerificationTTL)

	// Nothing is stored unless the code actually went out
	if err := s.mail.SendVerificationCode(ctx, email, code); err != nil {
		log.Error("Failed to send verification email to %s: %v", email, err)
		return nil, apperr.External("Failed to send verification email", err)
	}

	user := existing
	if user == nil {
		user = &models.User{Email: email}
	}
	user.FullName = fullName
	user.PasswordHash = hash
	user.VerificationCode = code
	user.VerificationExpiresAt = &expires

	if existing != nil {
		err = s.db.UpdateUser(ctx, user)
	} else {
		err = s.db.CreateUser(ctx, user)
	}
	if errors.Is(err, database.ErrUserAlreadyExists) {
		return nil, apperr.Conflict("User already exists")
	}
	if err != nil {
		return nil, internal("signup save", err)
	}

	s.scheduleSweep(email, expires)
	log.Info("Signup pending verification for %s", email)
	return user, nil
}

// codeAttempts bounds how often Signup redraws a code that another pending
// account already holds
const codeAttempts = 5

// uniqueCode draws a verification code no other live pending account holds, so
// a code always verifies exactly one account.
func (s *AccountService) uniqueCode(ctx context.Context, email string) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", internal("verification code", err)
		}
		holder, err := s.db.GetUserByVerificationCode(ctx, code, s.now())
		if errors.Is(err, database.ErrUserNotFound) || (err == nil && holder.Email == email) {
			return code, nil
		}
		if err != nil {
			return "", internal("verification code lookup", err)
		}
		log.Debug("Verification code collision for %s, redrawing", email)
	}
	return "", internal("verification code", errors.New("no free code after retries"))
}

// scheduleSweep arms the one-shot deletion of an unverified account. A
// previous timer for the same email is replaced.
func (s *AccountService) scheduleSweep(email string, at time.Time) {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	// A little slack so the persisted expiry has surely passed when it fires
	delay += time.Second

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sweeps[email]; ok {
		prev.Stop()
	}
	s.sweeps[email] = s.schedule(delay, func() { s.sweepOne(email) })
}

func (s *AccountService) cancelSweep(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.sweeps[email]; ok {
		t.Stop()
		delete(s.sweeps, email)
	}
}

// sweepOne deletes the account only if, at fire time, it is still unverified
// and its stored expiry has passed. A refreshed signup moves the expiry.
func (s *AccountService) sweepOne(email string) {
	s.mu.Lock()
	delete(s.sweeps, email)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deleted, err := s.db.DeleteUnverifiedUser(ctx, email, s.now())
	if err != nil {
		log.Error("Failed to sweep unverified user %s: %v", email, err)
		return
	}
	if deleted {
		log.Info("Deleted unverified user %s", email)
	}
}

// SweepExpired deletes every unverified account whose window has closed.
func (s *AccountService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.db.DeleteExpiredUnverifiedUsers(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("Swept %d expired unverified users", n)
	}
	return n, nil
}

// RunSweeper sweeps once immediately and then every interval until ctx is done.
// It covers timers lost to a restart.
func (s *AccountService) RunSweeper(ctx context.Context, interval time.Duration) {
	if _, err := s.SweepExpired(ctx); err != nil {
		log.Error("Startup sweep failed: %v", err)
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				log.Error("Periodic sweep failed: %v", err)
			}
		}
	}
}

// Stop cancels every pending one-shot sweep
func (s *AccountService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, t := range s.sweeps {
		t.Stop()
		delete(s.sweeps, email)
	}
}

// VerifyEmail marks the account holding code as verified
func (s *AccountService) VerifyEmail(ctx context.Context, code string) (*models.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("Verification code is required")
	}

	user, err := s.db.GetUserByVerificationCode(ctx, code, s.now())
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, internal("verify lookup", err)
	}

	user.IsVerified = true
	user.VerificationCode = ""
	user.VerificationExpiresAt = nil
	if err := s.db.UpdateUser(ctx, user); err != nil {
		return nil, internal("verify save", err)
	}

	s.cancelSweep(user.Email)
	log.Info("Verified %s", user.Email)
	return user, nil
}

// Login checks credentials. Tokens are issued by the caller.
func (s *AccountService) Login(ctx context.Context, in models.UserLogin) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, internal("login lookup", err)
	}
	if !auth.CheckPasswordHash(in.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}
	return user, nil
}

// CurrentUser loads the account behind a session
func (s *AccountService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrSessionUserNotFound
	}
	if err != nil {
		return nil, internal("current user", err)
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of in. A profile picture must be
// an image data URL; it is uploaded and the hosted URL is stored.
func (s *AccountService) UpdateProfile(ctx context.Context, userID uuid.UUID, in models.ProfileUpdate) (*models.User, error) {
	if in.ProfilePic == nil && in.FullName == nil && in.About == nil {
		return nil, ErrNothingToUpdate
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, apperr.Validation("Full name cannot be empty")
		}
		user.FullName = name
	}
	if in.About != nil {
		about := strings.TrimSpace(*in.About)
		if len(about) > maxAboutLength {
			return nil, apperr.Validation("About must be at most 500 characters")
		}
		user.About = about
	}
	if in.ProfilePic != nil {
		if *in.ProfilePic == "" {
			return nil, apperr.Validation("Profile pic is required")
		}
		url, err := uploadImage(ctx, s.images, storage.FolderProfiles, *in.ProfilePic)
		if err != nil {
			return nil, err
		}
		user.ProfilePic = url
	}

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return nil, internal("update profile", err)
	}
	return user, nil
}

// RequestPasswordReset mails a single-use reset link
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	if s.cfg.FrontendURL == "" {
		log.Error("FRONTEND_URL is not set; cannot build reset link")
		return ErrFrontendURLMissing
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if errors.Is(err, database.ErrUserNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return internal("reset lookup", err)
	}

	token, err := auth.GenerateResetToken()
	if err != nil {
		return internal("reset token", err)
	}
	link := s.cfg.FrontendURL + "/reset-password/" + token

	if err := s.mail.SendPasswordReset(ctx, email, link); err != nil {
		log.Error("Failed to send reset email to %s: %v", email, err)
		return apperr.External("Failed to send password reset email", err)
	}

	expires := s.now().Add(s.cfg.ResetTTL)
	user.ResetToken = token
	user.ResetExpiresAt = &expires
	if err := s.db.UpdateUser(ctx, user); err != nil {
		return internal("reset save", err)
	}
	return nil
}

// ResetPassword consumes token and sets a new password
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return apperr.Validation("Token and new password are required")
	}
	if len(newPassword) < auth.MinPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.db.GetUserByResetToken(ctx, token, s.now())
	if errors.Is(err, database.ErrUserNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return internal("reset password lookup", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return internal("hash password", err)
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetExpiresAt = nil
	if err := s.db.UpdateUser(ctx, user); err != nil {
		return internal("reset password save", err)
	}

	// The password already changed; a lost confirmation is only logged
	if err := s.mail.SendPasswordResetSuccess(ctx, user.Email); err != nil {
		log.Warn("Failed to send reset confirmation to %s: %v", user.Email, err)
	}
	return nil
}

// uploadImage turns a client data URL into a hosted URL
func uploadImage(ctx context.Context, images storage.ImageStore, folder, dataURL string) (string, error) {
	if !storage.IsDataURL(dataURL) {
		return "", apperr.Validation(storage.ErrInvalidDataURL.Error())
	}
	url, err := images.UploadDataURL(ctx, folder, dataURL)
	switch {
	case errors.Is(err, storage.ErrInvalidDataURL), errors.Is(err, storage.ErrNotAnImage), errors.Is(err, storage.ErrTooLarge):
		return "", apperr.Validation(err.Error())
	case err != nil:
		log.Error("Image upload to %s failed: %v", folder, err)
		return "", apperr.External("Failed to upload image", err)
	}
	return url, nil
}
