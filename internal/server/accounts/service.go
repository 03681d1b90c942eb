// Package accounts contains the account workflow: registration with an
// emailed verification code, login, profile updates, password change and
// the forgotten-password reset flow. Transport concerns (cookies, status
// codes, temp files) live in the rest package.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/common"
	"github.com/dmitrijs2005/gophaccounts/internal/cryptox"
	"github.com/dmitrijs2005/gophaccounts/internal/logging"
	"github.com/dmitrijs2005/gophaccounts/internal/server/limiter"
	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
	accountsrepo "github.com/dmitrijs2005/gophaccounts/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophaccounts/internal/timex"
)

const (
	// verificationCodeSpace bounds verification codes to [0, 999999].
	verificationCodeSpace = 1_000_000
	// resetCodeSpace bounds reset codes to [0, 9999999].
	resetCodeSpace = 10_000_000
	// maxResetCodeDraws caps redraws when a reset code is already held by
	// another account.
	maxResetCodeDraws = 5

	verifySubject = "Verify your account"
	resetSubject  = "Request for Reseting Password"
)

// ErrResetCodeSpaceExhausted is returned when no free reset code was found.
var ErrResetCodeSpaceExhausted = errors.New("could not allocate a unique reset code")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Mailer delivers one email synchronously.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ImageStore keeps avatar images.
type ImageStore interface {
	Upload(ctx context.Context, r io.Reader, contentType string) (models.Avatar, error)
	Delete(ctx context.Context, id string) error
}

// Limiter counts failed attempts per key.
type Limiter interface {
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// Upload is avatar content handed over by the transport.
type Upload struct {
	Body        io.Reader
	ContentType string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	// Avatar is optional.
	Avatar *Upload
}

type UpdateProfileInput struct {
	// Name is applied when non-empty.
	Name string
	// Avatar replaces the stored image when set.
	Avatar *Upload
}

// Settings are the workflow's time windows.
type Settings struct {
	OTPValidity      time.Duration
	ResetOTPValidity time.Duration
}

// Service runs the account workflow over its collaborators. It holds no
// per-request state; concurrent read-modify-write cycles on one account are
// not isolated from each other.
type Service struct {
	repo     accountsrepo.Repository
	hasher   Hasher
	mailer   Mailer
	images   ImageStore
	limiter  Limiter
	settings Settings
	clock    timex.Clock
	genCode  func(max int64) (int, error)
	l        logging.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock used for code expiry.
func WithClock(c timex.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLimiter enables attempt limiting for code verification and login.
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.l = l }
}

// WithCodeGenerator replaces the random source for one-time codes.
func WithCodeGenerator(gen func(max int64) (int, error)) Option {
	return func(s *Service) { s.genCode = gen }
}

func NewService(repo accountsrepo.Repository, hasher Hasher, mailer Mailer, images ImageStore, settings Settings, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		mailer:   mailer,
		images:   images,
		limiter:  limiter.NopLimiter{},
		settings: settings,
		clock:    timex.SystemClock,
		genCode:  cryptox.GenerateCode,
		l:        logging.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func verifyKey(accountID string) string { return "verify:" + accountID }
func loginKey(email string) string      { return "login:" + email }

// Register creates an unverified account holding a fresh verification code
// and mails the code to the account's address.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, common.ErrMissingFields
	}

	// duplicates are rejected before anything is uploaded, stored or sent
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, common.ErrDuplicateAccount
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, common.Collaborator("find account", err)
	}

	code, err := s.genCode(verificationCodeSpace)
	if err != nil {
		return nil, common.Collaborator("generate code", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, common.Collaborator("hash password", err)
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Verification: &models.Challenge{Code: code, ExpiresAt: s.clock().Add(s.settings.OTPValidity)},
	}

	if in.Avatar != nil {
		avatar, err := s.images.Upload(ctx, in.Avatar.Body, in.Avatar.ContentType)
		if err != nil {
			return nil, common.Collaborator("upload avatar", err)
		}
		account.Avatar = avatar
	}

	if err := s.repo.Create(ctx, account); err != nil {
		s.discardAvatar(ctx, account.Avatar)
		if errors.Is(err, common.ErrDuplicateAccount) {
			return nil, common.ErrDuplicateAccount
		}
		return nil, common.Collaborator("create account", err)
	}

	if err := s.mailer.Send(ctx, email, verifySubject, fmt.Sprintf("Your OTP is %d", code)); err != nil {
		return nil, common.Collaborator("send mail", err)
	}

	s.l.Info(ctx, "account registered", "account_id", account.ID)

	account.PasswordHash = ""
	return account, nil
}

// discardAvatar removes an image uploaded for an account that was never
// stored.
func (s *Service) discardAvatar(ctx context.Context, avatar models.Avatar) {
	if avatar.ID == "" {
		return
	}
	if err := s.images.Delete(ctx, avatar.ID); err != nil {
		s.l.Warn(ctx, "orphaned avatar not deleted", "avatar_id", avatar.ID, "error", err)
	}
}

// VerifyOTP marks the account verified when code matches its pending
// verification code before expiry. A rejected code changes nothing on the
// account.
func (s *Service) VerifyOTP(ctx context.Context, accountID string, code int) (*models.Account, error) {
	if err := s.limiter.Check(ctx, verifyKey(accountID)); err != nil {
		return nil, common.Collaborator("check attempts", err)
	}

	account, err := s.loadSubject(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if !account.Verification.Valid(code, s.clock()) {
		if err := s.limiter.Fail(ctx, verifyKey(accountID)); err != nil {
			return nil, common.Collaborator("record attempt", err)
		}
		return nil, common.ErrInvalidOrExpiredOTP
	}

	account.Verified = true
	account.Verification = nil

	if err := s.repo.Save(ctx, account); err != nil {
		return nil, common.Collaborator("save account", err)
	}

	s.resetAttempts(ctx, verifyKey(accountID))
	s.l.Info(ctx, "account verified", "account_id", account.ID)

	return account, nil
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords fail with the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.ErrMissingCredentials
	}

	if err := s.limiter.Check(ctx, loginKey(email)); err != nil {
		return nil, common.Collaborator("check attempts", err)
	}

	account, err := s.repo.FindByEmail(ctx, email, accountsrepo.WithPasswordHash())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, s.failLogin(ctx, email)
		}
		return nil, common.Collaborator("find account", err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		if !errors.Is(err, cryptox.ErrMalformedHash) {
			return nil, common.Collaborator("verify password", err)
		}
		// unusable stored hash answers like a wrong password
		s.l.Error(ctx, "stored password hash unreadable", "account_id", account.ID, "error", err)
		ok = false
	}
	if !ok {
		return nil, s.failLogin(ctx, email)
	}

	s.resetAttempts(ctx, loginKey(email))

	account.PasswordHash = ""
	return account, nil
}

func (s *Service) failLogin(ctx context.Context, email string) error {
	if err := s.limiter.Fail(ctx, loginKey(email)); err != nil {
		return common.Collaborator("record attempt", err)
	}
	return common.ErrInvalidCredentials
}

func (s *Service) resetAttempts(ctx context.Context, key string) {
	if err := s.limiter.Reset(ctx, key); err != nil {
		s.l.Warn(ctx, "attempt counter not reset", "error", err)
	}
}

// Profile returns the account behind an authenticated request.
func (s *Service) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	return s.loadSubject(ctx, accountID)
}

// loadSubject loads the account named by a token. An account that no
// longer exists makes the token useless, so it reads as unauthorized.
func (s *Service) loadSubject(ctx context.Context, accountID string, opts ...accountsrepo.FindOption) (*models.Account, error) {
	account, err := s.repo.FindByID(ctx, accountID, opts...)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, common.Collaborator("find account", err)
	}
	return account, nil
}

// UpdateProfile renames the account and replaces its avatar. The old image
// is deleted before the new one is uploaded.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in UpdateProfileInput) (*models.Account, error) {
	account, err := s.loadSubject(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		account.Name = name
	}

	if in.Avatar != nil {
		deleted := false
		if account.Avatar.ID != "" {
			if err := s.images.Delete(ctx, account.Avatar.ID); err != nil {
				return nil, common.Collaborator("delete avatar", err)
			}
			account.Avatar = models.Avatar{}
			deleted = true
		}

		avatar, err := s.images.Upload(ctx, in.Avatar.Body, in.Avatar.ContentType)
		if err != nil {
			s.forgetDeletedAvatar(ctx, account, deleted)
			return nil, common.Collaborator("upload avatar", err)
		}
		account.Avatar = avatar
	}

	if err := s.repo.Save(ctx, account); err != nil {
		return nil, common.Collaborator("save account", err)
	}

	return account, nil
}

// forgetDeletedAvatar stores the account without the image that was just
// deleted, so it never points at a missing object. The rest of the update
// is not applied.
func (s *Service) forgetDeletedAvatar(ctx context.Context, account *models.Account, deleted bool) {
	if !deleted {
		return
	}

	stored, err := s.repo.FindByID(ctx, account.ID)
	if err == nil {
		stored.Avatar = models.Avatar{}
		err = s.repo.Save(ctx, stored)
	}
	if err != nil {
		s.l.Error(ctx, "avatar reference not cleared", "account_id", account.ID, "error", err)
	}
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return common.ErrMissingFields
	}

	account, err := s.loadSubject(ctx, accountID, accountsrepo.WithPasswordHash())
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil {
		return common.Collaborator("verify password", err)
	}
	if !ok {
		return common.ErrInvalidOldPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.Collaborator("hash password", err)
	}
	account.PasswordHash = hash

	if err := s.repo.Save(ctx, account); err != nil {
		return common.Collaborator("save account", err)
	}

	s.l.Info(ctx, "password changed", "account_id", account.ID)
	return nil
}

// RequestPasswordReset puts a reset code on the account registered under
// email and mails it. The code is unique among unexpired reset codes at the
// time it is drawn.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return common.ErrMissingFields
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return common.Collaborator("find account", err)
	}

	now := s.clock()
	code, err := s.drawResetCode(ctx, account.ID, now)
	if err != nil {
		return err
	}

	account.Reset = &models.Challenge{Code: code, ExpiresAt: now.Add(s.settings.ResetOTPValidity)}

	if err := s.repo.Save(ctx, account); err != nil {
		return common.Collaborator("save account", err)
	}

	body := fmt.Sprintf("Your Otp for changing password is %d. If you did not request for this, please ignore this email.", code)
	if err := s.mailer.Send(ctx, account.Email, resetSubject, body); err != nil {
		return common.Collaborator("send mail", err)
	}

	s.l.Info(ctx, "password reset requested", "account_id", account.ID)
	return nil
}

func (s *Service) drawResetCode(ctx context.Context, accountID string, now time.Time) (int, error) {
	for i := 0; i < maxResetCodeDraws; i++ {
		code, err := s.genCode(resetCodeSpace)
		if err != nil {
			return 0, common.Collaborator("generate code", err)
		}

		holder, err := s.repo.FindByResetOTP(ctx, code, now)
		switch {
		case errors.Is(err, common.ErrNotFound):
			return code, nil
		case err != nil:
			return 0, common.Collaborator("find reset code", err)
		case holder.ID == accountID:
			return code, nil
		}
		s.l.Debug(ctx, "reset code collision, drawing again", "attempt", i+1)
	}
	return 0, common.Collaborator("generate code", ErrResetCodeSpaceExhausted)
}

// CompletePasswordReset sets a new password on the account holding code,
// clears its reset track and mails a confirmation.
func (s *Service) CompletePasswordReset(ctx context.Context, code int, newPassword string) error {
	if newPassword == "" {
		return common.ErrMissingFields
	}

	account, err := s.repo.FindByResetOTP(ctx, code, s.clock())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrInvalidOrExpiredResetOTP
		}
		return common.Collaborator("find reset code", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.Collaborator("hash password", err)
	}

	account.Reset = nil
	account.PasswordHash = hash

	if err := s.repo.Save(ctx, account); err != nil {
		return common.Collaborator("save account", err)
	}

	if err := s.mailer.Send(ctx, account.Email, resetSubject, "Password Changed Successfully"); err != nil {
		return common.Collaborator("send mail", err)
	}

	s.l.Info(ctx, "password reset completed", "account_id", account.ID)
	return nil
}
