package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/notify"
	"github.com/meyoo/platform/internal/organizations"
	"github.com/meyoo/platform/internal/tasks"
	"gorm.io/gorm"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrCodeInvalid        = errors.New("verification code is invalid or expired")
)

// Rows in these statuses are invitation placeholders, not credentials:
// pending invites activate through the reconciler, lapsed ones need a
// fresh invitation first.
var inviteStatuses = []models.Status{models.StatusInvited, models.StatusExpired}

// Service is the auth provider surface: it authenticates credentials
// (password, emailed code, Google OAuth) and funnels every success through
// the Reconciler before issuing a session token.
type Service struct {
	db         *gorm.DB
	jwt        *JWTService
	reconciler *Reconciler
	codes      notify.CodeStore
	sender     notify.Sender
	queue      *asynq.Client // nil when background delivery is disabled
	logger     *slog.Logger
}

func NewService(db *gorm.DB, jwt *JWTService, reconciler *Reconciler, codes notify.CodeStore, sender notify.Sender, queue *asynq.Client, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		jwt:        jwt,
		reconciler: reconciler,
		codes:      codes,
		sender:     sender,
		queue:      queue,
		logger:     logger,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a password credential and reconciles it. Signing up with
// an email that only has a pending invite activates the invite; an email
// already attached to an active account is rejected.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := organizations.NormalizeEmail(input.Email)

	var existing models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND status NOT IN ?", email, inviteStatuses).
		First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := s.rejectLapsedInvite(ctx, email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         input.Name,
		Status:       models.StatusActive,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	return s.finishLogin(ctx, user.ID, Profile{
		Email: email,
		Name:  input.Name,
	})
}

// Login authenticates a password credential.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	email := organizations.NormalizeEmail(input.Email)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND status NOT IN ?", email, inviteStatuses).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.rejectLapsedInvite(ctx, email); err != nil {
				return nil, err
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Status == models.StatusSuspended || user.Status == models.StatusDeleted {
		return nil, ErrInactiveUser
	}
	if user.PasswordHash == "" || !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.finishLogin(ctx, user.ID, Profile{Email: email})
}

// RequestLoginCode schedules delivery of a one-time login code. It does not
// reveal whether the address has an account.
func (s *Service) RequestLoginCode(ctx context.Context, email string) error {
	email = organizations.NormalizeEmail(email)

	if s.queue != nil {
		task, err := tasks.NewLoginCodeEmailTask(tasks.LoginCodeEmailPayload{Email: email})
		if err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(task, asynq.Queue("critical")); err != nil {
			return err
		}
		return nil
	}

	// No worker available: issue and deliver inline.
	code, err := s.codes.Issue(ctx, email)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, email, code, notify.PurposeLoginCode)
}

// VerifyLoginCode consumes an emailed code. A verified mailbox is a full
// authentication: the auth user is created on first login, and invited
// users activate here.
func (s *Service) VerifyLoginCode(ctx context.Context, email, code string) (*AuthResponse, error) {
	email = organizations.NormalizeEmail(email)

	ok, err := s.codes.Verify(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCodeInvalid
	}

	userID, err := s.ensureAuthUser(ctx, email)
	if err != nil {
		return nil, err
	}

	return s.finishLogin(ctx, userID, Profile{
		Email:         email,
		EmailVerified: true,
	})
}

// GetUserByID loads a user with its organization.
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Organization").
		First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ensureAuthUser returns the caller identity row for an email credential,
// minting one when the address has no active account yet. Invited rows stay
// untouched here; the reconciler handles their activation. Lapsed invites
// fail outright so no orphan auth row gets minted for them.
func (s *Service) ensureAuthUser(ctx context.Context, email string) (uuid.UUID, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND status NOT IN ?", email, inviteStatuses).
		First(&user).Error
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}
	if err := s.rejectLapsedInvite(ctx, email); err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	user = models.User{
		Email:           email,
		Status:          models.StatusActive,
		EmailVerifiedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// rejectLapsedInvite fails the attempt when the address holds an expired
// invite and nothing else. Re-inviting resets the clock; until then the
// address cannot sign in or register.
func (s *Service) rejectLapsedInvite(ctx context.Context, email string) error {
	var lapsed models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND status = ?", email, models.StatusExpired).
		First(&lapsed).Error
	if err == nil {
		return ErrInviteExpired
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// finishLogin runs reconciliation and issues the session token for the
// surviving user.
func (s *Service) finishLogin(ctx context.Context, callerID uuid.UUID, profile Profile) (*AuthResponse, error) {
	survivorID, err := s.reconciler.Reconcile(ctx, callerID, profile)
	if err != nil {
		return nil, err
	}

	user, err := s.GetUserByID(ctx, survivorID)
	if err != nil {
		return nil, err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.OrganizationID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{Token: token, User: user}, nil
}
