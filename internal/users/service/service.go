// Package service implements the user directory: lookups consumed by the
// instrument, purchase and claim services, registration and login, and the
// admin account management operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"coverline/internal/users/models"
	id "coverline/pkg/domain"
	dErrors "coverline/pkg/domain-errors"
	"coverline/pkg/messages"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/sentinel"
	"coverline/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, user *models.User) error
	CreateIfEmailAvailable(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
	ListInactiveByRole(ctx context.Context, role models.Role) ([]*models.User, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role string, expiresIn time.Duration) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

type Service struct {
	store      Store
	tokens     TokenIssuer
	tokenTTL   time.Duration
	bcryptCost int
	logger     *slog.Logger
	auditor    AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func New(store Store, tokens TokenIssuer, tokenTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByID returns the user or CodeNotFound.
func (s *Service) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, messages.Render(messages.UserNotFound, userID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// Exists reports whether a user with the given ID is registered.
func (s *Service) Exists(ctx context.Context, userID id.UserID) (bool, error) {
	_, err := s.store.FindByID(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check user")
}

// Register creates an account with a bcrypt password hash. Emails are unique
// case-insensitively. Admin accounts start inactive and cannot log in until
// another admin activates them.
func (s *Service) Register(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user := models.NewUser(id.NewUserID(), name, email, role, string(hash), requestcontext.Now(ctx))
	if err := s.store.CreateIfEmailAvailable(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, messages.Render(messages.EmailAlreadyRegistered, user.Email))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register user")
	}
	s.emit(ctx, audit.Event{
		UserID:  user.ID,
		Subject: user.ID.String(),
		Action:  string(audit.EventUserRegistered),
		Reason:  string(user.Role),
	})
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown email, wrong
// password and inactive accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := dErrors.New(dErrors.CodeUnauthorized, messages.Render(messages.InvalidCredentials))

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.emit(ctx, audit.Event{Action: string(audit.EventAuthFailed), Subject: models.NormalizeEmail(email), Reason: "unknown_email"})
			return nil, invalid
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventAuthFailed), Subject: user.ID.String(), Reason: "bad_password"})
		return nil, invalid
	}
	if !user.Active {
		s.emit(ctx, audit.Event{UserID: user.ID, Action: string(audit.EventAuthFailed), Subject: user.ID.String(), Reason: "inactive"})
		return nil, invalid
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, string(user.Role), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.emit(ctx, audit.Event{UserID: user.ID, Subject: user.ID.String(), Action: string(audit.EventUserLoggedIn)})

	return &LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		User:        user,
	}, nil
}

// FindByEmail returns the user registered under email or CodeNotFound.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, messages.Render(messages.UserNotFound, models.NormalizeEmail(email)))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// ListPending returns the accounts of role still waiting for activation.
func (s *Service) ListPending(ctx context.Context, role models.Role) ([]*models.User, error) {
	users, err := s.store.ListInactiveByRole(ctx, role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending users")
	}
	return users, nil
}

// Activate enables the account when it holds role. Activating an active
// account is a no-op success.
func (s *Service) Activate(ctx context.Context, userID id.UserID, role models.Role) (*models.User, error) {
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != role {
		return nil, dErrors.New(dErrors.CodeConflict, messages.Render(messages.UserRoleMismatch, userID, role))
	}
	if user.Active {
		return user, nil
	}
	return s.setActive(ctx, user, true, audit.EventUserActivated)
}

// Deactivate disables any account except the caller's own.
func (s *Service) Deactivate(ctx context.Context, userID id.UserID) (*models.User, error) {
	if userID == requestcontext.UserID(ctx) {
		return nil, dErrors.New(dErrors.CodeConflict, messages.Render(messages.UserSelfDeactivate))
	}
	user, err := s.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return user, nil
	}
	return s.setActive(ctx, user, false, audit.EventUserDeactivated)
}

// EnsureAdmin seeds an active admin so a fresh deployment has someone able
// to activate further admins. An existing admin with the same email is
// activated and kept; an existing customer is a conflict.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*models.User, error) {
	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			return nil, dErrors.New(dErrors.CodeConflict, messages.Render(messages.UserRoleMismatch, existing.ID, models.RoleAdmin))
		}
		if existing.Active {
			return existing, nil
		}
		return s.setActive(ctx, existing, true, audit.EventUserActivated)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	user, err := s.Register(ctx, name, email, password, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	activated, err := s.setActive(ctx, user, true, audit.EventUserActivated)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "bootstrap admin created", "user_id", activated.ID.String())
	return activated, nil
}

func (s *Service) setActive(ctx context.Context, user *models.User, active bool, action audit.AuditEvent) (*models.User, error) {
	updated := *user
	updated.Active = active
	if err := s.store.Save(ctx, &updated); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	event := audit.Event{UserID: updated.ID, Subject: updated.ID.String(), Action: string(action)}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	s.emit(ctx, event)
	return &updated, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
