package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"unicode/utf8"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
)

const (
	// MinPasswordLength is counted in characters, not bytes.
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

const (
	msgRequired         = "Email and password are required."
	msgInvalidLogin     = "Invalid email or password."
	msgEmailTaken       = "An account with this email already exists."
	msgUserNotFound     = "User not found."
	msgCurrentIncorrect = "Current password is incorrect."
)

// CredentialStore is the subset of the user repository the service needs.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, email, passwordHash string) (uint, error)
	UpdatePassword(ctx context.Context, id uint, passwordHash string) (bool, error)
}

// Service handles registration, login and password changes.
//
// The error return of every operation is reserved for store failures;
// credential and policy problems are reported through Result.
type Service struct {
	store     CredentialStore
	cost      int
	dummyHash []byte
}

// NewService creates an auth service. cost <= 0 selects models.PasswordCost.
func NewService(store CredentialStore, cost int) (*Service, error) {
	if cost <= 0 {
		cost = models.PasswordCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// The dummy hash has the same cost as real hashes so that a lookup miss
	// burns the same time as a wrong password. Its plaintext is discarded.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate dummy secret: %w", err)
	}
	dummy, err := bcrypt.GenerateFromPassword(secret, cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}

	return &Service{store: store, cost: cost, dummyHash: dummy}, nil
}

// Login verifies credentials and returns the matching user on success.
func (s *Service) Login(ctx context.Context, email, password string) (Result, error) {
	if email == "" || password == "" {
		return failure(InvalidCredentials, msgRequired), nil
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return Result{}, fmt.Errorf("find user by email: %w", err)
		}
		s.dummyCheck(password)
		return failure(InvalidCredentials, msgInvalidLogin), nil
	}

	if !s.verify(user, password) {
		return failure(InvalidCredentials, msgInvalidLogin), nil
	}

	return success(user), nil
}

// Register creates a new account and returns the stored user.
func (s *Service) Register(ctx context.Context, email, password string) (Result, error) {
	if email == "" || password == "" {
		return failure(InvalidCredentials, msgRequired), nil
	}
	if r, weak := checkPasswordPolicy(password); weak {
		return r, nil
	}

	exists, err := s.store.Exists(ctx, email)
	if err != nil {
		return Result{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return failure(EmailAlreadyExists, msgEmailTaken), nil
	}

	hash, err := models.HashPassword(password, s.cost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.Create(ctx, email, hash)
	if err != nil {
		// A concurrent registration may win between Exists and Create.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return failure(EmailAlreadyExists, msgEmailTaken), nil
		}
		return Result{}, fmt.Errorf("create user: %w", err)
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("reload user %d: %w", id, err)
	}

	fiberlog.Infof("[Auth] registered user %d", user.ID)
	return success(user), nil
}

// ChangePassword replaces the password after verifying the current one.
// On success the returned user is the record as it was before the change.
func (s *Service) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) (Result, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failure(InvalidCredentials, msgUserNotFound), nil
		}
		return Result{}, fmt.Errorf("find user %d: %w", userID, err)
	}

	if !s.verify(user, currentPassword) {
		return failure(InvalidCredentials, msgCurrentIncorrect), nil
	}

	if r, weak := checkPasswordPolicy(newPassword); weak {
		return r, nil
	}

	hash, err := models.HashPassword(newPassword, s.cost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}

	changed, err := s.store.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return Result{}, fmt.Errorf("update password for user %d: %w", userID, err)
	}
	if !changed {
		return failure(InvalidCredentials, msgUserNotFound), nil
	}

	fiberlog.Infof("[Auth] password changed for user %d", userID)
	return success(user), nil
}

// verify treats every bcrypt error (mismatch, malformed hash) as a failed check.
func (s *Service) verify(user *models.User, password string) bool {
	return user.CheckPassword(password)
}

func (s *Service) dummyCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func checkPasswordPolicy(password string) (Result, bool) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return failure(WeakPassword, fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)), true
	}
	if len(password) > MaxPasswordBytes {
		return failure(WeakPassword, fmt.Sprintf("Password must be at most %d bytes.", MaxPasswordBytes)), true
	}
	return Result{}, false
}
