package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/SubFox/app/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned by UserRepository.Create when the unique
	// email index rejects the insert.
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository defines the credential store operations on the users table.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, email, passwordHash string) (uint, error)
	UpdatePassword(ctx context.Context, id uint, passwordHash string) (bool, error)
}

// WebhookEventRepository persists received webhook deliveries.
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	Claim(ctx context.Context, id uint, staleBefore time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id uint, handled bool, processingError string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
