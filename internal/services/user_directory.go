package services

import (
	"context"
	"errors"
	"fmt"

	"portal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound is returned when no user has the requested subject
var ErrUserNotFound = errors.New("user not found")

// UserDirectory stores local user records keyed by identity provider subject
type UserDirectory interface {
	// FindBySubject returns ErrUserNotFound when no row exists
	FindBySubject(ctx context.Context, subject string) (*models.User, error)
	// Create inserts the user and reports whether a row was written.
	// A row already present for the subject is left untouched.
	Create(ctx context.Context, user *models.User) (bool, error)
}

// GormUserDirectory is the gorm-backed UserDirectory
type GormUserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) FindBySubject(ctx context.Context, subject string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("auth0_id = ?", subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

func (d *GormUserDirectory) Create(ctx context.Context, user *models.User) (bool, error) {
	// Two first logins for the same subject can race past the lookup;
	// the unique index makes the loser a no-op.
	result := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "auth0_id"}}, DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert user: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
