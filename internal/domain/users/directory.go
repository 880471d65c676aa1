package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrUnknownUser is returned when the directory has no record for an id.
var ErrUnknownUser = errors.New("unknown user")

// Owner is the identity forwarded to the inference service with a build.
type Owner struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsVerified bool   `json:"-"`
}

// Directory resolves owner ids to identities.
type Directory interface {
	Lookup(ctx context.Context, id uint) (*Owner, error)
}

// GormDirectory reads users from the shared users table.
type GormDirectory struct {
	DB *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{DB: db}
}

func (d *GormDirectory) Lookup(ctx context.Context, id uint) (*Owner, error) {
	var u User
	err := d.DB.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %d: %w", id, err)
	}

	username := u.Username
	if username == "" {
		username = u.Email
	}
	return &Owner{ID: u.ID, Email: u.Email, Username: username, IsVerified: u.IsVerified}, nil
}
