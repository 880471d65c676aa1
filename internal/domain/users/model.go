package users

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the directory record consulted by the orchestrator. Accounts are
// issued and verified by the auth service; this service only reads them.
type User struct {
	ID         uint `gorm:"primaryKey"`
	Name       string
	Lastname   string
	Username   string `gorm:"uniqueIndex:idx_users_username"`
	Email      string `gorm:"not null;uniqueIndex:idx_users_email"`
	Role       string `gorm:"type:varchar(20);not null;default:'user'"`
	IsVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
