package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           int64    `json:"id" gorm:"primaryKey"`
	Username     string   `json:"username" gorm:"size:20;uniqueIndex;not null"`
	Email        string   `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"not null"`
	Photo        string   `json:"photo" gorm:"not null;default:''"`
	Role         UserRole `json:"role" gorm:"size:16;not null;default:user"`

	// Only a SHA-256 of the reset token is kept; the raw token travels once, by e-mail.
	ResetPasswordTokenHash *string    `json:"-" gorm:"size:64;index"`
	ResetPasswordExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// Profile is the public projection of a user.
type Profile struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Photo    string   `json:"photo"`
	Role     UserRole `json:"role"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Photo:    u.Photo,
		Role:     u.Role,
	}
}

// HasActiveReset reports whether a reset was requested and has not expired at now.
func (u *User) HasActiveReset(now time.Time) bool {
	return u.ResetPasswordTokenHash != nil && u.ResetPasswordExpiresAt != nil && now.Before(*u.ResetPasswordExpiresAt)
}
