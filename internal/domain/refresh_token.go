package domain

import "time"

// RefreshToken is one persisted session (one per device or browser).
//
// TokenHash is a peppered SHA-256 of the signed refresh token; the raw value
// is never stored. A refresh must match (TokenHash, UserID) exactly.
type RefreshToken struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	UserID int64 `json:"userId" gorm:"index;not null"`
	User   *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`

	TokenHash  string `json:"-" gorm:"size:64;uniqueIndex;not null"`
	DeviceInfo string `json:"deviceInfo" gorm:"size:255;not null;default:''"`

	ExpiresAt time.Time `json:"expiresAt" gorm:"index;not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
