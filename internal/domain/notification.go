package domain

import "time"

type NotificationType string

const (
	NotificationLike NotificationType = "like"
)

// Notification is addressed to UserID and describes what ActorID did.
// Actor and post details are denormalized so the feed renders without joins.
type Notification struct {
	ID            int64            `json:"id" gorm:"primaryKey"`
	UserID        int64            `json:"userId" gorm:"not null;index:idx_notifications_user_created,priority:1;index:idx_notifications_user_read,priority:1"`
	ActorID       int64            `json:"actorId" gorm:"not null"`
	ActorUsername string           `json:"actorUsername" gorm:"not null"`
	ActorPhoto    string           `json:"actorPhoto" gorm:"not null;default:''"`
	Type          NotificationType `json:"type" gorm:"size:32;not null"`
	PostID        int64            `json:"postId" gorm:"not null;index"`
	PostPhoto     string           `json:"postPhoto" gorm:"not null"`
	Read          bool             `json:"read" gorm:"not null;default:false;index:idx_notifications_user_read,priority:2"`
	CreatedAt     time.Time        `json:"createdAt" gorm:"index:idx_notifications_user_created,priority:2,sort:desc"`
}

func (Notification) TableName() string { return "notifications" }

func (t NotificationType) Valid() bool {
	return t == NotificationLike
}
