package models

import "time"

const (
	NotificationTypeComment      = "comment"
	NotificationTypeCommentReply = "comment_reply"
	NotificationTypeCommentLike  = "comment_like"
)

// Notification is an in-app notification for a user (PostgreSQL)
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"` // comment, comment_reply, comment_like
	ActorID     uint      `json:"actor_id" gorm:"index"`
	RecipientID uint      `json:"recipient_id" gorm:"index"`
	TargetID    string    `json:"target_id"`                  // recipe ID or comment ID
	TargetType  string    `json:"target_type" gorm:"size:20"` // recipe, comment
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
