// Package commenttree keeps an in-memory, two-level comment thread for one
// recipe in step with the comment store, a live change stream and the
// current user's optimistic actions.
package commenttree

import (
	"context"
	"time"
)

// Comment is one node of the rendered thread. Replies is only populated on
// top-level comments.
type Comment struct {
	ID              string    `json:"id"`
	ParentCommentID string    `json:"parent_comment_id,omitempty"`
	ResourceID      string    `json:"resource_id"`
	AuthorID        string    `json:"author_id"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
	LikeCount       int       `json:"like_count"`
	LikedByMe       bool      `json:"liked_by_me"`
	Pending         bool      `json:"pending,omitempty"`
	Replies         []Comment `json:"replies,omitempty"`
}

// IsTopLevel reports whether the comment hangs directly off the recipe.
func (c Comment) IsTopLevel() bool { return c.ParentCommentID == "" }

// Resource identifies the recipe a synchronizer is attached to. AuthorID is
// the recipient of new-comment notifications.
type Resource struct {
	ID       string
	AuthorID string
}

// StoreReader loads the point-in-time state of a thread.
type StoreReader interface {
	// FetchTopLevelComments returns the recipe's top-level comments, newest first.
	FetchTopLevelComments(ctx context.Context, resourceID string) ([]Comment, error)
	// FetchReplies returns the direct replies of a comment, oldest first.
	FetchReplies(ctx context.Context, commentID string) ([]Comment, error)
	FetchLikeCount(ctx context.Context, commentID string) (int, error)
	FetchLiked(ctx context.Context, commentID, userID string) (bool, error)
}

// StoreWriter applies the current user's actions. DeleteComment returns an
// error matching ErrNotFound when the comment is already gone.
type StoreWriter interface {
	CreateComment(ctx context.Context, resourceID, parentID, authorID, body string) (Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	SetLike(ctx context.Context, commentID, userID string, liked bool) error
}

type Store interface {
	StoreReader
	StoreWriter
}

// Subscription is the handle returned by ChangeSource.Subscribe.
type Subscription interface {
	Unsubscribe() error
}

// ChangeSource delivers row-level change events for one recipe.
type ChangeSource interface {
	Subscribe(ctx context.Context, resourceID string, onEvent func(Event)) (Subscription, error)
}

// Identity supplies the signed-in user.
type Identity interface {
	CurrentUserID() (string, bool)
}

// UserID is an Identity for a fixed user; the empty UserID is signed out.
type UserID string

func (u UserID) CurrentUserID() (string, bool) { return string(u), u != "" }

// NotificationKind names the cross-user alert sent after a successful action.
type NotificationKind string

const (
	NotifyComment NotificationKind = "comment"
	NotifyReply   NotificationKind = "comment_reply"
	NotifyLike    NotificationKind = "comment_like"
)

// Notification is a fire-and-forget alert to another user.
type Notification struct {
	RecipientID string
	ActorID     string
	Kind        NotificationKind
	ReferenceID string
}

// Notifier delivers notifications. Failures are logged and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
