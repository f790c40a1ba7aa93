// Package notify turns comment activity into in-app notifications and, when
// Firebase Cloud Messaging is configured, push messages.
package notify

import (
	"context"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Pusher sends a push message. *messaging.Client satisfies it.
type Pusher interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Sink implements commenttree.Notifier.
type Sink struct {
	notifications repositories.NotificationRepository
	pusher        Pusher
	log           zerolog.Logger
}

var _ commenttree.Notifier = (*Sink)(nil)

// NewSink returns a Sink that stores notifications in repo. A nil pusher
// disables push messages.
func NewSink(repo repositories.NotificationRepository, pusher Pusher) *Sink {
	return &Sink{
		notifications: repo,
		pusher:        pusher,
		log:           log.With().Str("component", "notify").Logger(),
	}
}

// Topic is the FCM topic a user's devices subscribe to.
func Topic(userID uint) string {
	return "user_" + strconv.FormatUint(uint64(userID), 10)
}

func (s *Sink) Notify(ctx context.Context, n commenttree.Notification) error {
	recipient, err := strconv.ParseUint(n.RecipientID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid recipient %q", n.RecipientID)
	}
	actor, err := strconv.ParseUint(n.ActorID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid actor %q", n.ActorID)
	}

	row := &models.Notification{
		Type:        string(n.Kind),
		ActorID:     uint(actor),
		RecipientID: uint(recipient),
		TargetID:    n.ReferenceID,
		TargetType:  targetType(n.Kind),
		Message:     message(n.Kind),
	}
	if err := s.notifications.CreateNotification(ctx, row); err != nil {
		return err
	}

	if s.pusher == nil {
		return nil
	}
	_, err = s.pusher.Send(ctx, &messaging.Message{
		Topic: Topic(row.RecipientID),
		Notification: &messaging.Notification{
			Title: "RecipeSwap",
			Body:  row.Message,
		},
		Data: map[string]string{
			"type":        row.Type,
			"target_id":   row.TargetID,
			"target_type": row.TargetType,
			"actor_id":    n.ActorID,
		},
	})
	if err != nil {
		// the notification row is stored, the push is best effort
		s.log.Warn().Err(err).Uint("recipient_id", row.RecipientID).Str("type", row.Type).Msg("push failed")
	}
	return nil
}

func targetType(kind commenttree.NotificationKind) string {
	if kind == commenttree.NotifyComment {
		return "recipe"
	}
	return "comment"
}

func message(kind commenttree.NotificationKind) string {
	switch kind {
	case commenttree.NotifyComment:
		return "commented on your recipe"
	case commenttree.NotifyReply:
		return "replied to your comment"
	case commenttree.NotifyLike:
		return "liked your comment"
	}
	return "interacted with your content"
}
