// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"

	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/stretchr/testify/mock"
)

var (
	_ repositories.CommentRepository      = (*CommentRepository)(nil)
	_ repositories.CommentLikeRepository  = (*CommentLikeRepository)(nil)
	_ repositories.NotificationRepository = (*NotificationRepository)(nil)
	_ repositories.RecipeRepository       = (*RecipeRepository)(nil)
	_ repositories.UserRepository         = (*UserRepository)(nil)
)

type CommentRepository struct {
	mock.Mock
}

func (m *CommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *CommentRepository) GetCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Comment)
	return c, args.Error(1)
}

func (m *CommentRepository) GetTopLevelByRecipeID(ctx context.Context, recipeID string) ([]models.Comment, error) {
	args := m.Called(ctx, recipeID)
	cs, _ := args.Get(0).([]models.Comment)
	return cs, args.Error(1)
}

func (m *CommentRepository) GetReplies(ctx context.Context, parentID string) ([]models.Comment, error) {
	args := m.Called(ctx, parentID)
	cs, _ := args.Get(0).([]models.Comment)
	return cs, args.Error(1)
}

func (m *CommentRepository) ListByRecipeID(ctx context.Context, recipeID string, page, limit int) ([]models.Comment, int64, error) {
	args := m.Called(ctx, recipeID, page, limit)
	cs, _ := args.Get(0).([]models.Comment)
	return cs, args.Get(1).(int64), args.Error(2)
}

func (m *CommentRepository) DeleteCommentThread(ctx context.Context, id string) (*models.Comment, int64, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Comment)
	return c, args.Get(1).(int64), args.Error(2)
}

type CommentLikeRepository struct {
	mock.Mock
}

func (m *CommentLikeRepository) CreateCommentLike(ctx context.Context, like *models.CommentLike) (bool, error) {
	args := m.Called(ctx, like)
	return args.Bool(0), args.Error(1)
}

func (m *CommentLikeRepository) DeleteCommentLike(ctx context.Context, commentID string, userID uint) (bool, error) {
	args := m.Called(ctx, commentID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *CommentLikeRepository) HasUserLikedComment(ctx context.Context, commentID string, userID uint) (bool, error) {
	args := m.Called(ctx, commentID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *CommentLikeRepository) GetLikesCount(ctx context.Context, commentID string) (int64, error) {
	args := m.Called(ctx, commentID)
	return args.Get(0).(int64), args.Error(1)
}

type NotificationRepository struct {
	mock.Mock
}

func (m *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *NotificationRepository) GetByRecipientID(ctx context.Context, recipientID uint, page, limit int) ([]models.Notification, int64, error) {
	args := m.Called(ctx, recipientID, page, limit)
	ns, _ := args.Get(0).([]models.Notification)
	return ns, args.Get(1).(int64), args.Error(2)
}

func (m *NotificationRepository) GetUnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, recipientID uint) error {
	args := m.Called(ctx, notificationID, recipientID)
	return args.Error(0)
}

func (m *NotificationRepository) MarkAllAsRead(ctx context.Context, recipientID uint) error {
	args := m.Called(ctx, recipientID)
	return args.Error(0)
}

type RecipeRepository struct {
	mock.Mock
}

func (m *RecipeRepository) GetRecipeByID(ctx context.Context, id string) (*models.Recipe, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Recipe)
	return r, args.Error(1)
}

func (m *RecipeRepository) AdjustCommentsCount(ctx context.Context, recipeID string, delta int) error {
	args := m.Called(ctx, recipeID, delta)
	return args.Error(0)
}

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *UserRepository) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error) {
	args := m.Called(ctx, firebaseUID)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
