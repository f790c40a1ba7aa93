package repositories

import (
	"context"

	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommentLikeRepository defines the interface for comment like operations.
// Writes are idempotent and report whether a row actually changed.
type CommentLikeRepository interface {
	CreateCommentLike(ctx context.Context, like *models.CommentLike) (bool, error)
	DeleteCommentLike(ctx context.Context, commentID string, userID uint) (bool, error)
	HasUserLikedComment(ctx context.Context, commentID string, userID uint) (bool, error)
	GetLikesCount(ctx context.Context, commentID string) (int64, error)
}

type postgresCommentLikeRepository struct {
	db *gorm.DB
}

func NewPostgresCommentLikeRepository(db *gorm.DB) CommentLikeRepository {
	return &postgresCommentLikeRepository{db: db}
}

func (r *postgresCommentLikeRepository) CreateCommentLike(ctx context.Context, like *models.CommentLike) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(like)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "create comment like")
	}
	return res.RowsAffected > 0, nil
}

func (r *postgresCommentLikeRepository) DeleteCommentLike(ctx context.Context, commentID string, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("comment_id = ? AND user_id = ?", commentID, userID).Delete(&models.CommentLike{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "delete comment like")
	}
	return res.RowsAffected > 0, nil
}

func (r *postgresCommentLikeRepository) HasUserLikedComment(ctx context.Context, commentID string, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CommentLike{}).Where("comment_id = ? AND user_id = ?", commentID, userID).Count(&count).Error
	return count > 0, errors.Wrap(err, "check comment like")
}

func (r *postgresCommentLikeRepository) GetLikesCount(ctx context.Context, commentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CommentLike{}).Where("comment_id = ?", commentID).Count(&count).Error
	return count, errors.Wrap(err, "count comment likes")
}
