package repositories

import (
	"context"

	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id string) (*models.Comment, error)
	GetTopLevelByRecipeID(ctx context.Context, recipeID string) ([]models.Comment, error)
	GetReplies(ctx context.Context, parentID string) ([]models.Comment, error)
	ListByRecipeID(ctx context.Context, recipeID string, page, limit int) ([]models.Comment, int64, error)
	DeleteCommentThread(ctx context.Context, id string) (*models.Comment, int64, error)
}

// PostgresCommentRepository implements CommentRepository for PostgreSQL
type PostgresCommentRepository struct {
	db *gorm.DB
}

// NewPostgresCommentRepository creates a new PostgresCommentRepository
func NewPostgresCommentRepository(db *gorm.DB) *PostgresCommentRepository {
	return &PostgresCommentRepository{db: db}
}

// CreateComment inserts a comment. ID and CreatedAt are filled in on the
// passed value.
func (r *PostgresCommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(comment).Error, "create comment")
}

// validCommentID reports whether id can be compared with the uuid column.
func validCommentID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetCommentByID returns gorm.ErrRecordNotFound (unwrapped) when the comment
// does not exist or id is not a uuid.
func (r *PostgresCommentRepository) GetCommentByID(ctx context.Context, id string) (*models.Comment, error) {
	if !validCommentID(id) {
		return nil, gorm.ErrRecordNotFound
	}
	var comment models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetTopLevelByRecipeID lists the recipe's comments without a parent, newest first.
func (r *PostgresCommentRepository) GetTopLevelByRecipeID(ctx context.Context, recipeID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).
		Where("recipe_id = ? AND parent_comment_id IS NULL", recipeID).
		Order("created_at DESC").
		Find(&comments).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list comments of recipe %s", recipeID)
	}
	return comments, nil
}

// GetReplies lists the replies of a comment, oldest first.
func (r *PostgresCommentRepository) GetReplies(ctx context.Context, parentID string) ([]models.Comment, error) {
	var comments []models.Comment
	if !validCommentID(parentID) {
		return comments, nil
	}
	err := r.db.WithContext(ctx).
		Where("parent_comment_id = ?", parentID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list replies of comment %s", parentID)
	}
	return comments, nil
}

// ListByRecipeID returns one page of the recipe's comments, replies
// included, newest first, along with the total number of comments.
func (r *PostgresCommentRepository) ListByRecipeID(ctx context.Context, recipeID string, page, limit int) ([]models.Comment, int64, error) {
	var (
		comments []models.Comment
		total    int64
	)
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Comment{}).Where("recipe_id = ?", recipeID).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrapf(err, "count comments of recipe %s", recipeID)
	}

	offset := (page - 1) * limit
	err := db.Where("recipe_id = ?", recipeID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, 0, errors.Wrapf(err, "list comments of recipe %s", recipeID)
	}
	return comments, total, nil
}

// DeleteCommentThread removes a comment together with its replies and every
// like attached to them. It returns the deleted comment and the number of
// comment rows removed, or gorm.ErrRecordNotFound when nothing matched.
func (r *PostgresCommentRepository) DeleteCommentThread(ctx context.Context, id string) (*models.Comment, int64, error) {
	if !validCommentID(id) {
		return nil, 0, gorm.ErrRecordNotFound
	}
	var (
		deleted models.Comment
		removed int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&deleted).Error; err != nil {
			return err
		}
		thread := tx.Model(&models.Comment{}).Select("id").Where("id = ? OR parent_comment_id = ?", id, id)
		if err := tx.Where("comment_id IN (?)", thread).Delete(&models.CommentLike{}).Error; err != nil {
			return errors.Wrap(err, "delete comment likes")
		}
		res := tx.Where("id = ? OR parent_comment_id = ?", id, id).Delete(&models.Comment{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete comments")
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &deleted, removed, nil
}
