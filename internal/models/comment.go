package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment is a comment on a recipe. Top-level comments have no parent;
// replies point at a top-level comment of the same recipe.
type Comment struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey"`
	RecipeID        string    `json:"recipe_id" gorm:"size:24;index"` // MongoDB ObjectID hex of the recipe
	ParentCommentID *string   `json:"parent_comment_id,omitempty" gorm:"type:uuid;index"`
	UserID          uint      `json:"user_id" gorm:"index"`
	Content         string    `json:"content" gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

// BeforeCreate assigns a uuid when the caller did not set one.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CreateCommentRequest defines the request body for commenting on a recipe or
// replying to one of its comments.
type CreateCommentRequest struct {
	Content  string `json:"content" validate:"required,min=1,max=500"`
	ParentID string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
}
