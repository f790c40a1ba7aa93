// Package commentstore backs commenttree.Store with the postgres comment
// tables and the mongo recipe collection, and announces every successful
// write on the realtime broker.
package commentstore

import (
	"context"
	"strconv"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/realtime"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var _ commenttree.Store = (*Store)(nil)

// Store implements commenttree.Store. A Store bound to an actor with
// WithActor refuses to delete comments written by someone else.
type Store struct {
	comments  repositories.CommentRepository
	likes     repositories.CommentLikeRepository
	recipes   repositories.RecipeRepository
	publisher realtime.Publisher
	actor     string
	log       zerolog.Logger
}

// New wires the repositories together. recipes and publisher may be nil, in
// which case comment counters are not maintained and no events are sent.
func New(comments repositories.CommentRepository, likes repositories.CommentLikeRepository, recipes repositories.RecipeRepository, publisher realtime.Publisher) *Store {
	return &Store{
		comments:  comments,
		likes:     likes,
		recipes:   recipes,
		publisher: publisher,
		log:       log.With().Str("component", "commentstore").Logger(),
	}
}

// WithActor returns a copy of s that performs writes on behalf of userID.
func (s *Store) WithActor(userID string) *Store {
	c := *s
	c.actor = userID
	c.log = s.log.With().Str("actor", userID).Logger()
	return &c
}

// Comment returns a single comment without replies or like data.
func (s *Store) Comment(ctx context.Context, id string) (commenttree.Comment, error) {
	row, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		return commenttree.Comment{}, notFoundOr(err, "get comment", id)
	}
	return toComment(row), nil
}

func (s *Store) FetchTopLevelComments(ctx context.Context, recipeID string) ([]commenttree.Comment, error) {
	rows, err := s.comments.GetTopLevelByRecipeID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return toComments(rows), nil
}

func (s *Store) FetchReplies(ctx context.Context, commentID string) ([]commenttree.Comment, error) {
	rows, err := s.comments.GetReplies(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return toComments(rows), nil
}

func (s *Store) FetchLikeCount(ctx context.Context, commentID string) (int, error) {
	n, err := s.likes.GetLikesCount(ctx, commentID)
	return int(n), err
}

func (s *Store) FetchLiked(ctx context.Context, commentID, userID string) (bool, error) {
	uid, err := parseUserID(userID)
	if err != nil {
		return false, err
	}
	return s.likes.HasUserLikedComment(ctx, commentID, uid)
}

// FetchPage returns one page of the recipe's comments as a flat list, newest
// first, with like counts, and the total number of comments.
func (s *Store) FetchPage(ctx context.Context, recipeID string, page, limit int) ([]commenttree.Comment, int64, error) {
	rows, total, err := s.comments.ListByRecipeID(ctx, recipeID, page, limit)
	if err != nil {
		return nil, 0, err
	}
	out := toComments(rows)
	for i := range out {
		n, err := s.likes.GetLikesCount(ctx, out[i].ID)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "count likes of comment %s", out[i].ID)
		}
		out[i].LikeCount = int(n)
	}
	return out, total, nil
}

// CreateComment stores a comment or, when parentID is set, a reply to a
// top-level comment of the same recipe.
func (s *Store) CreateComment(ctx context.Context, recipeID, parentID, authorID, body string) (commenttree.Comment, error) {
	uid, err := parseUserID(authorID)
	if err != nil {
		return commenttree.Comment{}, err
	}
	row := &models.Comment{RecipeID: recipeID, UserID: uid, Content: body}
	if parentID != "" {
		parent, err := s.comments.GetCommentByID(ctx, parentID)
		if err != nil {
			return commenttree.Comment{}, notFoundOr(err, "get parent comment", parentID)
		}
		if parent.RecipeID != recipeID || parent.ParentCommentID != nil {
			return commenttree.Comment{}, &commenttree.Error{Kind: commenttree.KindNotFound, Op: "reply", ID: parentID,
				Err: errors.New("parent is not a top-level comment of this recipe")}
		}
		row.ParentCommentID = &parentID
	}
	if err := s.comments.CreateComment(ctx, row); err != nil {
		return commenttree.Comment{}, err
	}

	c := toComment(row)
	s.publish(ctx, recipeID, commenttree.CommentEvent(commenttree.ChangeInsert, c))
	s.adjustCount(ctx, recipeID, 1)
	return c, nil
}

// DeleteComment removes a comment with its replies. A missing comment is
// reported as KindNotFound.
func (s *Store) DeleteComment(ctx context.Context, commentID string) error {
	if s.actor != "" {
		row, err := s.comments.GetCommentByID(ctx, commentID)
		if err != nil {
			return notFoundOr(err, "get comment", commentID)
		}
		if strconv.FormatUint(uint64(row.UserID), 10) != s.actor {
			return &commenttree.Error{Kind: commenttree.KindForbidden, Op: "delete comment", ID: commentID,
				Err: errors.New("comment belongs to another user")}
		}
	}

	deleted, removed, err := s.comments.DeleteCommentThread(ctx, commentID)
	if err != nil {
		return notFoundOr(err, "delete comment", commentID)
	}

	s.publish(ctx, deleted.RecipeID, commenttree.CommentEvent(commenttree.ChangeDelete, toComment(deleted)))
	s.adjustCount(ctx, deleted.RecipeID, -int(removed))
	return nil
}

// SetLike is idempotent: an existing like or a missing one is not an error,
// and only an actual change is published.
func (s *Store) SetLike(ctx context.Context, commentID, userID string, liked bool) error {
	uid, err := parseUserID(userID)
	if err != nil {
		return err
	}
	row, err := s.comments.GetCommentByID(ctx, commentID)
	if err != nil {
		return notFoundOr(err, "get comment", commentID)
	}

	var changed bool
	if liked {
		changed, err = s.likes.CreateCommentLike(ctx, &models.CommentLike{CommentID: commentID, UserID: uid})
	} else {
		changed, err = s.likes.DeleteCommentLike(ctx, commentID, uid)
	}
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, row.RecipeID, commenttree.LikeEvent(liked, commentID, userID))
	}
	return nil
}

func (s *Store) publish(ctx context.Context, recipeID string, ev commenttree.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, recipeID, ev); err != nil {
		s.log.Warn().Err(err).Str("recipe_id", recipeID).Str("entity", string(ev.Entity)).
			Msg("failed to publish comment change")
	}
}

func (s *Store) adjustCount(ctx context.Context, recipeID string, delta int) {
	if s.recipes == nil || delta == 0 {
		return
	}
	if err := s.recipes.AdjustCommentsCount(ctx, recipeID, delta); err != nil {
		s.log.Warn().Err(err).Str("recipe_id", recipeID).Int("delta", delta).
			Msg("failed to update recipe comments count")
	}
}

func notFoundOr(err error, op, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &commenttree.Error{Kind: commenttree.KindNotFound, Op: op, ID: id, Err: err}
	}
	return errors.Wrapf(err, "%s %s", op, id)
}

func parseUserID(id string) (uint, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, &commenttree.Error{Kind: commenttree.KindUnauthenticated, Op: "parse user id", ID: id}
	}
	return uint(n), nil
}

func toComment(row *models.Comment) commenttree.Comment {
	c := commenttree.Comment{
		ID:         row.ID,
		ResourceID: row.RecipeID,
		AuthorID:   strconv.FormatUint(uint64(row.UserID), 10),
		Body:       row.Content,
		CreatedAt:  row.CreatedAt,
	}
	if row.ParentCommentID != nil {
		c.ParentCommentID = *row.ParentCommentID
	}
	return c
}

func toComments(rows []models.Comment) []commenttree.Comment {
	out := make([]commenttree.Comment, 0, len(rows))
	for i := range rows {
		out = append(out, toComment(&rows[i]))
	}
	return out
}
