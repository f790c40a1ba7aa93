package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	notifyTimeout = 10 * time.Second

	defaultPageSize = 20
	maxPageSize     = 50
)

// CommentStore is the comment storage a handler works with on behalf of one
// user.
type CommentStore interface {
	commenttree.Store
	Comment(ctx context.Context, id string) (commenttree.Comment, error)
	FetchPage(ctx context.Context, resourceID string, page, limit int) ([]commenttree.Comment, int64, error)
}

// CommentHandler handles HTTP and websocket requests related to comments
type CommentHandler struct {
	storeFor func(userID string) CommentStore
	recipes  repositories.RecipeRepository
	users    repositories.UserRepository
	source   commenttree.ChangeSource
	notifier commenttree.Notifier
	upgrader websocket.Upgrader

	bg sync.WaitGroup
}

// NewCommentHandler creates a new CommentHandler. storeFor returns the store
// acting for the given user ("" when anonymous). users and notifier may be
// nil; without users comments carry no author profile.
func NewCommentHandler(storeFor func(userID string) CommentStore, recipes repositories.RecipeRepository, users repositories.UserRepository, source commenttree.ChangeSource, notifier commenttree.Notifier) *CommentHandler {
	return &CommentHandler{
		storeFor: storeFor,
		recipes:  recipes,
		users:    users,
		source:   source,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterCommentRoutes registers comment-related routes. The group must run
// an authentication middleware that tolerates anonymous readers.
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.GET("/recipes/:id/comments", h.GetComments)
	g.POST("/recipes/:id/comments", h.CreateComment)
	g.GET("/recipes/:id/comments/live", h.StreamComments)
	g.DELETE("/comments/:id", h.DeleteComment)
	g.POST("/comments/:id/like", h.LikeComment)
	g.DELETE("/comments/:id/like", h.UnlikeComment)
}

// Wait blocks until background notifications have been sent.
func (h *CommentHandler) Wait() { h.bg.Wait() }

func (h *CommentHandler) resource(c echo.Context) (commenttree.Resource, error) {
	recipeID := c.Param("id")
	recipe, err := h.recipes.GetRecipeByID(c.Request().Context(), recipeID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecipeNotFound) {
			return commenttree.Resource{}, echo.NewHTTPError(http.StatusNotFound, "Recipe not found")
		}
		return commenttree.Resource{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return commenttree.Resource{ID: recipeID, AuthorID: strconv.FormatUint(uint64(recipe.AuthorID), 10)}, nil
}

// GetComments returns the recipe's comment thread: top-level comments newest
// first, replies oldest first, with like counts and author profiles. With a
// page query parameter it returns that page of a flat list of all comments,
// newest first.
func (h *CommentHandler) GetComments(c echo.Context) error {
	res, err := h.resource(c)
	if err != nil {
		return err
	}
	if c.QueryParam("page") != "" {
		return h.listComments(c, res)
	}
	me := currentUser(c)
	ctx := c.Request().Context()

	comments, err := commenttree.Load(ctx, h.storeFor(me), res.ID, me)
	if err != nil {
		return commentError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"comments": newAuthorCache(h.users).views(ctx, comments),
		"count":    countComments(comments),
	})
}

func (h *CommentHandler) listComments(c echo.Context, res commenttree.Resource) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	ctx := c.Request().Context()

	comments, total, err := h.storeFor(currentUser(c)).FetchPage(ctx, res.ID, page, limit)
	if err != nil {
		return commentError(err)
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return c.JSON(http.StatusOK, echo.Map{
		"comments": newAuthorCache(h.users).views(ctx, comments),
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// CreateComment adds a comment to a recipe, or a reply when parent_id is set.
func (h *CommentHandler) CreateComment(c echo.Context) error {
	me := currentUser(c)
	if me == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	req.Content = strings.TrimSpace(req.Content)
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.resource(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	store := h.storeFor(me)

	recipient, kind, ref := res.AuthorID, commenttree.NotifyComment, res.ID
	if req.ParentID != "" {
		parent, err := store.Comment(ctx, req.ParentID)
		if err != nil {
			return commentError(err)
		}
		recipient, kind, ref = parent.AuthorID, commenttree.NotifyReply, parent.ID
	}

	comment, err := store.CreateComment(ctx, res.ID, req.ParentID, me, req.Content)
	if err != nil {
		return commentError(err)
	}
	h.notify(commenttree.Notification{RecipientID: recipient, ActorID: me, Kind: kind, ReferenceID: ref})
	return c.JSON(http.StatusCreated, newAuthorCache(h.users).views(ctx, []commenttree.Comment{comment})[0])
}

// DeleteComment deletes one of the current user's comments and its replies.
func (h *CommentHandler) DeleteComment(c echo.Context) error {
	me := currentUser(c)
	if me == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	if err := h.storeFor(me).DeleteComment(c.Request().Context(), c.Param("id")); err != nil {
		return commentError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CommentHandler) LikeComment(c echo.Context) error {
	return h.setLike(c, true)
}

func (h *CommentHandler) UnlikeComment(c echo.Context) error {
	return h.setLike(c, false)
}

func (h *CommentHandler) setLike(c echo.Context, liked bool) error {
	me := currentUser(c)
	if me == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	ctx := c.Request().Context()
	store := h.storeFor(me)
	commentID := c.Param("id")

	comment, err := store.Comment(ctx, commentID)
	if err != nil {
		return commentError(err)
	}
	before, err := store.FetchLiked(ctx, commentID, me)
	if err != nil {
		return commentError(err)
	}
	if err := store.SetLike(ctx, commentID, me, liked); err != nil {
		return commentError(err)
	}
	count, err := store.FetchLikeCount(ctx, commentID)
	if err != nil {
		return commentError(err)
	}

	if liked && !before {
		h.notify(commenttree.Notification{RecipientID: comment.AuthorID, ActorID: me, Kind: commenttree.NotifyLike, ReferenceID: commentID})
	}
	return c.JSON(http.StatusOK, echo.Map{"liked": liked, "like_count": count})
}

// notify sends n in the background unless the actor is the recipient.
func (h *CommentHandler) notify(n commenttree.Notification) {
	if h.notifier == nil || n.RecipientID == "" || n.RecipientID == n.ActorID {
		return
	}
	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := h.notifier.Notify(ctx, n); err != nil {
			log.Warn().Err(err).Str("kind", string(n.Kind)).Str("recipient_id", n.RecipientID).Msg("failed to send notification")
		}
	}()
}
