package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/middleware"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/realtime"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/anonto42/recipe-swap/backend/internal/repositories/mocks"
	"github.com/anonto42/recipe-swap/backend/pkg/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
)

const (
	recipeID = "65f1c0ffee0000000000abcd"
	chef     = "3"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memDB is an in-memory comment store that announces writes on a hub.
type memDB struct {
	mu       sync.Mutex
	comments map[string]commenttree.Comment
	likes    map[string]map[string]bool
	nextID   int
	hub      *realtime.Hub
}

func newMemDB(hub *realtime.Hub) *memDB {
	return &memDB{
		comments: make(map[string]commenttree.Comment),
		likes:    make(map[string]map[string]bool),
		hub:      hub,
	}
}

func (db *memDB) seed(c commenttree.Comment, likedBy ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.comments[c.ID] = c
	for _, u := range likedBy {
		if db.likes[c.ID] == nil {
			db.likes[c.ID] = make(map[string]bool)
		}
		db.likes[c.ID][u] = true
	}
}

func (db *memDB) as(userID string) CommentStore {
	return &memStore{db: db, actor: userID}
}

type memStore struct {
	db    *memDB
	actor string
}

func notFound(id string) error {
	return &commenttree.Error{Kind: commenttree.KindNotFound, ID: id}
}

func (s *memStore) Comment(_ context.Context, id string) (commenttree.Comment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.comments[id]
	if !ok {
		return commenttree.Comment{}, notFound(id)
	}
	return c, nil
}

func (s *memStore) list(match func(commenttree.Comment) bool, newestFirst bool) []commenttree.Comment {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []commenttree.Comment
	for _, c := range s.db.comments {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memStore) FetchTopLevelComments(_ context.Context, resourceID string) ([]commenttree.Comment, error) {
	return s.list(func(c commenttree.Comment) bool {
		return c.ResourceID == resourceID && c.IsTopLevel()
	}, true), nil
}

func (s *memStore) FetchReplies(_ context.Context, commentID string) ([]commenttree.Comment, error) {
	return s.list(func(c commenttree.Comment) bool { return c.ParentCommentID == commentID }, false), nil
}

func (s *memStore) FetchPage(_ context.Context, resourceID string, page, limit int) ([]commenttree.Comment, int64, error) {
	all := s.list(func(c commenttree.Comment) bool { return c.ResourceID == resourceID }, true)
	total := int64(len(all))
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := append([]commenttree.Comment(nil), all[start:end]...)

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for i := range out {
		out[i].LikeCount = len(s.db.likes[out[i].ID])
	}
	return out, total, nil
}

func (s *memStore) FetchLikeCount(_ context.Context, commentID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.likes[commentID]), nil
}

func (s *memStore) FetchLiked(_ context.Context, commentID, userID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.likes[commentID][userID], nil
}

func (s *memStore) CreateComment(ctx context.Context, resourceID, parentID, authorID, body string) (commenttree.Comment, error) {
	s.db.mu.Lock()
	if parentID != "" {
		parent, ok := s.db.comments[parentID]
		if !ok || !parent.IsTopLevel() {
			s.db.mu.Unlock()
			return commenttree.Comment{}, notFound(parentID)
		}
	}
	s.db.nextID++
	c := commenttree.Comment{
		ID:              fmt.Sprintf("c%d", s.db.nextID),
		ParentCommentID: parentID,
		ResourceID:      resourceID,
		AuthorID:        authorID,
		Body:            body,
		CreatedAt:       t0.Add(time.Duration(s.db.nextID) * time.Hour),
	}
	s.db.comments[c.ID] = c
	s.db.mu.Unlock()

	_ = s.db.hub.Publish(ctx, resourceID, commenttree.CommentEvent(commenttree.ChangeInsert, c))
	return c, nil
}

func (s *memStore) DeleteComment(ctx context.Context, commentID string) error {
	s.db.mu.Lock()
	c, ok := s.db.comments[commentID]
	if !ok {
		s.db.mu.Unlock()
		return notFound(commentID)
	}
	if s.actor != "" && c.AuthorID != s.actor {
		s.db.mu.Unlock()
		return &commenttree.Error{Kind: commenttree.KindForbidden, ID: commentID}
	}
	for id, other := range s.db.comments {
		if id == commentID || other.ParentCommentID == commentID {
			delete(s.db.comments, id)
		}
	}
	s.db.mu.Unlock()

	_ = s.db.hub.Publish(ctx, c.ResourceID, commenttree.CommentEvent(commenttree.ChangeDelete, c))
	return nil
}

func (s *memStore) SetLike(ctx context.Context, commentID, userID string, liked bool) error {
	s.db.mu.Lock()
	c, ok := s.db.comments[commentID]
	if !ok {
		s.db.mu.Unlock()
		return notFound(commentID)
	}
	if s.db.likes[commentID] == nil {
		s.db.likes[commentID] = make(map[string]bool)
	}
	changed := s.db.likes[commentID][userID] != liked
	if liked {
		s.db.likes[commentID][userID] = true
	} else {
		delete(s.db.likes[commentID], userID)
	}
	s.db.mu.Unlock()

	if changed {
		_ = s.db.hub.Publish(ctx, c.ResourceID, commenttree.LikeEvent(liked, commentID, userID))
	}
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(_ context.Context, n commenttree.Notification) error {
	args := m.Called(n)
	return args.Error(0)
}

// testUserHeader carries the acting user in tests in place of a real token.
const testUserHeader = "X-Test-User"

func asHeaderUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if v := c.Request().Header.Get(testUserHeader); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return errors.New("bad test user")
			}
			c.Set(middleware.UserIDKey, uint(id))
		}
		return next(c)
	}
}

type commentFixture struct {
	e        *echo.Echo
	db       *memDB
	hub      *realtime.Hub
	recipes  *mocks.RecipeRepository
	users    *mocks.UserRepository
	notifier *mockNotifier
	handler  *CommentHandler
}

func newCommentFixture() *commentFixture {
	f := &commentFixture{
		e:        echo.New(),
		hub:      realtime.NewHub(),
		recipes:  new(mocks.RecipeRepository),
		users:    new(mocks.UserRepository),
		notifier: new(mockNotifier),
	}
	f.db = newMemDB(f.hub)
	f.recipes.On("GetRecipeByID", mock.Anything, recipeID).Return(&models.Recipe{AuthorID: 3, Title: "Sourdough"}, nil)
	f.recipes.On("GetRecipeByID", mock.Anything, mock.Anything).Return(nil, repositories.ErrRecipeNotFound)
	f.notifier.On("Notify", mock.Anything).Return(nil).Maybe()
	for id, name := range map[uint]string{4: "Ada", 5: "Grace", 7: "Linus"} {
		f.users.On("GetUserByID", mock.Anything, id).Return(&models.User{ID: id, Name: name}, nil).Maybe()
	}
	f.users.On("GetUserByID", mock.Anything, mock.Anything).Return(nil, errors.New("record not found")).Maybe()

	f.handler = NewCommentHandler(f.db.as, f.recipes, f.users, f.hub, f.notifier)
	f.e.Validator = validators.NewValidator()
	f.handler.RegisterCommentRoutes(f.e.Group("/api/v1", asHeaderUser))
	return f
}
