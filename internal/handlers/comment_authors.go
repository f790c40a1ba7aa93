package handlers

import (
	"context"
	"strconv"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/rs/zerolog/log"
)

// CommentView is a comment as sent to clients, with its author's profile.
type CommentView struct {
	commenttree.Comment
	Author  *models.UserCompact `json:"author,omitempty"`
	Replies []CommentView       `json:"replies,omitempty"`
}

// authorCache resolves author ids to profiles, remembering the ones it found.
// It is not safe for concurrent use.
type authorCache struct {
	users repositories.UserRepository
	known map[string]models.UserCompact
}

func newAuthorCache(users repositories.UserRepository) *authorCache {
	return &authorCache{users: users, known: make(map[string]models.UserCompact)}
}

func (a *authorCache) author(ctx context.Context, id string) *models.UserCompact {
	if a.users == nil {
		return nil
	}
	if u, ok := a.known[id]; ok {
		return &u
	}
	uid, err := strconv.ParseUint(id, 10, 64)
	if err != nil || uid == 0 {
		return nil
	}
	user, err := a.users.GetUserByID(ctx, uint(uid))
	if err != nil {
		log.Debug().Err(err).Str("user_id", id).Msg("comment author lookup failed")
		return nil
	}
	u := user.ToCompact()
	a.known[id] = u
	return &u
}

func (a *authorCache) views(ctx context.Context, cs []commenttree.Comment) []CommentView {
	out := make([]CommentView, 0, len(cs))
	for _, c := range cs {
		v := CommentView{Comment: c, Author: a.author(ctx, c.AuthorID)}
		v.Comment.Replies = nil
		if len(c.Replies) > 0 {
			v.Replies = a.views(ctx, c.Replies)
		}
		out = append(out, v)
	}
	return out
}
