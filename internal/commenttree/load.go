package commenttree

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fetchConcurrency bounds the reply and like-count lookups in flight during a load.
const fetchConcurrency = 8

// Load fetches the whole thread of a recipe: top-level comments newest first,
// each with its replies oldest first, like counts on every node and, when
// userID is set, whether that user liked each comment.
func Load(ctx context.Context, store StoreReader, resourceID, userID string) ([]Comment, error) {
	roots, err := store.FetchTopLevelComments(ctx, resourceID)
	if err != nil {
		return nil, newError(KindFetch, "load comments", resourceID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i := range roots {
		i := i
		g.Go(func() error {
			replies, err := store.FetchReplies(gctx, roots[i].ID)
			if err != nil {
				return newError(KindFetch, "load replies", roots[i].ID, err)
			}
			roots[i].Replies = replies
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*Comment
	for i := range roots {
		all = append(all, &roots[i])
		for j := range roots[i].Replies {
			all = append(all, &roots[i].Replies[j])
		}
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, c := range all {
		c := c
		g.Go(func() error {
			n, err := store.FetchLikeCount(gctx, c.ID)
			if err != nil {
				return newError(KindFetch, "load like count", c.ID, err)
			}
			if n < 0 {
				n = 0
			}
			c.LikeCount = n
			if userID == "" {
				return nil
			}
			liked, err := store.FetchLiked(gctx, c.ID, userID)
			if err != nil {
				return newError(KindFetch, "load like state", c.ID, err)
			}
			c.LikedByMe = liked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return build(roots).snapshot(nil), nil
}
