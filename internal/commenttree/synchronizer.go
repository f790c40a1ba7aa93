package commenttree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LocalIDPrefix marks the ids of optimistic comments that the store has not
// confirmed yet.
const LocalIDPrefix = "local-"

const notifyTimeout = 10 * time.Second

var (
	errEmptyBody   = errors.New("comment body is empty")
	errNotAttached = errors.New("synchronizer is not attached")
	errPending     = errors.New("comment is not confirmed yet")
	errNoRow       = errors.New("event carries no row")
)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. The global zerolog logger is used by default.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) { s.log = l }
}

// WithClock sets the clock used to timestamp optimistic comments.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

type watcher struct {
	fn   func([]Comment)
	seen uint64
}

// Synchronizer owns the comment thread of one recipe while it is attached.
//
// State changes come from three places: the initial load, live events from
// the ChangeSource and the current user's actions. They are serialized by a
// mutex, so they apply in arrival order. Store calls run without the lock;
// their results are dropped if the synchronizer was detached meanwhile.
type Synchronizer struct {
	store    Store
	source   ChangeSource
	identity Identity
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	resource Resource
	attached bool
	loading  bool
	gen      uint64
	version  uint64
	sub      Subscription
	buffered []Event
	tree     *tree
	likes    likeLedger
	deleting map[string]bool
	// deleted holds ids removed by live events while a delete is in flight.
	deleted map[string]bool

	watchMu     sync.Mutex
	watchers    map[int]*watcher
	nextWatcher int

	bg sync.WaitGroup
}

// New returns a detached synchronizer. notifier may be nil.
func New(store Store, source ChangeSource, identity Identity, notifier Notifier, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		source:   source,
		identity: identity,
		notifier: notifier,
		log:      log.Logger,
		now:      time.Now,
		tree:     newTree(),
		likes:    make(likeLedger),
		deleting: make(map[string]bool),
		deleted:  make(map[string]bool),
		watchers: make(map[int]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach subscribes to the recipe's change stream and loads its thread.
// Events that arrive while the load is running are replayed on top of it.
// A failed load leaves the synchronizer attached with an empty thread and
// returns an error of KindFetch.
func (s *Synchronizer) Attach(ctx context.Context, res Resource) error {
	s.mu.Lock()
	if s.attached {
		cur := s.resource.ID
		s.mu.Unlock()
		return fmt.Errorf("commenttree: already attached to recipe %s", cur)
	}
	s.gen++
	gen := s.gen
	s.attached = true
	s.loading = true
	s.resource = res
	s.reset()
	s.mu.Unlock()

	sub, err := s.source.Subscribe(ctx, res.ID, func(ev Event) {
		if err := s.receive(gen, ev); err != nil {
			s.log.Debug().Err(err).Str("recipe_id", res.ID).Msg("live event dropped")
		}
	})
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.attached = false
			s.loading = false
			s.gen++
		}
		s.mu.Unlock()
		return newError(KindFetch, "subscribe", res.ID, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.unsubscribe(sub, res.ID)
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	me, _ := s.identity.CurrentUserID()
	roots, loadErr := Load(ctx, s.store, res.ID, me)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	if loadErr == nil {
		s.tree = build(roots)
		if me != "" {
			for _, r := range roots {
				s.likes.set(r.ID, me, r.LikedByMe)
				for _, rep := range r.Replies {
					s.likes.set(rep.ID, me, rep.LikedByMe)
				}
			}
		}
	}
	s.loading = false
	buffered := s.buffered
	s.buffered = nil
	for _, ev := range buffered {
		if _, err := s.apply(ev); err != nil {
			s.log.Debug().Err(err).Str("recipe_id", res.ID).Msg("buffered event dropped")
		}
	}
	done := s.mutated()
	s.mu.Unlock()
	done()

	if loadErr != nil {
		s.log.Error().Err(loadErr).Str("recipe_id", res.ID).Msg("failed to load comments")
	}
	return loadErr
}

// Detach tears down the subscription and forgets the thread. Results of
// store calls still in flight are ignored when they arrive.
func (s *Synchronizer) Detach() {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	s.attached = false
	s.loading = false
	s.gen++
	sub := s.sub
	s.sub = nil
	id := s.resource.ID
	s.reset()
	s.mu.Unlock()

	if sub != nil {
		s.unsubscribe(sub, id)
	}
}

// Wait blocks until notifications sent in the background have finished.
func (s *Synchronizer) Wait() { s.bg.Wait() }

// Resource returns the recipe the synchronizer is attached to.
func (s *Synchronizer) Resource() (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resource, s.attached
}

// Snapshot returns a copy of the current thread.
func (s *Synchronizer) Snapshot() []Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.snapshot(s.likedByMe())
}

// Count returns the number of comments in the thread, replies included.
func (s *Synchronizer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.len()
}

// LikedByMe reports whether the current user likes the comment.
func (s *Synchronizer) LikedByMe(commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likedByMe()(commentID)
}

// Watch registers fn to receive the thread after every change, starting with
// the current one. The slice passed to fn is shared and must not be modified.
// fn runs synchronously and must not call back into the synchronizer's
// mutating methods, Watch or the returned cancel func.
func (s *Synchronizer) Watch(fn func([]Comment)) (cancel func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.mu.Lock()
	v := s.version
	snap := s.tree.snapshot(s.likedByMe())
	s.mu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	w := &watcher{fn: fn, seen: v}
	s.watchers[id] = w
	fn(snap)

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Apply feeds a live event to the synchronizer as if it came from the
// change source. Events referencing unknown comments return an error of
// KindDroppedEvent and leave the thread unchanged.
func (s *Synchronizer) Apply(ev Event) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.receive(gen, ev)
}

func (s *Synchronizer) receive(gen uint64, ev Event) error {
	s.mu.Lock()
	if gen != s.gen || !s.attached {
		s.mu.Unlock()
		return nil
	}
	if s.loading {
		s.buffered = append(s.buffered, ev)
		s.mu.Unlock()
		return nil
	}
	changed, err := s.apply(ev)
	var done func()
	if changed {
		done = s.mutated()
	}
	s.mu.Unlock()
	if done != nil {
		done()
	}
	return err
}

// apply is the reducer for live events. s.mu must be held.
func (s *Synchronizer) apply(ev Event) (bool, error) {
	op := fmt.Sprintf("apply %s %s", ev.Entity, ev.Change)
	r := ev.row()
	if r == nil {
		return false, newError(KindDroppedEvent, op, "", errNoRow)
	}

	switch ev.Entity {
	case EntityComment:
		if r.ResourceID != "" && r.ResourceID != s.resource.ID {
			return false, newError(KindDroppedEvent, op, r.ID, fmt.Errorf("comment belongs to recipe %s", r.ResourceID))
		}
		switch ev.Change {
		case ChangeInsert:
			if s.tree.find(r.ID) != nil {
				return false, nil
			}
			n := &node{Comment: r.comment()}
			if n.IsTopLevel() {
				return s.tree.addRoot(n), nil
			}
			if !s.tree.addReply(n.ParentCommentID, n) {
				return false, newError(KindDroppedEvent, op, r.ID, fmt.Errorf("unknown parent %s", n.ParentCommentID))
			}
			return true, nil
		case ChangeUpdate:
			n := s.tree.find(r.ID)
			if n == nil {
				return false, newError(KindDroppedEvent, op, r.ID, errors.New("unknown comment"))
			}
			n.Body = r.Body
			return true, nil
		case ChangeDelete:
			if len(s.deleting) > 0 {
				s.deleted[r.ID] = true
			}
			n := s.tree.find(r.ID)
			if n == nil {
				return false, nil
			}
			s.tree.remove(n)
			return true, nil
		}

	case EntityLike:
		n := s.tree.find(r.CommentID)
		if n == nil {
			return false, newError(KindDroppedEvent, op, r.CommentID, errors.New("unknown comment"))
		}
		switch ev.Change {
		case ChangeInsert:
			if !s.likes.insert(r.CommentID, r.UserID) {
				return false, nil
			}
			n.LikeCount++
			return true, nil
		case ChangeDelete:
			if !s.likes.remove(r.CommentID, r.UserID) {
				return false, nil
			}
			if n.LikeCount > 0 {
				n.LikeCount--
			}
			return true, nil
		}
	}
	return false, newError(KindDroppedEvent, op, "", errors.New("unsupported event"))
}

// PostComment adds a top-level comment by the current user. The comment is
// shown as pending at once and replaced by the stored one on success.
func (s *Synchronizer) PostComment(ctx context.Context, body string) (Comment, error) {
	return s.post(ctx, "", body)
}

// PostReply adds a reply to a top-level comment of the thread.
func (s *Synchronizer) PostReply(ctx context.Context, parentID, body string) (Comment, error) {
	return s.post(ctx, parentID, body)
}

func (s *Synchronizer) post(ctx context.Context, parentID, body string) (Comment, error) {
	op, kind := "post comment", NotifyComment
	if parentID != "" {
		op, kind = "post reply", NotifyReply
	}
	me, ok := s.identity.CurrentUserID()
	if !ok {
		return Comment{}, newError(KindUnauthenticated, op, parentID, nil)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, newError(KindWrite, op, parentID, errEmptyBody)
	}

	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return Comment{}, newError(KindWrite, op, parentID, errNotAttached)
	}
	gen := s.gen
	res := s.resource
	temp := &node{Comment: Comment{
		ID:              LocalIDPrefix + uuid.NewString(),
		ParentCommentID: parentID,
		ResourceID:      res.ID,
		AuthorID:        me,
		Body:            body,
		CreatedAt:       s.now(),
		Pending:         true,
	}}
	recipient, ref := res.AuthorID, res.ID
	if parentID == "" {
		s.tree.addRoot(temp)
	} else {
		parent := s.tree.find(parentID)
		if parent == nil || parent.parent != nil || parent.Pending {
			s.mu.Unlock()
			return Comment{}, newError(KindNotFound, op, parentID, errors.New("parent is not a top-level comment"))
		}
		recipient, ref = parent.AuthorID, parent.ID
		s.tree.addReply(parentID, temp)
	}
	done := s.mutated()
	s.mu.Unlock()
	done()

	created, err := s.store.CreateComment(ctx, res.ID, parentID, me, body)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if err != nil {
			return Comment{}, newError(KindWrite, op, parentID, err)
		}
		return created, nil
	}
	s.tree.remove(temp)
	if err != nil {
		done = s.mutated()
		s.mu.Unlock()
		done()
		s.log.Warn().Err(err).Str("recipe_id", res.ID).Str("parent_id", parentID).Msg("comment rolled back")
		return Comment{}, newError(KindWrite, op, parentID, err)
	}

	if created.ResourceID == "" {
		created.ResourceID = res.ID
	}
	if created.ParentCommentID == "" {
		created.ParentCommentID = parentID
	}
	created.Pending = false
	created.Replies = nil
	n := &node{Comment: created, seq: temp.seq}
	if n.IsTopLevel() {
		s.tree.addRoot(n)
	} else {
		s.tree.addReply(n.ParentCommentID, n)
	}
	if _, known := s.likes.get(created.ID, me); !known {
		s.likes.set(created.ID, me, false)
	}
	done = s.mutated()
	s.mu.Unlock()
	done()

	if recipient != "" && recipient != me {
		s.notify(Notification{RecipientID: recipient, ActorID: me, Kind: kind, ReferenceID: ref})
	}
	return created, nil
}

// DeleteComment removes one of the current user's comments. Deleting a
// top-level comment removes its replies with it. A comment that is already
// gone from the store counts as deleted.
func (s *Synchronizer) DeleteComment(ctx context.Context, commentID string) error {
	const op = "delete comment"
	me, ok := s.identity.CurrentUserID()
	if !ok {
		return newError(KindUnauthenticated, op, commentID, nil)
	}

	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return newError(KindWrite, op, commentID, errNotAttached)
	}
	gen := s.gen
	n := s.tree.find(commentID)
	var done func()
	if n != nil {
		if n.Pending {
			s.mu.Unlock()
			return newError(KindWrite, op, commentID, errPending)
		}
		if n.AuthorID != me {
			s.mu.Unlock()
			return newError(KindForbidden, op, commentID, nil)
		}
		s.tree.remove(n)
		s.deleting[commentID] = true
		done = s.mutated()
	}
	s.mu.Unlock()
	if done != nil {
		done()
	}

	err := s.store.DeleteComment(ctx, commentID)
	if err != nil && errors.Is(err, ErrNotFound) {
		err = nil
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if err != nil {
			return newError(KindWrite, op, commentID, err)
		}
		return nil
	}
	if err == nil {
		s.finishDelete(commentID)
		s.mu.Unlock()
		return nil
	}
	done = nil
	if n != nil && !s.deleted[commentID] {
		kept := n.replies[:0]
		for _, r := range n.replies {
			if !s.deleted[r.ID] {
				kept = append(kept, r)
			}
		}
		n.replies = kept
		if s.tree.restore(n) {
			done = s.mutated()
		}
	}
	s.finishDelete(commentID)
	s.mu.Unlock()
	if done != nil {
		done()
	}
	s.log.Warn().Err(err).Str("comment_id", commentID).Msg("comment delete rolled back")
	return newError(KindWrite, op, commentID, err)
}

// Like adds the current user's like to a comment. Liking an already liked
// comment does nothing.
func (s *Synchronizer) Like(ctx context.Context, commentID string) error {
	return s.setLike(ctx, commentID, true)
}

// Unlike removes the current user's like from a comment.
func (s *Synchronizer) Unlike(ctx context.Context, commentID string) error {
	return s.setLike(ctx, commentID, false)
}

// ToggleLike flips the current user's like and returns the new state.
func (s *Synchronizer) ToggleLike(ctx context.Context, commentID string) (bool, error) {
	liked := !s.LikedByMe(commentID)
	if err := s.setLike(ctx, commentID, liked); err != nil {
		return !liked, err
	}
	return liked, nil
}

func (s *Synchronizer) setLike(ctx context.Context, commentID string, liked bool) error {
	op := "like comment"
	if !liked {
		op = "unlike comment"
	}
	me, ok := s.identity.CurrentUserID()
	if !ok {
		return newError(KindUnauthenticated, op, commentID, nil)
	}

	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return newError(KindWrite, op, commentID, errNotAttached)
	}
	gen := s.gen
	n := s.tree.find(commentID)
	if n == nil {
		s.mu.Unlock()
		return newError(KindNotFound, op, commentID, nil)
	}
	if n.Pending {
		s.mu.Unlock()
		return newError(KindWrite, op, commentID, errPending)
	}
	prev, known := s.likes.get(commentID, me)
	if prev == liked {
		s.mu.Unlock()
		return nil
	}
	s.likes.set(commentID, me, liked)
	decremented := false
	if liked {
		n.LikeCount++
	} else if n.LikeCount > 0 {
		n.LikeCount--
		decremented = true
	}
	author := n.AuthorID
	done := s.mutated()
	s.mu.Unlock()
	done()

	err := s.store.SetLike(ctx, commentID, me, liked)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if err != nil {
			return newError(KindWrite, op, commentID, err)
		}
		return nil
	}
	if err != nil {
		if known {
			s.likes.set(commentID, me, prev)
		} else {
			s.likes.forget(commentID, me)
		}
		if cur := s.tree.find(commentID); cur != nil {
			if liked && cur.LikeCount > 0 {
				cur.LikeCount--
			} else if !liked && decremented {
				cur.LikeCount++
			}
		}
		done = s.mutated()
		s.mu.Unlock()
		done()
		s.log.Warn().Err(err).Str("comment_id", commentID).Bool("liked", liked).Msg("like rolled back")
		return newError(KindWrite, op, commentID, err)
	}
	s.mu.Unlock()

	if liked && author != me {
		s.notify(Notification{RecipientID: author, ActorID: me, Kind: NotifyLike, ReferenceID: commentID})
	}
	return nil
}

// finishDelete ends an in-flight delete. s.mu must be held.
func (s *Synchronizer) finishDelete(commentID string) {
	delete(s.deleting, commentID)
	if len(s.deleting) == 0 {
		s.deleted = make(map[string]bool)
	}
}

// reset clears the per-attach state. s.mu must be held.
func (s *Synchronizer) reset() {
	s.buffered = nil
	s.tree = newTree()
	s.likes = make(likeLedger)
	s.deleting = make(map[string]bool)
	s.deleted = make(map[string]bool)
}

// likedByMe returns a lookup for the current user's likes. s.mu must be held.
func (s *Synchronizer) likedByMe() func(string) bool {
	me, ok := s.identity.CurrentUserID()
	likes := s.likes
	return func(id string) bool {
		if !ok {
			return false
		}
		liked, _ := likes.get(id, me)
		return liked
	}
}

// mutated bumps the version and captures the thread. It must be called with
// s.mu held; the returned func hands the capture to the watchers and must be
// called after s.mu is released.
func (s *Synchronizer) mutated() func() {
	s.version++
	v := s.version
	snap := s.tree.snapshot(s.likedByMe())
	return func() { s.deliver(v, snap) }
}

func (s *Synchronizer) deliver(v uint64, snap []Comment) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, w := range s.watchers {
		if v > w.seen {
			w.seen = v
			w.fn(snap)
		}
	}
}

func (s *Synchronizer) notify(n Notification) {
	if s.notifier == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn().Err(err).
				Str("recipient_id", n.RecipientID).
				Str("kind", string(n.Kind)).
				Str("reference_id", n.ReferenceID).
				Msg("notification failed")
		}
	}()
}

func (s *Synchronizer) unsubscribe(sub Subscription, recipeID string) {
	if err := sub.Unsubscribe(); err != nil {
		s.log.Warn().Err(err).Str("recipe_id", recipeID).Msg("failed to unsubscribe from comment changes")
	}
}
