package commenttree

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const recipeID = "recipe-1"

var recipe = Resource{ID: recipeID, AuthorID: "chef"}

type fixture struct {
	store    *fakeStore
	source   *fakeSource
	notifier *mockNotifier
	sync     *Synchronizer
}

func newFixture(me string) *fixture {
	f := &fixture{
		store:    newFakeStore(),
		source:   newFakeSource(),
		notifier: new(mockNotifier),
	}
	f.notifier.On("Notify", mock.Anything).Return(nil).Maybe()
	f.sync = New(f.store, f.source, UserID(me), f.notifier,
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return at(60) }),
	)
	return f
}

func (f *fixture) attach(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sync.Attach(context.Background(), recipe))
}

func (f *fixture) emit(ev Event) { f.source.emit(recipeID, ev) }

func comment(id string, minute int) Comment {
	return Comment{ID: id, ResourceID: recipeID, AuthorID: "author-" + id, Body: "body " + id, CreatedAt: at(minute)}
}

func reply(id, parent string, minute int) Comment {
	c := comment(id, minute)
	c.ParentCommentID = parent
	return c
}

func TestLiveReplyAttachesToLoadedParent(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	f.emit(CommentEvent(ChangeInsert, reply("r1", "c1", 1)))

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c1"}, topIDs(snap))
	assert.Equal(t, []string{"r1"}, replyIDs(snap, "c1"))
}

func TestLoadOrdersTopLevelNewestFirst(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addRoot(comment("c2", 1))
	f.store.addReply(reply("r2", "c1", 5))
	f.store.addReply(reply("r1", "c1", 3))
	f.attach(t)

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c2", "c1"}, topIDs(snap))
	assert.Equal(t, []string{"r1", "r2"}, replyIDs(snap, "c1"))
	assert.Equal(t, 4, f.sync.Count())
}

func TestLoadKeepsFetchedOrderForEqualTimestamps(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("b", 0))
	f.store.addRoot(comment("a", 0))
	f.attach(t)

	assert.Equal(t, []string{"b", "a"}, topIDs(f.sync.Snapshot()))

	f.emit(CommentEvent(ChangeInsert, comment("c", 0)))
	assert.Equal(t, []string{"c", "b", "a"}, topIDs(f.sync.Snapshot()))
}

func TestLikeRollsBackOnWriteError(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	f.store.likeErr = errors.New("connection reset")
	var during int
	f.store.onWrite = func() {
		c, _ := find(f.sync.Snapshot(), "c1")
		during = c.LikeCount
	}

	err := f.sync.Like(context.Background(), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, 1, during)

	c, ok := find(f.sync.Snapshot(), "c1")
	require.True(t, ok)
	assert.Equal(t, 0, c.LikeCount)
	assert.False(t, c.LikedByMe)
	assert.False(t, f.sync.LikedByMe("c1"))
}

func TestUnlikeRollsBackOnWriteError(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.counts["c1"] = 2
	f.store.liked["c1|alice"] = true
	f.attach(t)

	f.store.likeErr = errors.New("timeout")
	require.ErrorIs(t, f.sync.Unlike(context.Background(), "c1"), ErrWrite)

	c, _ := find(f.sync.Snapshot(), "c1")
	assert.Equal(t, 2, c.LikeCount)
	assert.True(t, c.LikedByMe)
}

func TestDeleteEventRemovesThread(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addRoot(comment("c2", 1))
	f.store.addReply(reply("r1", "c1", 2))
	f.store.addReply(reply("r2", "c1", 3))
	f.attach(t)

	f.emit(CommentEvent(ChangeDelete, comment("c1", 0)))

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c2"}, topIDs(snap))
	assert.Equal(t, 1, f.sync.Count())
	for _, id := range []string{"c1", "r1", "r2"} {
		_, ok := find(snap, id)
		assert.False(t, ok, id)
	}

	// a late event for a removed reply is dropped
	err := f.sync.Apply(LikeEvent(true, "r1", "bob"))
	assert.ErrorIs(t, err, ErrDroppedEvent)
}

func TestDeleteEventRemovesSingleReply(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 2))
	f.store.addReply(reply("r2", "c1", 3))
	f.attach(t)

	f.emit(CommentEvent(ChangeDelete, reply("r1", "c1", 2)))

	assert.Equal(t, []string{"r2"}, replyIDs(f.sync.Snapshot(), "c1"))
}

func TestLikeEventForUnknownCommentIsDropped(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)
	before := f.sync.Snapshot()

	var err error
	assert.NotPanics(t, func() { err = f.sync.Apply(LikeEvent(true, "missing", "bob")) })
	assert.ErrorIs(t, err, ErrDroppedEvent)
	assert.Equal(t, before, f.sync.Snapshot())
}

func TestReplyEventForUnknownParentIsDropped(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 1))
	f.attach(t)
	before := f.sync.Snapshot()

	assert.ErrorIs(t, f.sync.Apply(CommentEvent(ChangeInsert, reply("x", "nope", 2))), ErrDroppedEvent)
	// replies of replies are not rendered
	assert.ErrorIs(t, f.sync.Apply(CommentEvent(ChangeInsert, reply("y", "r1", 2))), ErrDroppedEvent)
	assert.Equal(t, before, f.sync.Snapshot())
}

func TestEventForOtherRecipeIsDropped(t *testing.T) {
	f := newFixture("alice")
	f.attach(t)

	c := comment("c9", 0)
	c.ResourceID = "recipe-2"
	assert.ErrorIs(t, f.sync.Apply(CommentEvent(ChangeInsert, c)), ErrDroppedEvent)
	assert.Empty(t, f.sync.Snapshot())
}

func TestInsertEventIsIdempotent(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	f.emit(CommentEvent(ChangeInsert, reply("r1", "c1", 1)))
	f.emit(CommentEvent(ChangeInsert, reply("r1", "c1", 1)))
	f.emit(CommentEvent(ChangeInsert, comment("c1", 0)))

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c1"}, topIDs(snap))
	assert.Equal(t, []string{"r1"}, replyIDs(snap, "c1"))
}

func TestUpdateEventKeepsPositionAndReplies(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c2", 1))
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 2))
	f.store.addReply(reply("r2", "c1", 3))
	f.store.counts["r1"] = 3
	f.attach(t)

	edited := reply("r1", "c1", 2)
	edited.Body = "edited"
	f.emit(CommentEvent(ChangeUpdate, edited))
	top := comment("c1", 0)
	top.Body = "top edited"
	f.emit(CommentEvent(ChangeUpdate, top))

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c2", "c1"}, topIDs(snap))
	assert.Equal(t, []string{"r1", "r2"}, replyIDs(snap, "c1"))
	r1, _ := find(snap, "r1")
	assert.Equal(t, "edited", r1.Body)
	assert.Equal(t, 3, r1.LikeCount)
	c1, _ := find(snap, "c1")
	assert.Equal(t, "top edited", c1.Body)
}

func TestLikeDeleteEventFloorsAtZero(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.counts["c1"] = 1
	f.attach(t)

	f.emit(LikeEvent(false, "c1", "bob"))
	f.emit(LikeEvent(false, "c1", "carol"))

	c, _ := find(f.sync.Snapshot(), "c1")
	assert.Equal(t, 0, c.LikeCount)
}

func TestOptimisticLikeReconcilesWithLiveEvent(t *testing.T) {
	t.Run("event after store call", func(t *testing.T) {
		f := newFixture("alice")
		f.store.addRoot(comment("c1", 0))
		f.attach(t)

		require.NoError(t, f.sync.Like(context.Background(), "c1"))
		f.emit(LikeEvent(true, "c1", "alice"))

		c, _ := find(f.sync.Snapshot(), "c1")
		assert.Equal(t, 1, c.LikeCount)
		assert.True(t, c.LikedByMe)
	})

	t.Run("event before store call returns", func(t *testing.T) {
		f := newFixture("alice")
		f.store.addRoot(comment("c1", 0))
		f.attach(t)

		f.store.onWrite = func() { f.emit(LikeEvent(true, "c1", "alice")) }
		require.NoError(t, f.sync.Like(context.Background(), "c1"))

		c, _ := find(f.sync.Snapshot(), "c1")
		assert.Equal(t, 1, c.LikeCount)
	})

	t.Run("unlike followed by delete event", func(t *testing.T) {
		f := newFixture("alice")
		f.store.addRoot(comment("c1", 0))
		f.store.counts["c1"] = 2
		f.store.liked["c1|alice"] = true
		f.attach(t)

		require.NoError(t, f.sync.Unlike(context.Background(), "c1"))
		f.emit(LikeEvent(false, "c1", "alice"))

		c, _ := find(f.sync.Snapshot(), "c1")
		assert.Equal(t, 1, c.LikeCount)
	})

	t.Run("other users count once each", func(t *testing.T) {
		f := newFixture("alice")
		f.store.addRoot(comment("c1", 0))
		f.attach(t)

		f.emit(LikeEvent(true, "c1", "bob"))
		f.emit(LikeEvent(true, "c1", "bob"))
		f.emit(LikeEvent(true, "c1", "carol"))

		c, _ := find(f.sync.Snapshot(), "c1")
		assert.Equal(t, 2, c.LikeCount)
	})
}

func TestLikeIsNoOpWhenAlreadyLiked(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.counts["c1"] = 1
	f.store.liked["c1|alice"] = true
	f.attach(t)

	require.NoError(t, f.sync.Like(context.Background(), "c1"))
	require.NoError(t, f.sync.Unlike(context.Background(), "c1"))
	require.NoError(t, f.sync.Unlike(context.Background(), "c1"))

	assert.Equal(t, []string{"c1|alice|false"}, f.store.likes)
	c, _ := find(f.sync.Snapshot(), "c1")
	assert.Equal(t, 0, c.LikeCount)
}

func TestToggleLike(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	liked, err := f.sync.ToggleLike(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = f.sync.ToggleLike(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, liked)

	c, _ := find(f.sync.Snapshot(), "c1")
	assert.Equal(t, 0, c.LikeCount)
}

func TestLikeUnknownComment(t *testing.T) {
	f := newFixture("alice")
	f.attach(t)

	assert.ErrorIs(t, f.sync.Like(context.Background(), "nope"), ErrNotFound)
	assert.Empty(t, f.store.likes)
}

func TestPostCommentRollsBackOnWriteError(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addRoot(comment("c0", -1))
	f.store.addReply(reply("r1", "c1", 1))
	f.attach(t)
	before := f.sync.Snapshot()

	f.store.createErr = errors.New("validation failed")
	var pending []Comment
	f.store.onWrite = func() { pending = f.sync.Snapshot() }

	_, err := f.sync.PostComment(context.Background(), "hello")
	require.ErrorIs(t, err, ErrWrite)

	require.Len(t, pending, 3)
	assert.True(t, pending[0].Pending)
	assert.Equal(t, "hello", pending[0].Body)

	assert.Equal(t, before, f.sync.Snapshot())
	f.sync.Wait()
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestPostReplyRollsBackOnWriteError(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 1))
	f.attach(t)
	before := f.sync.Snapshot()

	f.store.createErr = errors.New("offline")
	_, err := f.sync.PostReply(context.Background(), "c1", "me too")
	require.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, before, f.sync.Snapshot())
}

func TestPostCommentSwapsPendingForStored(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	created, err := f.sync.PostComment(context.Background(), "  tasty!  ")
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	assert.Equal(t, "tasty!", created.Body)

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"new-1", "c1"}, topIDs(snap))
	assert.False(t, snap[0].Pending)

	// the live echo of our own insert is a no-op
	f.emit(CommentEvent(ChangeInsert, created))
	assert.Equal(t, []string{"new-1", "c1"}, topIDs(f.sync.Snapshot()))

	f.sync.Wait()
	f.notifier.AssertCalled(t, "Notify", Notification{
		RecipientID: "chef",
		ActorID:     "alice",
		Kind:        NotifyComment,
		ReferenceID: recipeID,
	})
}

func TestPostCommentWhenLiveEventWinsTheRace(t *testing.T) {
	f := newFixture("alice")
	f.attach(t)

	f.store.onWrite = func() {
		c := comment("new-1", 101)
		c.AuthorID = "alice"
		c.Body = "first"
		f.emit(CommentEvent(ChangeInsert, c))
	}
	_, err := f.sync.PostComment(context.Background(), "first")
	require.NoError(t, err)

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"new-1"}, topIDs(snap))
}

func TestPostReplyNotifiesParentAuthor(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 1))
	f.attach(t)

	created, err := f.sync.PostReply(context.Background(), "c1", "agreed")
	require.NoError(t, err)
	assert.Equal(t, "c1", created.ParentCommentID)
	assert.Equal(t, []string{"r1", created.ID}, replyIDs(f.sync.Snapshot(), "c1"))

	f.sync.Wait()
	f.notifier.AssertCalled(t, "Notify", Notification{
		RecipientID: "author-c1",
		ActorID:     "alice",
		Kind:        NotifyReply,
		ReferenceID: "c1",
	})
}

func TestPostReplyRequiresTopLevelParent(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.addReply(reply("r1", "c1", 1))
	f.attach(t)

	_, err := f.sync.PostReply(context.Background(), "r1", "nested")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.sync.PostReply(context.Background(), "missing", "nested")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.store.creates)
}

func TestNoNotificationForOwnContent(t *testing.T) {
	f := newFixture("chef")
	c := comment("c1", 0)
	c.AuthorID = "chef"
	f.store.addRoot(c)
	f.attach(t)

	_, err := f.sync.PostComment(context.Background(), "thanks all")
	require.NoError(t, err)
	_, err = f.sync.PostReply(context.Background(), "c1", "edit: more salt")
	require.NoError(t, err)
	require.NoError(t, f.sync.Like(context.Background(), "c1"))

	f.sync.Wait()
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestLikeNotifiesCommentAuthor(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	require.NoError(t, f.sync.Like(context.Background(), "c1"))
	require.NoError(t, f.sync.Unlike(context.Background(), "c1"))

	f.sync.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
	f.notifier.AssertCalled(t, "Notify", Notification{
		RecipientID: "author-c1",
		ActorID:     "alice",
		Kind:        NotifyLike,
		ReferenceID: "c1",
	})
}

func TestNotificationFailureKeepsMutation(t *testing.T) {
	store, source := newFakeStore(), newFakeSource()
	store.addRoot(comment("c1", 0))
	notifier := new(mockNotifier)
	notifier.On("Notify", mock.Anything).Return(errors.New("push service down"))
	s := New(store, source, UserID("alice"), notifier, WithLogger(zerolog.Nop()))
	require.NoError(t, s.Attach(context.Background(), recipe))

	require.NoError(t, s.Like(context.Background(), "c1"))
	s.Wait()

	c, _ := find(s.Snapshot(), "c1")
	assert.Equal(t, 1, c.LikeCount)
	notifier.AssertExpectations(t)
}

func TestDeleteComment(t *testing.T) {
	setup := func() *fixture {
		f := newFixture("alice")
		c1 := comment("c1", 0)
		c1.AuthorID = "alice"
		f.store.addRoot(c1)
		f.store.addRoot(comment("c0", -1))
		f.store.addReply(reply("r1", "c1", 1))
		return f
	}

	t.Run("success", func(t *testing.T) {
		f := setup()
		f.attach(t)
		require.NoError(t, f.sync.DeleteComment(context.Background(), "c1"))
		assert.Equal(t, []string{"c0"}, topIDs(f.sync.Snapshot()))
		assert.Equal(t, []string{"c1"}, f.store.deletes)

		f.emit(CommentEvent(ChangeDelete, comment("c1", 0)))
		assert.Equal(t, []string{"c0"}, topIDs(f.sync.Snapshot()))
	})

	t.Run("already gone", func(t *testing.T) {
		f := setup()
		f.attach(t)
		f.store.deleteErr = &Error{Kind: KindNotFound, Op: "delete comment", ID: "c1"}
		require.NoError(t, f.sync.DeleteComment(context.Background(), "c1"))
		assert.Equal(t, []string{"c0"}, topIDs(f.sync.Snapshot()))
	})

	t.Run("unknown locally and in store", func(t *testing.T) {
		f := setup()
		f.attach(t)
		before := f.sync.Snapshot()
		f.store.deleteErr = &Error{Kind: KindNotFound}
		require.NoError(t, f.sync.DeleteComment(context.Background(), "zzz"))
		assert.Equal(t, before, f.sync.Snapshot())
	})

	t.Run("write error restores the thread", func(t *testing.T) {
		f := setup()
		f.attach(t)
		before := f.sync.Snapshot()
		f.store.deleteErr = errors.New("boom")
		var during []Comment
		f.store.onWrite = func() { during = f.sync.Snapshot() }

		err := f.sync.DeleteComment(context.Background(), "c1")
		require.ErrorIs(t, err, ErrWrite)
		assert.Equal(t, []string{"c0"}, topIDs(during))
		assert.Equal(t, before, f.sync.Snapshot())
	})

	t.Run("write error after delete event keeps it removed", func(t *testing.T) {
		f := setup()
		f.attach(t)
		f.store.deleteErr = errors.New("late failure")
		f.store.onWrite = func() { f.emit(CommentEvent(ChangeDelete, comment("c1", 0))) }

		require.ErrorIs(t, f.sync.DeleteComment(context.Background(), "c1"), ErrWrite)
		assert.Equal(t, []string{"c0"}, topIDs(f.sync.Snapshot()))
	})

	t.Run("write error keeps replies deleted meanwhile removed", func(t *testing.T) {
		f := setup()
		f.store.addReply(reply("r2", "c1", 2))
		f.attach(t)
		f.store.deleteErr = errors.New("boom")
		f.store.onWrite = func() { f.emit(CommentEvent(ChangeDelete, reply("r1", "c1", 1))) }

		require.ErrorIs(t, f.sync.DeleteComment(context.Background(), "c1"), ErrWrite)
		snap := f.sync.Snapshot()
		assert.Equal(t, []string{"c1", "c0"}, topIDs(snap))
		assert.Equal(t, []string{"r2"}, replyIDs(snap, "c1"))
		assert.Equal(t, 3, f.sync.Count())

		f.store.deleteErr = nil
		f.store.onWrite = nil
		require.NoError(t, f.sync.DeleteComment(context.Background(), "c1"))
		f.emit(CommentEvent(ChangeInsert, comment("c2", 5)))
		assert.Equal(t, []string{"c2", "c0"}, topIDs(f.sync.Snapshot()))
	})

	t.Run("other author", func(t *testing.T) {
		f := setup()
		f.attach(t)
		assert.ErrorIs(t, f.sync.DeleteComment(context.Background(), "c0"), ErrForbidden)
		assert.Empty(t, f.store.deletes)
		assert.Equal(t, []string{"c1", "c0"}, topIDs(f.sync.Snapshot()))
	})
}

func TestSignedOutUserCannotMutate(t *testing.T) {
	f := newFixture("")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	_, err := f.sync.PostComment(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, f.sync.Like(context.Background(), "c1"), ErrUnauthenticated)
	assert.ErrorIs(t, f.sync.DeleteComment(context.Background(), "c1"), ErrUnauthenticated)
	assert.False(t, f.sync.LikedByMe("c1"))
}

func TestBlankBodyIsRejected(t *testing.T) {
	f := newFixture("alice")
	f.attach(t)

	_, err := f.sync.PostComment(context.Background(), " \n\t ")
	assert.ErrorIs(t, err, ErrWrite)
	assert.Empty(t, f.store.creates)
	assert.Empty(t, f.sync.Snapshot())
}

func TestEventsDuringLoadAreReplayed(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.counts["c1"] = 1
	f.store.onFetch = func() {
		f.emit(CommentEvent(ChangeInsert, reply("r1", "c1", 1)))
		f.emit(CommentEvent(ChangeInsert, comment("c2", 2)))
	}
	f.attach(t)

	snap := f.sync.Snapshot()
	assert.Equal(t, []string{"c2", "c1"}, topIDs(snap))
	assert.Equal(t, []string{"r1"}, replyIDs(snap, "c1"))
}

func TestAttachFetchError(t *testing.T) {
	f := newFixture("alice")
	f.store.fetchErr = errors.New("db down")

	err := f.sync.Attach(context.Background(), recipe)
	require.ErrorIs(t, err, ErrFetch)
	assert.Empty(t, f.sync.Snapshot())

	_, attached := f.sync.Resource()
	assert.True(t, attached)

	f.emit(CommentEvent(ChangeInsert, comment("c5", 5)))
	assert.Equal(t, []string{"c5"}, topIDs(f.sync.Snapshot()))
}

func TestAttachSubscribeError(t *testing.T) {
	f := newFixture("alice")
	f.source.err = errors.New("realtime unavailable")

	require.ErrorIs(t, f.sync.Attach(context.Background(), recipe), ErrFetch)
	_, attached := f.sync.Resource()
	assert.False(t, attached)
}

func TestAttachTwice(t *testing.T) {
	f := newFixture("alice")
	f.attach(t)
	assert.Error(t, f.sync.Attach(context.Background(), Resource{ID: "recipe-2"}))
}

func TestDetach(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	f.sync.Detach()
	f.sync.Detach()
	assert.Equal(t, 1, f.source.unsubscribed)
	assert.Empty(t, f.sync.Snapshot())

	assert.NoError(t, f.sync.Apply(CommentEvent(ChangeInsert, comment("c2", 1))))
	assert.Empty(t, f.sync.Snapshot())

	_, err := f.sync.PostComment(context.Background(), "late")
	assert.ErrorIs(t, err, ErrWrite)

	// it can be attached again afterwards
	f.attach(t)
	assert.Equal(t, []string{"c1"}, topIDs(f.sync.Snapshot()))
}

func TestDetachDiscardsInFlightResults(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	f.store.onWrite = func() { f.sync.Detach() }
	created, err := f.sync.PostComment(context.Background(), "bye")
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	assert.Empty(t, f.sync.Snapshot())

	f.sync.Wait()
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything)
}

func TestDetachDuringLoad(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.store.onFetch = func() { f.sync.Detach() }

	require.NoError(t, f.sync.Attach(context.Background(), recipe))
	assert.Empty(t, f.sync.Snapshot())
	assert.Equal(t, 1, f.source.unsubscribed)
}

func TestWatchReceivesEveryChange(t *testing.T) {
	f := newFixture("alice")
	f.store.addRoot(comment("c1", 0))
	f.attach(t)

	var mu sync.Mutex
	var seen [][]string
	cancel := f.sync.Watch(func(cs []Comment) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, topIDs(cs))
	})

	f.emit(CommentEvent(ChangeInsert, comment("c2", 1)))
	f.emit(LikeEvent(true, "missing", "bob"))
	cancel()
	f.emit(CommentEvent(ChangeInsert, comment("c3", 2)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"c1"}, {"c2", "c1"}}, seen)
}

// Random sequences of live events and the user's own likes keep the tree
// well formed and sorted, with no negative like counts.
func TestRandomEventSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()
	for round := 0; round < 50; round++ {
		f := newFixture("alice")
		f.attach(t)

		var known []string
		for i := 0; i < 60; i++ {
			id := fmt.Sprintf("n%d", i)
			switch op := rng.Intn(12); {
			case op < 4 || len(known) == 0:
				f.emit(CommentEvent(ChangeInsert, comment(id, rng.Intn(20))))
				known = append(known, id)
			case op < 7:
				parent := known[rng.Intn(len(known))]
				f.emit(CommentEvent(ChangeInsert, reply(id, parent, rng.Intn(20))))
				known = append(known, id)
			case op < 8:
				victim := known[rng.Intn(len(known))]
				f.emit(CommentEvent(ChangeDelete, comment(victim, 0)))
			case op < 10:
				target := known[rng.Intn(len(known))]
				f.emit(LikeEvent(rng.Intn(2) == 0, target, fmt.Sprintf("u%d", rng.Intn(3))))
			default:
				target := known[rng.Intn(len(known))]
				want := rng.Intn(2) == 0
				before := f.sync.LikedByMe(target)
				f.store.likeErr = nil
				if rng.Intn(3) == 0 {
					f.store.likeErr = errors.New("flaky")
				}
				var err error
				if want {
					err = f.sync.Like(ctx, target)
				} else {
					err = f.sync.Unlike(ctx, target)
				}
				switch {
				case err == nil:
					if _, ok := find(f.sync.Snapshot(), target); ok {
						assert.Equal(t, want, f.sync.LikedByMe(target))
					}
				case errors.Is(err, ErrWrite):
					assert.Equal(t, before, f.sync.LikedByMe(target))
				default:
					assert.ErrorIs(t, err, ErrNotFound)
				}
			}
			checkWellFormed(t, f.sync.Snapshot())
		}
	}
}

func checkWellFormed(t *testing.T, snap []Comment) {
	t.Helper()
	seen := map[string]bool{}
	for i, c := range snap {
		require.False(t, seen[c.ID], "duplicate %s", c.ID)
		seen[c.ID] = true
		assert.True(t, c.IsTopLevel())
		assert.GreaterOrEqual(t, c.LikeCount, 0)
		if i > 0 {
			assert.False(t, c.CreatedAt.After(snap[i-1].CreatedAt), "top-level out of order")
		}
		for j, r := range c.Replies {
			require.False(t, seen[r.ID], "duplicate %s", r.ID)
			seen[r.ID] = true
			assert.Equal(t, c.ID, r.ParentCommentID)
			assert.GreaterOrEqual(t, r.LikeCount, 0)
			if j > 0 {
				assert.False(t, r.CreatedAt.Before(c.Replies[j-1].CreatedAt), "replies out of order")
			}
		}
	}
}
