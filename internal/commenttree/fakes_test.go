package commenttree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

type fakeStore struct {
	mu      sync.Mutex
	roots   map[string][]Comment
	replies map[string][]Comment
	counts  map[string]int
	liked   map[string]bool
	nextID  int

	fetchErr  error
	createErr error
	deleteErr error
	likeErr   error

	// hooks run inside the corresponding call, after the lock is released
	onFetch func()
	onWrite func()

	creates []Comment
	deletes []string
	likes   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roots:   make(map[string][]Comment),
		replies: make(map[string][]Comment),
		counts:  make(map[string]int),
		liked:   make(map[string]bool),
	}
}

func (f *fakeStore) addRoot(c Comment) {
	f.roots[c.ResourceID] = append(f.roots[c.ResourceID], c)
}

func (f *fakeStore) addReply(c Comment) {
	f.replies[c.ParentCommentID] = append(f.replies[c.ParentCommentID], c)
}

func (f *fakeStore) FetchTopLevelComments(_ context.Context, resourceID string) ([]Comment, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]Comment(nil), f.roots[resourceID]...), nil
}

func (f *fakeStore) FetchReplies(_ context.Context, commentID string) ([]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Comment(nil), f.replies[commentID]...), nil
}

func (f *fakeStore) FetchLikeCount(_ context.Context, commentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[commentID], nil
}

func (f *fakeStore) FetchLiked(_ context.Context, commentID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liked[commentID+"|"+userID], nil
}

func (f *fakeStore) CreateComment(_ context.Context, resourceID, parentID, authorID, body string) (Comment, error) {
	if f.onWrite != nil {
		f.onWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Comment{}, f.createErr
	}
	f.nextID++
	c := Comment{
		ID:              fmt.Sprintf("new-%d", f.nextID),
		ParentCommentID: parentID,
		ResourceID:      resourceID,
		AuthorID:        authorID,
		Body:            body,
		CreatedAt:       at(100 + f.nextID),
	}
	f.creates = append(f.creates, c)
	return c, nil
}

func (f *fakeStore) DeleteComment(_ context.Context, commentID string) error {
	if f.onWrite != nil {
		f.onWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, commentID)
	return f.deleteErr
}

func (f *fakeStore) SetLike(_ context.Context, commentID, userID string, liked bool) error {
	if f.onWrite != nil {
		f.onWrite()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likes = append(f.likes, fmt.Sprintf("%s|%s|%t", commentID, userID, liked))
	return f.likeErr
}

type fakeSource struct {
	mu           sync.Mutex
	handlers     map[string]func(Event)
	unsubscribed int
	err          error
}

func newFakeSource() *fakeSource {
	return &fakeSource{handlers: make(map[string]func(Event))}
}

func (f *fakeSource) Subscribe(_ context.Context, resourceID string, onEvent func(Event)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.handlers[resourceID] = onEvent
	return &fakeSubscription{source: f, resourceID: resourceID}, nil
}

func (f *fakeSource) emit(resourceID string, ev Event) {
	f.mu.Lock()
	h := f.handlers[resourceID]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type fakeSubscription struct {
	source     *fakeSource
	resourceID string
}

func (s *fakeSubscription) Unsubscribe() error {
	s.source.mu.Lock()
	defer s.source.mu.Unlock()
	s.source.unsubscribed++
	delete(s.source.handlers, s.resourceID)
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(_ context.Context, n Notification) error {
	args := m.Called(n)
	return args.Error(0)
}

func topIDs(cs []Comment) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	return ids
}

func replyIDs(cs []Comment, parentID string) []string {
	for _, c := range cs {
		if c.ID == parentID {
			return topIDs(c.Replies)
		}
	}
	return nil
}

func find(cs []Comment, id string) (Comment, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
		for _, r := range c.Replies {
			if r.ID == id {
				return r, true
			}
		}
	}
	return Comment{}, false
}
