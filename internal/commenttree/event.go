package commenttree

import "time"

// EntityKind is the table a change event came from.
type EntityKind string

const (
	EntityComment EntityKind = "comment"
	EntityLike    EntityKind = "like"
)

// ChangeKind is the row operation of a change event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Row is the changed row carried by an Event. Comment rows use the comment
// fields, like rows use CommentID and UserID.
type Row struct {
	ID              string    `json:"id,omitempty"`
	ParentCommentID string    `json:"parent_comment_id,omitempty"`
	ResourceID      string    `json:"resource_id,omitempty"`
	AuthorID        string    `json:"author_id,omitempty"`
	Body            string    `json:"body,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	CommentID string `json:"comment_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Event is a row-level change notification scoped to one recipe.
type Event struct {
	Entity EntityKind `json:"entity"`
	Change ChangeKind `json:"change"`
	Before *Row       `json:"before,omitempty"`
	After  *Row       `json:"after,omitempty"`
}

// row returns the row the event is about: the new image for inserts and
// updates, the old image (or the new one if absent) for deletes.
func (e Event) row() *Row {
	if e.Change == ChangeDelete && e.Before != nil {
		return e.Before
	}
	if e.After != nil {
		return e.After
	}
	return e.Before
}

// CommentEvent builds the event for a comment row change.
func CommentEvent(change ChangeKind, c Comment) Event {
	r := &Row{
		ID:              c.ID,
		ParentCommentID: c.ParentCommentID,
		ResourceID:      c.ResourceID,
		AuthorID:        c.AuthorID,
		Body:            c.Body,
		CreatedAt:       c.CreatedAt,
	}
	ev := Event{Entity: EntityComment, Change: change}
	if change == ChangeDelete {
		ev.Before = r
	} else {
		ev.After = r
	}
	return ev
}

// LikeEvent builds the event for a like edge being added or removed.
func LikeEvent(liked bool, commentID, userID string) Event {
	r := &Row{CommentID: commentID, UserID: userID}
	if liked {
		return Event{Entity: EntityLike, Change: ChangeInsert, After: r}
	}
	return Event{Entity: EntityLike, Change: ChangeDelete, Before: r}
}

func (r *Row) comment() Comment {
	return Comment{
		ID:              r.ID,
		ParentCommentID: r.ParentCommentID,
		ResourceID:      r.ResourceID,
		AuthorID:        r.AuthorID,
		Body:            r.Body,
		CreatedAt:       r.CreatedAt,
	}
}
