package commenttree

import "sort"

type node struct {
	Comment
	seq     uint64
	parent  *node
	replies []*node
}

// tree is the two-level forest. Roots are ordered by (CreatedAt desc, seq
// desc) and replies by (CreatedAt asc, seq asc), so a later arrival with the
// same timestamp goes first among roots and last among replies.
type tree struct {
	roots []*node
	index map[string]*node
	seq   uint64
}

func newTree() *tree {
	return &tree{index: make(map[string]*node)}
}

func (t *tree) nextSeq() uint64 {
	t.seq++
	return t.seq
}

func (t *tree) find(id string) *node { return t.index[id] }

func (t *tree) len() int { return len(t.index) }

func rootBefore(a, b *node) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.seq > b.seq
}

func replyBefore(a, b *node) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}

func insertSorted(list []*node, n *node, before func(a, b *node) bool) []*node {
	i := sort.Search(len(list), func(i int) bool { return before(n, list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = n
	return list
}

func removeFrom(list []*node, n *node) []*node {
	for i, m := range list {
		if m == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// addRoot inserts a top-level node. It is a no-op when the id is known.
func (t *tree) addRoot(n *node) bool {
	if _, ok := t.index[n.ID]; ok {
		return false
	}
	if n.seq == 0 {
		n.seq = t.nextSeq()
	}
	n.parent = nil
	t.roots = insertSorted(t.roots, n, rootBefore)
	t.index[n.ID] = n
	for _, r := range n.replies {
		t.index[r.ID] = r
	}
	return true
}

// addReply appends a reply under a top-level parent. It is a no-op when the
// id is known or the parent is not a top-level node of this tree.
func (t *tree) addReply(parentID string, n *node) bool {
	if _, ok := t.index[n.ID]; ok {
		return false
	}
	parent := t.index[parentID]
	if parent == nil || parent.parent != nil {
		return false
	}
	if n.seq == 0 {
		n.seq = t.nextSeq()
	}
	n.parent = parent
	n.replies = nil
	parent.replies = insertSorted(parent.replies, n, replyBefore)
	t.index[n.ID] = n
	return true
}

// remove detaches a node and, for a top-level node, all of its replies.
func (t *tree) remove(n *node) {
	if n.parent != nil {
		n.parent.replies = removeFrom(n.parent.replies, n)
	} else {
		t.roots = removeFrom(t.roots, n)
		for _, r := range n.replies {
			delete(t.index, r.ID)
		}
	}
	delete(t.index, n.ID)
}

// restore puts a removed node back where its ordering key places it.
func (t *tree) restore(n *node) bool {
	if n.parent == nil {
		return t.addRoot(n)
	}
	return t.addReply(n.parent.ID, n)
}

// snapshot copies the forest. A nil liked keeps each node's LikedByMe.
func (t *tree) snapshot(liked func(id string) bool) []Comment {
	out := make([]Comment, 0, len(t.roots))
	for _, r := range t.roots {
		c := r.Comment
		if liked != nil {
			c.LikedByMe = liked(c.ID)
		}
		c.Replies = nil
		if len(r.replies) > 0 {
			c.Replies = make([]Comment, 0, len(r.replies))
			for _, rep := range r.replies {
				rc := rep.Comment
				if liked != nil {
					rc.LikedByMe = liked(rc.ID)
				}
				rc.Replies = nil
				c.Replies = append(c.Replies, rc)
			}
		}
		out = append(out, c)
	}
	return out
}

// build returns a tree from a fetched forest. Roots arrive newest first and
// replies oldest first; sequence numbers are handed out so that ties keep the
// fetched order.
func build(roots []Comment) *tree {
	t := newTree()
	for i := len(roots) - 1; i >= 0; i-- {
		c := roots[i]
		replies := c.Replies
		c.Replies = nil
		c.ParentCommentID = ""
		t.addRoot(&node{Comment: c})
		for _, rc := range replies {
			rc.Replies = nil
			rc.ParentCommentID = c.ID
			t.addReply(c.ID, &node{Comment: rc})
		}
	}
	return t
}
