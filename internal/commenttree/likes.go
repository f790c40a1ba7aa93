package commenttree

type edge struct {
	commentID string
	userID    string
}

// likeLedger records which like edges are already reflected in the counts.
// A missing entry means the edge state is unknown, which is the case for
// other users' likes that were folded into a fetched count.
type likeLedger map[edge]bool

func (l likeLedger) get(commentID, userID string) (liked, known bool) {
	liked, known = l[edge{commentID, userID}]
	return liked, known
}

func (l likeLedger) set(commentID, userID string, liked bool) {
	l[edge{commentID, userID}] = liked
}

func (l likeLedger) forget(commentID, userID string) {
	delete(l, edge{commentID, userID})
}

// insert reflects a new edge and reports whether the count must go up.
func (l likeLedger) insert(commentID, userID string) bool {
	if liked, _ := l.get(commentID, userID); liked {
		return false
	}
	l.set(commentID, userID, true)
	return true
}

// remove reflects a deleted edge and reports whether the count must go down.
func (l likeLedger) remove(commentID, userID string) bool {
	if liked, known := l.get(commentID, userID); known && !liked {
		return false
	}
	l.set(commentID, userID, false)
	return true
}
