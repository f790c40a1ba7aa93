package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/anonto42/recipe-swap/backend/internal/commenttree"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	actionTimeout  = 15 * time.Second

	actionQueueSize = 32
)

// Actions a live client may send.
const (
	actionPost       = "post"
	actionReply      = "reply"
	actionDelete     = "delete"
	actionLike       = "like"
	actionUnlike     = "unlike"
	actionToggleLike = "toggle_like"
)

type streamAction struct {
	Action    string `json:"action"`
	CommentID string `json:"comment_id,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type treeMessage struct {
	Type     string        `json:"type"`
	Comments []CommentView `json:"comments"`
	Count    int           `json:"count"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error"`
}

// StreamComments upgrades to a websocket that mirrors the recipe's comment
// thread. The server pushes {"type":"tree"} after every change and
// {"type":"error"} when an action fails; clients send streamAction values.
func (h *CommentHandler) StreamComments(c echo.Context) error {
	res, err := h.resource(c)
	if err != nil {
		return err
	}
	me := currentUser(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		return nil
	}
	defer conn.Close()

	logger := log.With().Str("recipe_id", res.ID).Str("user_id", me).Logger()
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	syncer := commenttree.New(h.storeFor(me), h.source, commenttree.UserID(me), h.notifier, commenttree.WithLogger(logger))

	latest := make(chan []commenttree.Comment, 1)
	stopWatch := syncer.Watch(func(cs []commenttree.Comment) {
		select {
		case <-latest:
		default:
		}
		latest <- cs
	})
	defer stopWatch()

	out := make(chan interface{}, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	authors := newAuthorCache(h.users)
	render := func(cs []commenttree.Comment) treeMessage {
		return treeMessage{Type: "tree", Comments: authors.views(ctx, cs), Count: countComments(cs)}
	}
	go writeLoop(conn, latest, render, out, done, writerDone, logger)

	if err := syncer.Attach(ctx, res); err != nil {
		send(out, writerDone, errorMessage{Type: "error", Error: err.Error()})
	}

	var actions sync.WaitGroup
	readLoop(ctx, conn, syncer, out, writerDone, &actions, logger)

	actions.Wait()
	syncer.Detach()
	close(done)
	<-writerDone
	return nil
}

// readLoop hands client actions to a single worker, so one connection's
// actions reach the synchronizer in the order they were read. The worker
// is counted in actions and exits once the connection is closed and the
// queue is drained.
func readLoop(ctx context.Context, conn *websocket.Conn, syncer *commenttree.Synchronizer, out chan<- interface{}, writerDone <-chan struct{}, actions *sync.WaitGroup, logger zerolog.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	queue := make(chan streamAction, actionQueueSize)
	defer close(queue)
	actions.Add(1)
	go func() {
		defer actions.Done()
		for msg := range queue {
			actx, cancel := context.WithTimeout(ctx, actionTimeout)
			err := perform(actx, syncer, msg)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Str("action", msg.Action).Msg("comment action failed")
				send(out, writerDone, errorMessage{Type: "error", Action: msg.Action, Error: err.Error()})
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("live comments connection closed")
			}
			return
		}
		var msg streamAction
		if err := json.Unmarshal(data, &msg); err != nil {
			send(out, writerDone, errorMessage{Type: "error", Error: "invalid message"})
			continue
		}
		queue <- msg
	}
}

// writeLoop is the only writer on conn. render runs on its goroutine.
func writeLoop(conn *websocket.Conn, latest <-chan []commenttree.Comment, render func([]commenttree.Comment) treeMessage, out <-chan interface{}, done <-chan struct{}, writerDone chan<- struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(writerDone)
	}()

	write := func(v interface{}) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			logger.Debug().Err(err).Msg("live comments write failed")
			_ = conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case cs := <-latest:
			if !write(render(cs)) {
				return
			}
		case m := <-out:
			if !write(m) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func send(out chan<- interface{}, writerDone <-chan struct{}, m interface{}) {
	select {
	case out <- m:
	case <-writerDone:
	}
}

func perform(ctx context.Context, s *commenttree.Synchronizer, msg streamAction) error {
	var err error
	switch msg.Action {
	case actionPost:
		_, err = s.PostComment(ctx, msg.Content)
	case actionReply:
		_, err = s.PostReply(ctx, msg.ParentID, msg.Content)
	case actionDelete:
		err = s.DeleteComment(ctx, msg.CommentID)
	case actionLike:
		err = s.Like(ctx, msg.CommentID)
	case actionUnlike:
		err = s.Unlike(ctx, msg.CommentID)
	case actionToggleLike:
		_, err = s.ToggleLike(ctx, msg.CommentID)
	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}
	return err
}
