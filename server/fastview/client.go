package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 1 * time.Second
	maxMessageSize = 8192

	// Pending updates are flushed to the page at this rate.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// Missing four pings in a row means the page is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

var (
	ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")
	// errPublishDone ends the group once the updates chan closes.
	errPublishDone = errors.New("updates closed")
)

// CoalesceFunc folds an update that has not been sent yet into a newer one.
type CoalesceFunc[T any] func(pending, next T) T

// Client publishes updates one way to a page over a websocket. Updates arriving
// between flushes are folded together with the coalesce func, so a burst of
// training snapshots costs one message and the last one is never lost.
type Client[T any] struct {
	updates  <-chan T
	coalesce CoalesceFunc[T]
	conn     *conn
	rootCtx  context.Context
}

// NewClient upgrades the request to a websocket. A nil coalesce keeps only the
// newest pending update.
func NewClient[T any](
	updates <-chan T,
	coalesce CoalesceFunc[T],
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)

	if coalesce == nil {
		coalesce = func(_, next T) T { return next }
	}
	return &Client[T]{
		updates:  updates,
		coalesce: coalesce,
		conn:     &conn{ws: ws},
		rootCtx:  r.Context(),
	}, nil
}

// Sync publishes updates until the page disconnects, the request ends, or the
// updates chan closes. A normal disconnect returns nil.
func (cli *Client[T]) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error {
		// closing is the only way to release a blocked ReadMessage
		<-groupCtx.Done()
		cli.conn.close()
		return nil
	})
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	if err := group.Wait(); err != nil && !isClosure(err) {
		return err
	}
	return nil
}

// pingPong runs the liveness check. Pongs are only seen while readMessages runs.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.conn.ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.conn.ping(); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

// readMessages drains the page's messages; the page never sends anything useful,
// but control frames are only processed by a reader. Read errors are permanent.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		if _, _, err := cli.conn.ws.ReadMessage(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (cli *Client[T]) publish(ctx context.Context) error {
	flush := channerics.NewTicker(ctx.Done(), pubResolution)
	var pending T
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				if dirty {
					if err := cli.conn.writeJSON(pending); err != nil {
						return err
					}
				}
				return errPublishDone
			}
			if dirty {
				pending = cli.coalesce(pending, update)
			} else {
				pending, dirty = update, true
			}
		case <-flush:
			if !dirty {
				continue
			}
			if err := cli.conn.writeJSON(pending); err != nil {
				return err
			}
			var zero T
			pending, dirty = zero, false
		}
	}
}

func isUnexpected(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

func isClosure(err error) bool {
	return errors.Is(err, errPublishDone) || websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// conn guards writes to the websocket, which allows one writer at a time.
// Reads happen on a single goroutine and need no guard.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteJSON(v); isUnexpected(err) {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (c *conn) ping() error {
	// WriteControl may run concurrently with other writes
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); isUnexpected(err) {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// close sends a best-effort close frame, then closes the connection.
func (c *conn) close() {
	c.mu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	_ = c.ws.Close()
}

// Coalesce folds two batches of element updates into one, keeping for each
// element the ops of its latest update, in the order elements were first seen.
func Coalesce(pending, next []EleUpdate) []EleUpdate {
	merged := make([]EleUpdate, 0, len(pending)+len(next))
	at := make(map[string]int, len(pending)+len(next))
	for _, batch := range [][]EleUpdate{pending, next} {
		for _, update := range batch {
			if i, ok := at[update.EleId]; ok {
				merged[i] = update
				continue
			}
			at[update.EleId] = len(merged)
			merged = append(merged, update)
		}
	}
	return merged
}
