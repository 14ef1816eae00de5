package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
	"github.com/idilsaglam/board/internal/store"
)

// Snapshot is one message of the live feed.
type Snapshot struct {
	Document model.Document
	ETag     string
}

// Watch follows the board's live feed until ctx is done, reconnecting with
// exponential backoff when the connection drops. fn is called for every
// pushed snapshot and reports whether it adopted it; adopted snapshots become
// the version sent with the next conditional save.
//
// Watch returns ctx.Err() on cancellation and ErrUnauthorized without retrying
// when the server refuses the credential.
func (g *HTTP) Watch(ctx context.Context, fn func(Snapshot) bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		err := g.follow(ctx, b, fn)
		if errors.Is(err, store.ErrUnauthorized) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		g.logger.Debug("live feed dropped, reconnecting", zap.Error(err), zap.Duration("wait", wait))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (g *HTTP) liveURL() string {
	u := g.meetingURL("/live")
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

// follow holds one connection open and returns when it ends.
func (g *HTTP) follow(ctx context.Context, b backoff.BackOff, fn func(Snapshot) bool) error {
	header := http.Header{"Authorization": {"Bearer " + g.token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, g.liveURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if serr := statusError(resp.StatusCode, nil); serr != nil {
				return fmt.Errorf("live feed: %w", serr)
			}
		}
		return store.Unavailable("live feed", err)
	}
	defer conn.Close()
	b.Reset()
	g.logger.Debug("live feed connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return store.Unavailable("live feed", err)
		}
		var msg struct {
			Sections json.RawMessage `json:"sections"`
			ETag     string          `json:"etag"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.logger.Warn("undecodable live message", zap.Error(err))
			continue
		}
		doc, err := store.Decode(msg.Sections)
		if err != nil {
			g.logger.Warn("corrupt live snapshot", zap.Error(err))
			continue
		}
		if fn(Snapshot{Document: doc, ETag: msg.ETag}) {
			g.setETag(msg.ETag)
		}
	}
}
