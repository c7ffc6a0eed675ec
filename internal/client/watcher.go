package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// DefaultRetryInterval is the pause between change feed reconnects.
const DefaultRetryInterval = 5 * time.Second

// Watcher follows the backend change feed at /ws.
type Watcher struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	retry  time.Duration
	logger *zap.Logger
}

// Watcher returns a change feed watcher using the client's credentials.
func (c *Client) Watcher(retry time.Duration) *Watcher {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}
	header := http.Header{}
	c.authorize(header)

	wsURL := c.baseURL + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	return &Watcher{
		url:    wsURL,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		retry:  retry,
		logger: c.logger,
	}
}

// Run delivers every received event to handle and reconnects after feed
// failures until ctx is cancelled. It returns ctx.Err().
func (w *Watcher) Run(ctx context.Context, handle func(model.ListEvent)) error {
	for {
		err := w.watchOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("change feed disconnected", zap.Error(err), zap.Duration("retry_in", w.retry))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retry):
		}
	}
}

func (w *Watcher) watchOnce(ctx context.Context, handle func(model.ListEvent)) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial change feed: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	w.logger.Info("change feed connected", zap.String("url", w.url))

	for {
		var event model.ListEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("change feed closed by server")
			}
			return fmt.Errorf("read change feed: %w", err)
		}
		handle(event)
	}
}
