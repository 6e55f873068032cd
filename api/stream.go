package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"board-api/board"
)

// streamSignal wakes an SSE subscriber. An empty notice means "the board
// changed, resend the view"; a non-empty one is forwarded as a transient
// notice event.
type streamSignal struct {
	notice string
}

// UpdateBroker fans board changes and transient notices out to SSE
// subscribers.
type UpdateBroker struct {
	mu   sync.Mutex
	subs map[chan streamSignal]struct{}
}

// NewUpdateBroker creates an empty broker.
func NewUpdateBroker() *UpdateBroker {
	return &UpdateBroker{subs: make(map[chan streamSignal]struct{})}
}

func (b *UpdateBroker) subscribe() chan streamSignal {
	ch := make(chan streamSignal, 4)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *UpdateBroker) unsubscribe(ch chan streamSignal) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Notify wakes all subscribers so they resend the current view.
func (b *UpdateBroker) Notify() {
	b.send(streamSignal{})
}

// NotifyNotice forwards a transient user message to all subscribers.
func (b *UpdateBroker) NotifyNotice(n board.Notice) {
	b.send(streamSignal{notice: n.Message})
}

func (b *UpdateBroker) send(sig streamSignal) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- sig:
		default:
		}
	}
	b.mu.Unlock()
}

func streamBoard(engine *board.Engine, auth Authenticator, broker *UpdateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if _, err := auth.ActorFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		for {
			data, err := sonic.Marshal(engine.View())
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if err := writeEvent(c, "", data); err != nil {
				return nil
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case sig := <-ch:
				if sig.notice == "" {
					continue
				}
				payload, err := sonic.Marshal(board.Notice{Message: sig.notice})
				if err != nil {
					continue
				}
				if err := writeEvent(c, "notice", payload); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(c echo.Context, event string, data []byte) error {
	w := c.Response()
	if event != "" {
		if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
