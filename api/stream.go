package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/daveduya011/wph-task-manager/events"
)

const subscriberBuffer = 16

// Broker fans task events received from Redis out to SSE clients.
type Broker struct {
	mu   sync.Mutex
	subs map[chan events.Event]struct{}

	readyOnce sync.Once
	ready     chan struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[chan events.Event]struct{}),
		ready: make(chan struct{}),
	}
}

// Run subscribes to channel until ctx is cancelled.
func (b *Broker) Run(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string) {
	events.Subscribe(ctx, logger, rc, channel, b.markReady, b.broadcast)
}

// Ready is closed once the first Redis subscription is confirmed.
func (b *Broker) Ready() <-chan struct{} { return b.ready }

func (b *Broker) markReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Broker) subscribe() chan events.Event {
	ch := make(chan events.Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan events.Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// broadcast never blocks; slow clients miss events and reload on the next one.
func (b *Broker) broadcast(ev events.Event) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

func streamTasks(broker *Broker, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := sessionFromRequest(c, auth); err != nil {
			return unauthorized(c)
		}
		if broker == nil {
			return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "stream unavailable"})
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorBody{Error: "stream unsupported"})
		}
		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		c.Response().WriteHeader(http.StatusOK)
		if _, err := c.Response().Write([]byte(": subscribed\n\n")); err != nil {
			return nil
		}
		flusher.Flush()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-ch:
				data, err := ev.Encode()
				if err != nil {
					logger.WithError(err).Warn("encode task event")
					continue
				}
				if _, err := c.Response().Write([]byte("event: " + ev.Type + "\ndata: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
