package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// PoolConfig sizes the AsyncPublisher worker pool.
type PoolConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer < 0 {
		c.Buffer = 0
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	return c
}

// AsyncPublisher hands events to a bounded pool of workers so request
// handlers never wait on a slow transport. When the buffer stays full for
// longer than the handoff timeout the event is dropped and logged.
type AsyncPublisher struct {
	next   Publisher
	cfg    PoolConfig
	logger *log.Logger
	jobs   chan Event
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped func()
}

// NewAsyncPublisher starts cfg.Workers goroutines publishing to next.
func NewAsyncPublisher(next Publisher, cfg PoolConfig, logger *log.Logger) *AsyncPublisher {
	if logger == nil {
		panic("events.NewAsyncPublisher: logger is nil")
	}
	cfg = cfg.withDefaults()
	a := &AsyncPublisher{
		next:   next,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Event, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}
	logger.WithFields(log.Fields{
		"workers": cfg.Workers,
		"buffer":  cfg.Buffer,
		"handoff": cfg.HandoffTimeout,
	}).Info("event publisher started")
	return a
}

// OnDrop registers a callback run for every dropped event.
func (a *AsyncPublisher) OnDrop(fn func()) {
	a.mu.Lock()
	a.dropped = fn
	a.mu.Unlock()
}

func (a *AsyncPublisher) worker(id int) {
	defer a.wg.Done()
	for ev := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.PublishTimeout)
		err := a.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			a.logger.WithError(err).WithFields(log.Fields{
				"event":  ev.Type,
				"task":   ev.TaskID,
				"worker": id,
			}).Error("publish task event failed")
		}
	}
}

// Publish never blocks longer than the handoff timeout. It reports an error
// only after Close.
func (a *AsyncPublisher) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errPublisherClosed
	}

	select {
	case a.jobs <- ev:
		return nil
	default:
	}

	if a.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(a.cfg.HandoffTimeout)
		defer timer.Stop()
		select {
		case a.jobs <- ev:
			return nil
		case <-timer.C:
		}
	}

	a.logger.WithFields(log.Fields{"event": ev.Type, "task": ev.TaskID}).Warn("event buffer saturated; dropping event")
	if a.dropped != nil {
		a.dropped()
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be published.
func (a *AsyncPublisher) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.jobs)
	a.mu.Unlock()
	a.wg.Wait()
}
