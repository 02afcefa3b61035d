// Package async provides a worker pool that publishes document events in
// the background so a slow event stream never delays a committed mutation.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/docquery/pkg/eventstream"
	"github.com/papercomputeco/docquery/pkg/logger"
)

var (
	defaultNumWorkers     uint = 2
	defaultQueueSize      uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// ErrQueueFull is returned by Publish when the event had to be dropped.
var ErrQueueFull = errors.New("event queue full, event dropped")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Config is the configuration options for the pool.
type Config struct {
	// Publisher receives every queued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered event channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds each delivery to Publisher.
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Publisher queues events and delivers them from worker goroutines.
type Publisher struct {
	config *Config
	queue  chan *eventstream.DocumentEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates the pool and starts its workers.
func NewPublisher(c *Config) (*Publisher, error) {
	if c.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Publisher{
		config: c,
		queue:  make(chan *eventstream.DocumentEvent, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Publish queues event without waiting for delivery. It never blocks: a
// full queue drops the event and returns ErrQueueFull.
func (p *Publisher) Publish(_ context.Context, event *eventstream.DocumentEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- event:
		p.logger.Debug("event queued",
			"event_type", event.EventType,
			"id", event.Document.ID,
		)
		return nil
	default:
		return fmt.Errorf("%w: %s %s", ErrQueueFull, event.EventType, event.Document.ID)
	}
}

// Close stops accepting events, waits for queued ones to be delivered and
// closes the wrapped publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

func (p *Publisher) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("event worker started", "worker_id", id)

	for event := range p.queue {
		p.deliver(event)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

func (p *Publisher) deliver(event *eventstream.DocumentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish document event",
			"event_type", event.EventType,
			"id", event.Document.ID,
			logger.Err(err),
		)
	}
}
