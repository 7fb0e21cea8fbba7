package sse

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
)

// Defaults.
const (
	DefaultEventBufferSize   = 256
	DefaultClientBufferSize  = 64
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 100
)

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithEventBufferSize sets the size of the publish queue.
func WithEventBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.eventBufferSize = size
		}
	}
}

// WithClientBufferSize sets the default per-client queue size.
func WithClientBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.clientBufferSize = size
		}
	}
}

// WithMaxClients caps concurrent subscribers. Zero means unlimited.
func WithMaxClients(n int) BrokerOption {
	return func(b *broker) { b.maxClients = n }
}

// ClientOptions configures one subscription.
type ClientOptions struct {
	Filter     func(Event) bool
	BufferSize int
}

// ClientOption configures a subscription.
type ClientOption func(*ClientOptions)

// WithJob passes only events of the given job class. An empty job passes
// everything.
func WithJob(job string) ClientOption {
	return func(o *ClientOptions) {
		if job == "" {
			return
		}
		o.Filter = func(e Event) bool { return e.Job == job }
	}
}

type client struct {
	id     string
	events chan Event
	filter func(Event) bool
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.events)
}

// send reports false when the client queue is full.
func (c *client) send(e Event) bool {
	if c.filter != nil && !c.filter(e) {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}

type broker struct {
	log     logger.Logger
	publish chan Event

	mu      sync.RWMutex
	clients map[string]*client
	nextID  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventBufferSize  int
	clientBufferSize int
	maxClients       int
}

// NewBroker creates a stopped broker.
func NewBroker(log logger.Logger, opts ...BrokerOption) Broker {
	b := &broker{
		log:              logger.Component(log, "sse"),
		clients:          make(map[string]*client),
		eventBufferSize:  DefaultEventBufferSize,
		clientBufferSize: DefaultClientBufferSize,
		maxClients:       DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.publish = make(chan Event, b.eventBufferSize)
	return b
}

// Start runs the broadcast loop until ctx ends or Stop is called.
func (b *broker) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.broadcastLoop()
	b.log.Debug("SSE broker started", logger.Int("max_clients", b.maxClients))
	return nil
}

// Stop ends the broadcast loop and disconnects every client.
func (b *broker) Stop() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DefaultShutdownTimeout):
		b.log.Warn("SSE broker shutdown timeout exceeded")
	}
	return nil
}

// Publish queues event without blocking. A full queue drops the event.
func (b *broker) Publish(ctx context.Context, event Event) error {
	select {
	case b.publish <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("publish buffer full, dropped %s", event.Type)
	}
}

// Subscribe registers a client. When the client limit is reached the
// returned channel is nil.
func (b *broker) Subscribe(ctx context.Context, opts ...ClientOption) (events <-chan Event, cleanup func()) {
	o := ClientOptions{BufferSize: b.clientBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		b.log.Warn("SSE client limit reached", logger.Int("max_clients", b.maxClients))
		return nil, func() {}
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &client{
		id:     fmt.Sprintf("client-%d", b.nextID.Add(1)),
		events: make(chan Event, o.BufferSize),
		filter: o.Filter,
		ctx:    cctx,
		cancel: cancel,
	}
	b.clients[c.id] = c
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		<-c.ctx.Done()
		b.remove(c.id)
	}()

	return c.events, func() { b.remove(c.id) }
}

// ClientCount returns the number of subscribed clients.
func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.ctx.Done():
			b.removeAll()
			return
		}
	}
}

// broadcast drops clients that cannot keep up.
func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !c.send(event) {
			b.log.Warn("SSE client too slow, disconnecting",
				logger.String("client_id", c.id),
				logger.String("event_type", event.Type),
			)
			b.remove(c.id)
		}
	}
}

func (b *broker) remove(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if ok {
		c.close()
	}
}

func (b *broker) removeAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*client)
	b.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
