package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/roomchat/internal/model"
)

// Relay errors.
var (
	ErrRelayClosed = errors.New("chat: relay closed")
	ErrQueueFull   = errors.New("chat: persist queue full")
	ErrNoRoom      = errors.New("chat: message without a room")
	ErrNoIdentity  = errors.New("chat: sender binding requires a session")
)

const (
	// enqueueWait bounds how long a read pump waits for queue space.
	enqueueWait = 5 * time.Second
	// storeTimeout bounds one append.
	storeTimeout = 5 * time.Second
)

// MessageLog is the persistence the relay writes through.
type MessageLog interface {
	Append(ctx context.Context, room, sender, content, timestamp string) (int64, error)
}

// Broadcaster delivers an encoded frame to connected clients.
type Broadcaster interface {
	Broadcast(room string, payload []byte) error
}

// RelayConfig sizes the relay.
type RelayConfig struct {
	Workers    int
	QueueSize  int
	BindSender bool
}

// Relay takes messages off the read pumps, stores them with a server
// timestamp and, only when the store succeeds, hands them to the hub.
type Relay struct {
	store      MessageLog
	hub        Broadcaster
	workers    int
	bindSender bool
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Incoming
	wg     sync.WaitGroup
}

// NewRelay creates a Relay. Call Run to start its workers.
func NewRelay(store MessageLog, hub Broadcaster, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Relay{
		store:      store,
		hub:        hub,
		workers:    cfg.Workers,
		bindSender: cfg.BindSender,
		logger:     logger,
		now:        time.Now,
		queue:      make(chan Incoming, cfg.QueueSize),
	}
}

// OnIncomingMessage queues in for persistence. The body is stored as sent;
// only a missing room is refused. It waits at most five seconds for queue
// space; on timeout the message is dropped and ErrQueueFull returned.
func (r *Relay) OnIncomingMessage(ctx context.Context, in Incoming) error {
	in.Chat = strings.TrimSpace(in.Chat)
	if in.Chat == "" {
		return ErrNoRoom
	}
	if r.bindSender {
		if in.Identity == nil {
			return ErrNoIdentity
		}
		in.Sender = in.Identity.Name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRelayClosed
	}

	timer := time.NewTimer(enqueueWait)
	defer timer.Stop()

	select {
	case r.queue <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. It then stops
// accepting messages and returns once every queued message is handled.
func (r *Relay) Run(ctx context.Context) error {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.logger.Info("relay started", slog.Int("workers", r.workers), slog.Int("queue", cap(r.queue)))

	<-ctx.Done()

	r.mu.Lock()
	r.closed = true
	pending := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	r.logger.Info("relay draining", slog.Int("pending", pending))
	r.wg.Wait()
	return nil
}

func (r *Relay) worker() {
	defer r.wg.Done()
	for in := range r.queue {
		if err := r.deliver(in); err != nil {
			r.logger.Error("message not delivered",
				slog.String("chat", in.Chat),
				slog.String("error", err.Error()),
			)
		}
	}
}

// deliver stores one message and broadcasts it. A failed append means no
// broadcast.
func (r *Relay) deliver(in Incoming) error {
	timestamp := model.FormatTimestamp(r.now())

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := r.store.Append(ctx, in.Chat, in.Sender, in.Message, timestamp); err != nil {
		return fmt.Errorf("storing: %w", err)
	}

	frame, err := EncodeReceive(Outgoing{
		Sender:    in.Sender,
		Message:   in.Message,
		Timestamp: timestamp,
		Chat:      in.Chat,
	})
	if err != nil {
		return err
	}

	if err := r.hub.Broadcast(in.Chat, frame); err != nil {
		return fmt.Errorf("broadcasting: %w", err)
	}
	return nil
}
