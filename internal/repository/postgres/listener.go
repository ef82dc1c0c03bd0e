package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chigogiggs/converse/internal/conversation"
	"github.com/chigogiggs/converse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	listenRetryMin = time.Second
	listenRetryMax = 30 * time.Second
	eventBufSize   = 64
)

// Listener holds one dedicated connection on LISTEN and fans incoming
// message rows out to per-user subscriptions. If the connection drops it
// reconnects with exponential backoff rather than going silently dead.
type Listener struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func NewListener(pool *pgxpool.Pool, logger *zap.Logger) *Listener {
	return &Listener{
		pool:   pool,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
}

// Subscribe returns a handle delivering rows addressed to userID. The caller
// owns the handle and must Close it; events are dropped, not queued, once
// its buffer is full.
func (l *Listener) Subscribe(userID uuid.UUID) (conversation.Subscription, error) {
	sub := &subscription{
		userID:   userID,
		events:   make(chan domain.MessageRow, eventBufSize),
		listener: l,
	}
	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return sub, nil
}

// Run blocks until ctx is cancelled. Call it in a goroutine at startup.
func (l *Listener) Run(ctx context.Context) {
	retry := listenRetryMin
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("listener: connection lost, reconnecting",
			zap.Error(err), zap.Duration("backoff", retry))

		select {
		case <-time.After(retry):
		case <-ctx.Done():
			return
		}
		retry *= 2
		if retry > listenRetryMax {
			retry = listenRetryMax
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		return err
	}
	l.logger.Info("listener: listening", zap.String("channel", notifyChannel))

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch([]byte(notification.Payload))
	}
}

func (l *Listener) dispatch(payload []byte) {
	var row domain.MessageRow
	if err := json.Unmarshal(payload, &row); err != nil {
		l.logger.Warn("listener: dropping undecodable payload", zap.Error(err))
		return
	}
	if err := row.Validate(); err != nil {
		l.logger.Warn("listener: dropping malformed row",
			zap.String("id", row.ID.String()), zap.Error(err))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs {
		if sub.userID != row.RecipientID {
			continue
		}
		select {
		case sub.events <- row:
		default:
			l.logger.Warn("listener: subscriber buffer full, dropping event",
				zap.String("user_id", sub.userID.String()))
		}
	}
}

func (l *Listener) remove(sub *subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.subs[sub]; ok {
		delete(l.subs, sub)
		close(sub.events)
	}
}

type subscription struct {
	userID   uuid.UUID
	events   chan domain.MessageRow
	listener *Listener
	once     sync.Once
}

func (s *subscription) Events() <-chan domain.MessageRow {
	return s.events
}

func (s *subscription) Close() {
	s.once.Do(func() { s.listener.remove(s) })
}
