package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cachepledge.org/internal/obs"
)

// Outbox accepts messages for later delivery. Enqueue must return quickly;
// delivery happens on worker goroutines.
type Outbox interface {
	Enqueue(ctx context.Context, m Message) error
}

// ErrQueueFull is returned when the in-memory outbox has no room.
var ErrQueueFull = errors.New("notification queue full")

// Queue is an in-process outbox backed by a buffered channel.
type Queue struct {
	ch     chan Message
	sender Sender
}

// NewQueue creates a queue holding up to size pending messages.
func NewQueue(sender Sender, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan Message, size), sender: sender}
}

func (q *Queue) Enqueue(_ context.Context, m Message) error {
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers messages on workers goroutines until ctx is done, then
// drains whatever is already buffered and returns.
func (q *Queue) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-q.ch:
					deliver(ctx, q.sender, m)
				}
			}
		}()
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case m := <-q.ch:
			deliver(drainCtx, q.sender, m)
		default:
			return
		}
	}
}

// RedisQueue is a durable outbox on a Redis list: LPUSH to enqueue, BRPOP
// in workers. Messages survive an API restart.
type RedisQueue struct {
	rdb     *redis.Client
	key     string
	sender  Sender
	pollFor time.Duration
}

// NewRedisQueue uses key as the list name.
func NewRedisQueue(rdb *redis.Client, key string, sender Sender) *RedisQueue {
	if key == "" {
		key = "cachepledge:outbox"
	}
	return &RedisQueue{rdb: rdb, key: key, sender: sender, pollFor: 5 * time.Second}
}

func (q *RedisQueue) Enqueue(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

// Run pops and delivers until ctx is done.
func (q *RedisQueue) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
}

func (q *RedisQueue) work(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := q.rdb.BRPop(ctx, q.pollFor, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			obs.Error("outbox pop failed", err, map[string]any{"key": q.key})
			time.Sleep(time.Second)
			continue
		}
		// BRPOP returns [key, value]
		if len(res) != 2 {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(res[1]), &m); err != nil {
			obs.Error("outbox message undecodable", err, map[string]any{"key": q.key})
			continue
		}
		deliver(ctx, q.sender, m)
	}
}

func deliver(ctx context.Context, sender Sender, m Message) {
	err := sender.Send(ctx, m)
	obs.Notification(m.Kind, err)
	if err != nil {
		obs.Error("email delivery failed", err, map[string]any{"kind": m.Kind, "to": m.To})
	}
}
