// Package redisrepo backs the task pipeline with Redis: task snapshots with
// a bounded TTL, a blocking work queue, source claims for in-flight dedup,
// cancel flags, and per-task pub/sub event channels.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
)

const (
	taskKeyPrefix    = "task:"
	queueKey         = "task_queue"
	sourceKeyPrefix  = "source_claim:"
	cancelKeyPrefix  = "task_cancel:"
	eventChanPrefix  = "task_events:"
	dequeuePollBlock = 5 * time.Second
)

type TaskRepository struct {
	client    *redis.Client
	resultTTL time.Duration
	staleness time.Duration
	log       *logrus.Entry
}

func NewTaskRepository(client *redis.Client, resultTTL, staleness time.Duration, log *logrus.Logger) *TaskRepository {
	return &TaskRepository{
		client:    client,
		resultTTL: resultTTL,
		staleness: staleness,
		log:       log.WithField("component", "taskrepo"),
	}
}

func (r *TaskRepository) Save(ctx context.Context, task *domain.Task) error {
	task.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(task)
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: marshal task %s", task.TaskID)
	}
	if err := r.client.Set(ctx, taskKeyPrefix+task.TaskID, data, r.resultTTL).Err(); err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: save task %s", task.TaskID)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := r.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "redis: get task %s", taskID)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "redis: unmarshal task %s", taskID)
	}
	return &task, nil
}

func (r *TaskRepository) Enqueue(ctx context.Context, taskID string) error {
	if err := r.client.LPush(ctx, queueKey, taskID).Err(); err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: enqueue %s", taskID)
	}
	return nil
}

// Dequeue blocks on the queue. BRPOP uses a short block so ctx cancellation
// is observed within one poll interval.
func (r *TaskRepository) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", domain.Ef(domain.KindCancelled, err, "dequeue interrupted")
		}
		result, err := r.client.BRPop(ctx, dequeuePollBlock, queueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", domain.Ef(domain.KindCancelled, ctx.Err(), "dequeue interrupted")
			}
			return "", domain.Ef(domain.KindInternal, err, "redis: dequeue")
		}
		// BRPOP returns [key, value].
		if len(result) == 2 {
			return result[1], nil
		}
	}
}

// ClaimSource is a SET NX with the staleness window as TTL, so a claim held
// by a crashed worker expires on its own.
func (r *TaskRepository) ClaimSource(ctx context.Context, sourceKey, taskID string) (string, bool, error) {
	key := sourceKeyPrefix + sourceKey
	claimed, err := r.client.SetNX(ctx, key, taskID, r.staleness).Result()
	if err != nil {
		return "", false, domain.Ef(domain.KindInternal, err, "redis: claim source")
	}
	if claimed {
		return taskID, true, nil
	}
	holder, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Holder expired between SETNX and GET; retry once.
		return r.ClaimSource(ctx, sourceKey, taskID)
	}
	if err != nil {
		return "", false, domain.Ef(domain.KindInternal, err, "redis: read source holder")
	}
	return holder, false, nil
}

// ReleaseSource deletes the claim only when taskID still holds it.
func (r *TaskRepository) ReleaseSource(ctx context.Context, sourceKey, taskID string) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`)
	if err := script.Run(ctx, r.client, []string{sourceKeyPrefix + sourceKey}, taskID).Err(); err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: release source")
	}
	return nil
}

func (r *TaskRepository) RequestCancel(ctx context.Context, taskID string) error {
	if err := r.client.Set(ctx, cancelKeyPrefix+taskID, "1", r.resultTTL).Err(); err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: request cancel %s", taskID)
	}
	return nil
}

func (r *TaskRepository) CancelRequested(ctx context.Context, taskID string) (bool, error) {
	n, err := r.client.Exists(ctx, cancelKeyPrefix+taskID).Result()
	if err != nil {
		return false, domain.Ef(domain.KindInternal, err, "redis: cancel flag %s", taskID)
	}
	return n > 0, nil
}

func (r *TaskRepository) PublishEvent(ctx context.Context, ev *domain.TaskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: marshal event")
	}
	if err := r.client.Publish(ctx, eventChanPrefix+ev.TaskID, data).Err(); err != nil {
		return domain.Ef(domain.KindInternal, err, "redis: publish event %s", ev.TaskID)
	}
	return nil
}

func (r *TaskRepository) SubscribeEvents(ctx context.Context, taskID string) (<-chan *domain.TaskEvent, func(), error) {
	pubsub := r.client.Subscribe(ctx, eventChanPrefix+taskID)
	// Force the subscription before the caller relies on it.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, domain.Ef(domain.KindInternal, err, "redis: subscribe %s", taskID)
	}

	out := make(chan *domain.TaskEvent, 16)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.TaskEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.log.WithError(err).Warn("dropping malformed task event")
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

func (r *TaskRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.Ef(domain.KindProviderUnavailable, err, "redis: ping")
	}
	return nil
}
