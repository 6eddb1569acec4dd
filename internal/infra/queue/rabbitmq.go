package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const defaultPollInterval = time.Second

// RabbitRecomputeQueue реализует очередь пересчёта через AMQP.
type RabbitRecomputeQueue struct {
	conn         *amqp.Connection
	mu           sync.Mutex
	ch           *amqp.Channel
	queue        string
	pollInterval time.Duration
}

var _ domain.RecomputeQueue = (*RabbitRecomputeQueue)(nil)

// NewRabbitRecomputeQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitRecomputeQueue(amqpURL, queue string) (*RabbitRecomputeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitRecomputeQueue{
		conn:         conn,
		ch:           ch,
		queue:        queue,
		pollInterval: defaultPollInterval,
	}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop читает задачу из очереди, опрашивая брокер до появления сообщения.
func (q *RabbitRecomputeQueue) Pop(ctx context.Context) (domain.RecomputeJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RecomputeJob{}, err
		}
		q.mu.Lock()
		start := time.Now()
		msg, ok, err := q.ch.Get(q.queue, true)
		metrics.ObserveNetworkRequest("rabbitmq", "get", q.queue, start, err)
		q.mu.Unlock()
		if err != nil {
			return domain.RecomputeJob{}, fmt.Errorf("get message: %w", err)
		}
		if !ok {
			select {
			case <-ctx.Done():
				return domain.RecomputeJob{}, ctx.Err()
			case <-time.After(q.pollInterval):
			}
			continue
		}
		var job domain.RecomputeJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			return domain.RecomputeJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitRecomputeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return q.conn.Close()
}
