package queue

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"burgerank/internal/domain"
)

// Драйверы очереди пересчёта.
const (
	DriverRedis    = "redis"
	DriverRabbitMQ = "rabbitmq"
)

// Config выбирает брокер задач пересчёта.
type Config struct {
	Driver      string
	RedisKey    string
	RabbitURL   string
	RabbitQueue string
}

// Open создаёт очередь выбранного драйвера. Возвращаемая функция закрывает соединения очереди.
func Open(cfg Config, rdb *redis.Client) (domain.RecomputeQueue, func() error, error) {
	switch cfg.Driver {
	case DriverRedis, "":
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis queue: client is nil")
		}
		return NewRedisRecomputeQueue(rdb, cfg.RedisKey), func() error { return nil }, nil
	case DriverRabbitMQ:
		q, err := NewRabbitRecomputeQueue(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return nil, nil, err
		}
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
