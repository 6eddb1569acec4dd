package domain

import (
	"context"
	"time"
)

// RecomputeCause описывает источник запроса на пересчёт рейтинга.
type RecomputeCause string

const (
	// RecomputeCauseScheduled: плановый пересчёт по таймеру.
	RecomputeCauseScheduled RecomputeCause = "scheduled"
	// RecomputeCauseManual: пересчёт запрошен администратором.
	RecomputeCauseManual RecomputeCause = "manual"
)

// RecomputeJob содержит информацию о задаче пересчёта рейтинга.
type RecomputeJob struct {
	ID          string         `json:"job_id"`
	RequestedBy string         `json:"requested_by,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
	Cause       RecomputeCause `json:"cause"`
}

// RecomputeQueue описывает очередь задач на пересчёт рейтинга.
type RecomputeQueue interface {
	Enqueue(ctx context.Context, job RecomputeJob) error
	Pop(ctx context.Context) (RecomputeJob, error)
}
