package ports

import (
	"context"
	"time"

	"fedwatch.dashboard/internal/core/domain"
)

type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	// UpdateStatus sets status and error message only.
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string, at time.Time) error
	// UpdateMetrics stores the job's metrics and status only if its stored
	// status still equals expected; otherwise it returns domain.ErrConflict.
	UpdateMetrics(ctx context.Context, job *domain.Job, expected domain.JobStatus) error
	ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
	CreateOrUpdate(ctx context.Context, user *domain.User) error
}

// MetricsReader fetches the raw metrics a host reported to its redis.
// An empty string with a nil error means nothing was reported yet.
type MetricsReader interface {
	ReadMetrics(ctx context.Context, redisAddress, key string) (string, error)
}

type SessionStore interface {
	Save(ctx context.Context, token, username string, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type JobUpdatePubSub interface {
	PublishJobUpdate(ctx context.Context, update domain.JobUpdate) error
	SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobUpdate, error)
}
