package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"fedwatch.dashboard/internal/core/circuitbreaker"
	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/jobview"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/ports"
	"fedwatch.dashboard/internal/core/tracing"
)

const (
	defaultSyncInterval = 10 * time.Second
	// drainPasses is how many passes a finished job's clients are still
	// polled for their shutdown marker.
	drainPasses = 6
)

// MetricsSync polls the redis of every running job and stores the metrics
// its server and clients reported.
type MetricsSync struct {
	jobs     *JobService
	reader   ports.MetricsReader
	interval time.Duration

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
	lastRun  time.Time
	// draining maps finished jobs whose clients have not all stopped to the
	// time polling them gives up.
	draining map[string]time.Time

	// OnSync, when set, is called after each job sync attempt.
	OnSync func(jobID string, err error)
}

func NewMetricsSync(jobs *JobService, reader ports.MetricsReader, interval time.Duration) *MetricsSync {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &MetricsSync{
		jobs:     jobs,
		reader:   reader,
		interval: interval,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
		draining: make(map[string]time.Time),
	}
}

// Start polls until ctx is cancelled.
func (ms *MetricsSync) Start(ctx context.Context) {
	ticker := time.NewTicker(ms.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ms.SyncOnce(ctx); err != nil {
				logger.Error("Metrics sync failed", "error", err)
			}
		}
	}
}

// LastRun is the time the last sync pass finished.
func (ms *MetricsSync) LastRun() time.Time {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.lastRun
}

// Interval is the polling period.
func (ms *MetricsSync) Interval() time.Duration {
	return ms.interval
}

// SyncOnce refreshes every IN_PROGRESS job, then the clients of recently
// finished jobs that have not reported shutdown yet. Per-job failures are
// logged and do not stop the pass.
func (ms *MetricsSync) SyncOnce(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "MetricsSync.SyncOnce")
	defer span.End()

	jobs, err := ms.jobs.ListJobsByStatus(ctx, domain.JobStatusInProgress)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		err := ms.syncJob(ctx, job)
		if err != nil {
			logger.Warn("Failed to sync job metrics", "job_id", job.ID, "error", err)
		} else if job.Status.IsTerminal() && !clientsStopped(job) {
			ms.mu.Lock()
			ms.draining[job.ID] = ms.jobs.clock.Now().Add(drainPasses * ms.interval)
			ms.mu.Unlock()
		}
		if ms.OnSync != nil {
			ms.OnSync(job.ID, err)
		}
	}
	ms.drain(ctx)

	ms.mu.Lock()
	ms.lastRun = ms.jobs.clock.Now()
	ms.mu.Unlock()
	return nil
}

func (ms *MetricsSync) syncJob(ctx context.Context, job *domain.Job) error {
	server, err := ms.read(ctx, job.RedisAddress, job.ID)
	if err != nil {
		return err
	}

	changed, err := ms.jobs.ApplyMetrics(ctx, job, server, ms.readClients(ctx, job))
	if err != nil {
		return err
	}
	if changed {
		logger.Debug("Job metrics updated", "job_id", job.ID, "status", string(job.Status))
	}
	return nil
}

// drain polls the clients of finished jobs until each reports an end marker
// or the job's drain deadline passes.
func (ms *MetricsSync) drain(ctx context.Context) {
	now := ms.jobs.clock.Now()

	ms.mu.Lock()
	ids := make(map[string]time.Time, len(ms.draining))
	for id, deadline := range ms.draining {
		ids[id] = deadline
	}
	ms.mu.Unlock()

	for id, deadline := range ids {
		done := now.After(deadline)
		if !done {
			job, err := ms.jobs.GetJob(ctx, id)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				done = true
			case err != nil:
				logger.Warn("Failed to load finished job", "job_id", id, "error", err)
			default:
				if _, err := ms.jobs.ApplyMetrics(ctx, job, "", ms.readClients(ctx, job)); err != nil {
					logger.Warn("Failed to sync client metrics of finished job", "job_id", id, "error", err)
				}
				done = clientsStopped(job)
			}
		}
		if done {
			ms.mu.Lock()
			delete(ms.draining, id)
			ms.mu.Unlock()
		}
	}
}

func (ms *MetricsSync) readClients(ctx context.Context, job *domain.Job) map[string]string {
	clients := make(map[string]string)
	for _, c := range job.ClientsInfo {
		if c.UUID == "" {
			continue
		}
		raw, err := ms.read(ctx, c.RedisAddress, c.UUID)
		if err != nil {
			logger.Warn("Failed to read client metrics", "job_id", job.ID, "client", c.UUID, "error", err)
			continue
		}
		clients[c.UUID] = raw
	}
	return clients
}

// clientsStopped reports whether every client with a uuid has reported its
// end marker.
func clientsStopped(job *domain.Job) bool {
	for _, c := range job.ClientsInfo {
		if c.UUID == "" {
			continue
		}
		m, err := jobview.ParseMetrics(c.Metrics)
		if err != nil || m.End() == nil {
			return false
		}
	}
	return true
}

func (ms *MetricsSync) read(ctx context.Context, address, key string) (string, error) {
	var raw string
	err := ms.breaker(address).Execute(ctx, func() error {
		var err error
		raw, err = ms.reader.ReadMetrics(ctx, address, key)
		return err
	})
	return raw, err
}

func (ms *MetricsSync) breaker(address string) *circuitbreaker.CircuitBreaker {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cb, ok := ms.breakers[address]
	if !ok {
		cb = circuitbreaker.New("redis:" + address)
		ms.breakers[address] = cb
	}
	return cb
}
