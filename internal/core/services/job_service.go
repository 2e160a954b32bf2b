package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/jobconfig"
	"fedwatch.dashboard/internal/core/jobview"
	"fedwatch.dashboard/internal/core/logger"
	"fedwatch.dashboard/internal/core/ports"
	"fedwatch.dashboard/internal/core/tracing"
)

type JobService struct {
	jobRepo ports.JobRepository
	pubsub  ports.JobUpdatePubSub
	clock   jobview.Clock
}

func NewJobService(jobRepo ports.JobRepository, pubsub ports.JobUpdatePubSub, clock jobview.Clock) *JobService {
	if clock == nil {
		clock = jobview.SystemClock{}
	}
	return &JobService{
		jobRepo: jobRepo,
		pubsub:  pubsub,
		clock:   clock,
	}
}

// CreateJob validates a draft and stores it as a NOT_STARTED job.
func (s *JobService) CreateJob(ctx context.Context, draft *jobconfig.Draft) (*domain.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobService.CreateJob")
	defer span.End()

	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	serverConfig, err := draft.ServerConfigJSON()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	job := &domain.Job{
		ID:            uuid.New().String(),
		Status:        domain.JobStatusNotStarted,
		Model:         draft.Model,
		Strategy:      draft.Strategy,
		Optimizer:     draft.Optimizer,
		ServerAddress: draft.ServerAddress,
		RedisAddress:  draft.RedisAddress,
		ServerConfig:  serverConfig,
		Client:        draft.Client,
		ClientsInfo:   draft.Clients(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.publish(ctx, job)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	ctx, span := tracing.StartSpan(ctx, "JobService.GetJob")
	defer span.End()
	return s.jobRepo.GetJob(ctx, id)
}

func (s *JobService) ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	if !status.IsKnown() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return s.jobRepo.ListJobsByStatus(ctx, status)
}

func (s *JobService) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	return s.jobRepo.CountJobsByStatus(ctx)
}

// ChangeStatus moves a job to status. errorMessage is kept only for
// FINISHED_WITH_ERROR. Only the status columns are written, so metrics
// stored concurrently by the sync are preserved.
func (s *JobService) ChangeStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) (*domain.Job, error) {
	if !status.IsKnown() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	if status != domain.JobStatusFinishedWithError {
		errorMessage = ""
	}
	if err := s.jobRepo.UpdateStatus(ctx, id, status, errorMessage, s.clock.Now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	job, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, job)
	return job, nil
}

// ApplyMetrics stores freshly fetched metrics on a job. serverMetrics is
// ignored when blank; clientMetrics is keyed by client uuid. A server that
// reported fit_end finishes the job. It reports whether anything changed.
//
// The write is conditional on the status job was read with. When the status
// changed in the meantime, the job is re-read once and the metrics are
// applied on top of the current status.
func (s *JobService) ApplyMetrics(ctx context.Context, job *domain.Job, serverMetrics string, clientMetrics map[string]string) (bool, error) {
	changed, err := s.applyMetrics(ctx, job, serverMetrics, clientMetrics)
	if !errors.Is(err, domain.ErrConflict) {
		return changed, err
	}
	current, err := s.jobRepo.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	*job = *current
	return s.applyMetrics(ctx, job, serverMetrics, clientMetrics)
}

func (s *JobService) applyMetrics(ctx context.Context, job *domain.Job, serverMetrics string, clientMetrics map[string]string) (bool, error) {
	expected := job.Status
	changed := false
	if serverMetrics != "" && serverMetrics != job.ServerMetrics {
		job.ServerMetrics = serverMetrics
		changed = true
	}
	for i := range job.ClientsInfo {
		c := &job.ClientsInfo[i]
		if raw, ok := clientMetrics[c.UUID]; ok && raw != "" && raw != c.Metrics {
			c.Metrics = raw
			changed = true
		}
	}

	statusChanged := false
	if !job.Status.IsTerminal() {
		m, err := jobview.ParseMetrics(job.ServerMetrics)
		if err != nil {
			logger.Warn("Server metrics are not valid JSON", "job_id", job.ID, "error", err)
		} else if m != nil && m.End() != nil {
			job.Status = domain.JobStatusFinishedSuccessfully
			statusChanged = true
		}
	}

	if !changed && !statusChanged {
		return false, nil
	}
	job.UpdatedAt = s.clock.Now()
	if err := s.jobRepo.UpdateMetrics(ctx, job, expected); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return false, err
		}
		return false, fmt.Errorf("failed to store metrics for job %s: %w", job.ID, err)
	}
	if statusChanged {
		s.publish(ctx, job)
	}
	return true, nil
}

func (s *JobService) publish(ctx context.Context, job *domain.Job) {
	if s.pubsub == nil {
		return
	}
	update := domain.JobUpdate{JobID: job.ID, Status: job.Status}
	if err := s.pubsub.PublishJobUpdate(ctx, update); err != nil {
		logger.Error("Failed to publish job update", "job_id", job.ID, "error", err)
	}
}

// JobView is a job together with everything derived from its JSON fields.
type JobView struct {
	Job               *domain.Job        `json:"job"`
	StatusInfo        jobview.StatusInfo `json:"status_info"`
	TotalRounds       int                `json:"total_rounds"`
	ServerConfig      []jobview.Entry    `json:"server_config,omitempty"`
	ServerConfigEmpty bool               `json:"server_config_empty,omitempty"`
	ServerConfigError string             `json:"server_config_error,omitempty"`
	Server            *jobview.HostView  `json:"server,omitempty"`
	Clients           []ClientView       `json:"clients"`
	RenderedAt        time.Time          `json:"rendered_at"`
}

type ClientView struct {
	ServiceAddress string            `json:"service_address"`
	DataPath       string            `json:"data_path"`
	UUID           string            `json:"uuid,omitempty"`
	Host           *jobview.HostView `json:"metrics,omitempty"`
}

func (s *JobService) View(ctx context.Context, id string) (*JobView, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.BuildView(job), nil
}

func (s *JobService) ListViews(ctx context.Context, status domain.JobStatus) ([]*JobView, error) {
	jobs, err := s.ListJobsByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	views := make([]*JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, s.BuildView(job))
	}
	return views, nil
}

// BuildView derives the dashboard view of a job. Malformed JSON only blanks
// the affected section.
func (s *JobService) BuildView(job *domain.Job) *JobView {
	v := &JobView{
		Job:        job,
		StatusInfo: jobview.Classify(string(job.Status)),
		Clients:    make([]ClientView, 0, len(job.ClientsInfo)),
		RenderedAt: s.clock.Now(),
	}

	cfg, err := jobview.ParseServerConfig(job.ServerConfig)
	switch {
	case err == nil:
		v.ServerConfig = jobview.ConfigEntries(cfg)
		v.TotalRounds = jobview.TotalRounds(cfg)
	case errors.Is(err, jobview.ErrEmptyConfig):
		v.ServerConfigEmpty = true
	default:
		logger.Warn("Failed to parse server configuration", "job_id", job.ID, "error", err)
		v.ServerConfigError = jobview.MsgConfigParseError
	}

	v.Server = jobview.BuildHostView(job.ServerMetrics, v.TotalRounds, job.Status, jobview.HostServer, s.clock)
	for _, c := range job.ClientsInfo {
		v.Clients = append(v.Clients, ClientView{
			ServiceAddress: c.ServiceAddress,
			DataPath:       c.DataPath,
			UUID:           c.UUID,
			Host:           jobview.BuildHostView(c.Metrics, v.TotalRounds, job.Status, jobview.HostClient, s.clock),
		})
	}
	return v
}
