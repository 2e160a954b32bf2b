package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/jobconfig"
	"fedwatch.dashboard/internal/core/jobview"
)

var testNow = time.Date(2024, 4, 23, 15, 10, 0, 0, time.UTC)

func validDraft() *jobconfig.Draft {
	return &jobconfig.Draft{
		Model:         "resnet18",
		Strategy:      "fedavg",
		Optimizer:     "sgd",
		ServerAddress: "10.0.0.1:8080",
		RedisAddress:  "10.0.0.1:6379",
		ServerConfig:  jobconfig.ServerConfig{"n_server_rounds": 4},
		Client:        "tensorflow",
		ClientsInfo: []jobconfig.ClientDraft{
			{ServiceAddress: "10.0.0.2:9000", DataPath: "/data", RedisAddress: "10.0.0.2:6379", UUID: "c1"},
		},
	}
}

func TestCreateJob(t *testing.T) {
	repo := newMemJobRepo()
	pubsub := &recordingPubSub{}
	svc := NewJobService(repo, pubsub, jobview.FixedClock(testNow))

	job, err := svc.CreateJob(context.Background(), validDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusNotStarted, job.Status)
	assert.JSONEq(t, `{"n_server_rounds": 4}`, job.ServerConfig)
	assert.Equal(t, testNow, job.CreatedAt)
	require.Len(t, job.ClientsInfo, 1)
	assert.Equal(t, "c1", job.ClientsInfo[0].UUID)

	stored, err := repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, stored)
	assert.Equal(t, []domain.JobUpdate{{JobID: job.ID, Status: domain.JobStatusNotStarted}}, pubsub.published())
}

func TestCreateJobRejectsInvalidDraft(t *testing.T) {
	repo := newMemJobRepo()
	svc := NewJobService(repo, nil, nil)

	draft := validDraft()
	draft.ClientsInfo = nil

	_, err := svc.CreateJob(context.Background(), draft)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job")
	assert.Empty(t, repo.jobs)
}

func TestChangeStatus(t *testing.T) {
	repo := newMemJobRepo(&domain.Job{ID: "j1", Status: domain.JobStatusInProgress})
	pubsub := &recordingPubSub{}
	svc := NewJobService(repo, pubsub, jobview.FixedClock(testNow))
	ctx := context.Background()

	job, err := svc.ChangeStatus(ctx, "j1", domain.JobStatusFinishedWithError, "client crashed")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFinishedWithError, job.Status)
	assert.Equal(t, "client crashed", job.ErrorMessage)

	job, err = svc.ChangeStatus(ctx, "j1", domain.JobStatusInProgress, "ignored")
	require.NoError(t, err)
	assert.Empty(t, job.ErrorMessage)
	assert.Len(t, pubsub.published(), 2)

	_, err = svc.ChangeStatus(ctx, "j1", domain.JobStatus("PAUSED"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = svc.ChangeStatus(ctx, "missing", domain.JobStatusInProgress, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListJobsByStatusRejectsUnknownStatus(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), nil, nil)
	_, err := svc.ListJobsByStatus(context.Background(), domain.JobStatus("nope"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestApplyMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("stores changed metrics", func(t *testing.T) {
		job := &domain.Job{
			ID:          "j1",
			Status:      domain.JobStatusInProgress,
			ClientsInfo: []domain.ClientInfo{{UUID: "c1"}, {UUID: "c2"}},
		}
		repo := newMemJobRepo(job)
		svc := NewJobService(repo, nil, jobview.FixedClock(testNow))

		changed, err := svc.ApplyMetrics(ctx, job, `{"host_type":"server"}`, map[string]string{"c1": `{"host_type":"client"}`})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, `{"host_type":"client"}`, job.ClientsInfo[0].Metrics)
		assert.Empty(t, job.ClientsInfo[1].Metrics)
		assert.Equal(t, domain.JobStatusInProgress, job.Status)

		changed, err = svc.ApplyMetrics(ctx, job, `{"host_type":"server"}`, map[string]string{"c1": `{"host_type":"client"}`})
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, 1, repo.updates)
	})

	t.Run("fit_end finishes the job", func(t *testing.T) {
		job := &domain.Job{ID: "j2", Status: domain.JobStatusInProgress}
		pubsub := &recordingPubSub{}
		svc := NewJobService(newMemJobRepo(job), pubsub, jobview.FixedClock(testNow))

		changed, err := svc.ApplyMetrics(ctx, job, `{"host_type":"server","fit_end":"2024-04-23 15:05:00"}`, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, domain.JobStatusFinishedSuccessfully, job.Status)
		assert.Equal(t, []domain.JobUpdate{{JobID: "j2", Status: domain.JobStatusFinishedSuccessfully}}, pubsub.published())
	})

	t.Run("malformed server metrics are kept", func(t *testing.T) {
		job := &domain.Job{ID: "j3", Status: domain.JobStatusInProgress}
		svc := NewJobService(newMemJobRepo(job), nil, nil)

		changed, err := svc.ApplyMetrics(ctx, job, `{broken`, nil)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, domain.JobStatusInProgress, job.Status)
	})

	t.Run("update failure is returned", func(t *testing.T) {
		job := &domain.Job{ID: "j4", Status: domain.JobStatusInProgress}
		repo := newMemJobRepo(job)
		repo.updateErr = errors.New("db down")
		svc := NewJobService(repo, nil, nil)

		_, err := svc.ApplyMetrics(ctx, job, `{"host_type":"server"}`, nil)
		assert.Error(t, err)
	})
}

func TestBuildView(t *testing.T) {
	job := &domain.Job{
		ID:           "j1",
		Status:       domain.JobStatusInProgress,
		ServerConfig: `{"n_server_rounds": 2, "lr": 0.01}`,
		ServerMetrics: `{
			"host_type": "server",
			"fit_start": "2024-04-23 15:00:00",
			"rounds": {"1": {"eval_round_end": "2024-04-23 15:02:00"}}
		}`,
		ClientsInfo: []domain.ClientInfo{
			{ServiceAddress: "10.0.0.2:9000", DataPath: "/data", UUID: "c1", Metrics: `{"host_type":"client","rounds":{"1":{"round_end":"x"},"2":{"round_end":"y"}}}`},
			{ServiceAddress: "10.0.0.3:9000", DataPath: "/data", UUID: "c2", Metrics: `not json`},
			{ServiceAddress: "10.0.0.4:9000", DataPath: "/data", UUID: "c3"},
		},
	}
	svc := NewJobService(newMemJobRepo(job), nil, jobview.FixedClock(testNow))

	v := svc.BuildView(job)

	assert.Equal(t, "In Progress", v.StatusInfo.Label)
	assert.Equal(t, 2, v.TotalRounds)
	require.Len(t, v.ServerConfig, 2)
	assert.Equal(t, "n_server_rounds", v.ServerConfig[0].Name)
	assert.Empty(t, v.ServerConfigError)

	require.NotNil(t, v.Server)
	require.NotNil(t, v.Server.Progress)
	assert.Equal(t, 50.0, v.Server.Progress.Percent)
	assert.Equal(t, "10m", v.Server.Elapsed)

	require.Len(t, v.Clients, 3)
	require.NotNil(t, v.Clients[0].Host)
	assert.Equal(t, domain.JobStatusFinishedSuccessfully, v.Clients[0].Host.Progress.EffectiveStatus)
	assert.Equal(t, jobview.MsgMetricsParseError, v.Clients[1].Host.Error)
	assert.Nil(t, v.Clients[2].Host)
}

func TestBuildViewServerConfigStates(t *testing.T) {
	svc := NewJobService(newMemJobRepo(), nil, jobview.FixedClock(testNow))

	empty := svc.BuildView(&domain.Job{ID: "a", Status: domain.JobStatusNotStarted, ServerConfig: "{}"})
	assert.True(t, empty.ServerConfigEmpty)
	assert.Zero(t, empty.TotalRounds)

	broken := svc.BuildView(&domain.Job{ID: "b", Status: domain.JobStatusNotStarted, ServerConfig: "[1,2]"})
	assert.Equal(t, jobview.MsgConfigParseError, broken.ServerConfigError)
	assert.Nil(t, broken.Server)
}

func TestApplyMetricsAfterConcurrentStatusChange(t *testing.T) {
	ctx := context.Background()
	repo := newMemJobRepo(&domain.Job{ID: "j1", Status: domain.JobStatusInProgress})
	pubsub := &recordingPubSub{}
	svc := NewJobService(repo, pubsub, jobview.FixedClock(testNow))

	// the sync read the job before the operator aborted it
	job, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, "j1", domain.JobStatusFinishedWithError, "operator abort")
	require.NoError(t, err)

	changed, err := svc.ApplyMetrics(ctx, job, `{"host_type":"server","fit_end":"2024-04-23 15:05:00"}`, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	stored := repo.stored("j1")
	assert.Equal(t, domain.JobStatusFinishedWithError, stored.Status)
	assert.Equal(t, "operator abort", stored.ErrorMessage)
	assert.Contains(t, stored.ServerMetrics, "fit_end")
	assert.Len(t, pubsub.published(), 1, "only the operator's change is published")
}

func TestChangeStatusKeepsStoredMetrics(t *testing.T) {
	ctx := context.Background()
	repo := newMemJobRepo(&domain.Job{ID: "j1", Status: domain.JobStatusInProgress, ClientsInfo: []domain.ClientInfo{{UUID: "c1"}}})
	svc := NewJobService(repo, nil, jobview.FixedClock(testNow))

	job, err := repo.GetJob(ctx, "j1")
	require.NoError(t, err)
	_, err = svc.ApplyMetrics(ctx, job, `{"host_type":"server"}`, map[string]string{"c1": `{"host_type":"client"}`})
	require.NoError(t, err)

	updated, err := svc.ChangeStatus(ctx, "j1", domain.JobStatusFinishedWithError, "boom")
	require.NoError(t, err)
	assert.Equal(t, `{"host_type":"server"}`, updated.ServerMetrics)
	assert.Equal(t, `{"host_type":"client"}`, updated.ClientsInfo[0].Metrics)
}
