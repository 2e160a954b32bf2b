package pg

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fedwatch.dashboard/internal/core/domain"
	"fedwatch.dashboard/internal/core/ports"
)

type Repository struct {
	db *gorm.DB
}

var (
	_ ports.JobRepository  = (*Repository)(nil)
	_ ports.UserRepository = (*Repository)(nil)
)

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB migrates the schema on an existing connection.
func NewWithDB(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&domain.Job{}, &domain.User{}); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// Job methods
func (r *Repository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repository) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateMetrics writes only the metric columns and status, guarded by the
// status the caller read.
func (r *Repository) UpdateMetrics(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", job.ID, expected).
		Select("server_metrics", "clients_info", "status", "updated_at").
		Updates(job)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *Repository) ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	var jobs []*domain.Job
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at desc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *Repository) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.Job{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[domain.JobStatus]int64, len(domain.AllJobStatuses))
	for _, s := range domain.AllJobStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// User methods
func (r *Repository) GetUser(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) CreateOrUpdate(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// DB returns the underlying gorm DB instance
func (r *Repository) DB() *gorm.DB {
	return r.db
}
