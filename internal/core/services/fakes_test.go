package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"fedwatch.dashboard/internal/core/domain"
)

// memJobRepo stores copies, like a database would.
type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*domain.Job
	updates   int
	updateErr error
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	cp.ClientsInfo = append([]domain.ClientInfo(nil), j.ClientsInfo...)
	return &cp
}

func newMemJobRepo(jobs ...*domain.Job) *memJobRepo {
	r := &memJobRepo{jobs: make(map[string]*domain.Job)}
	for _, j := range jobs {
		r.jobs[j.ID] = cloneJob(j)
	}
	return r
}

func (r *memJobRepo) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *memJobRepo) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// stored returns the current stored copy for assertions.
func (r *memJobRepo) stored(id string) *domain.Job {
	job, err := r.GetJob(context.Background(), id)
	if err != nil {
		return nil
	}
	return job
}

func (r *memJobRepo) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.updates++
	job.Status = status
	job.ErrorMessage = errorMessage
	job.UpdatedAt = at
	return nil
}

func (r *memJobRepo) UpdateMetrics(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	cur, ok := r.jobs[job.ID]
	if !ok || cur.Status != expected {
		return domain.ErrConflict
	}
	r.updates++
	cur.ServerMetrics = job.ServerMetrics
	cur.ClientsInfo = append([]domain.ClientInfo(nil), job.ClientsInfo...)
	cur.Status = job.Status
	cur.UpdatedAt = job.UpdatedAt
	return nil
}

func (r *memJobRepo) ListJobsByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.jobs {
		if j.Status == status {
			out = append(out, cloneJob(j))
		}
	}
	return out, nil
}

func (r *memJobRepo) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.JobStatus]int64)
	for _, j := range r.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) GetUser(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) CreateOrUpdate(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.Username] = &cp
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{tokens: make(map[string]string)}
}

func (s *memSessions) Save(ctx context.Context, token, username string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = username
	return nil
}

func (s *memSessions) Lookup(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrNotFound
	}
	return u, nil
}

func (s *memSessions) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

type recordingPubSub struct {
	mu      sync.Mutex
	updates []domain.JobUpdate
}

func (p *recordingPubSub) PublishJobUpdate(ctx context.Context, update domain.JobUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return nil
}

func (p *recordingPubSub) SubscribeJobUpdates(ctx context.Context) (<-chan domain.JobUpdate, error) {
	return nil, errors.New("not supported")
}

func (p *recordingPubSub) published() []domain.JobUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.JobUpdate(nil), p.updates...)
}

// mapReader serves metrics keyed by "address/key".
type mapReader struct {
	mu      sync.Mutex
	values  map[string]string
	failing map[string]bool
	calls   int
	// onRead, when set, runs before each read without the lock held.
	onRead func(address, key string)
}

func (m *mapReader) ReadMetrics(ctx context.Context, address, key string) (string, error) {
	if m.onRead != nil {
		m.onRead(address, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failing[address] {
		return "", errors.New("connection refused")
	}
	return m.values[address+"/"+key], nil
}

func (m *mapReader) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
}
