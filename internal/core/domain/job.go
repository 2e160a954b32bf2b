package domain

import (
	"time"
)

type JobStatus string

const (
	JobStatusNotStarted           JobStatus = "NOT_STARTED"
	JobStatusInProgress           JobStatus = "IN_PROGRESS"
	JobStatusFinishedSuccessfully JobStatus = "FINISHED_SUCCESSFULLY"
	JobStatusFinishedWithError    JobStatus = "FINISHED_WITH_ERROR"
)

// AllJobStatuses lists the known statuses in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusNotStarted,
	JobStatusInProgress,
	JobStatusFinishedSuccessfully,
	JobStatusFinishedWithError,
}

var jobStatusLabels = map[JobStatus]string{
	JobStatusNotStarted:           "Not Started",
	JobStatusInProgress:           "In Progress",
	JobStatusFinishedSuccessfully: "Finished Successfully",
	JobStatusFinishedWithError:    "Finished with Error",
}

// Label returns the display label, or the raw value for unknown statuses.
func (s JobStatus) Label() string {
	if label, ok := jobStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s JobStatus) IsKnown() bool {
	_, ok := jobStatusLabels[s]
	return ok
}

// IsTerminal reports whether no further progress is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusFinishedSuccessfully || s == JobStatusFinishedWithError
}

// ClientInfo describes one federated-learning client taking part in a job.
type ClientInfo struct {
	ServiceAddress string `json:"service_address"`
	DataPath       string `json:"data_path"`
	RedisAddress   string `json:"redis_address"`
	HashedPassword string `json:"hashed_password"`
	UUID           string `json:"uuid,omitempty"`
	Metrics        string `json:"metrics,omitempty"` // JSON string reported by the client
}

type Job struct {
	ID            string       `json:"_id" gorm:"primaryKey"`
	Status        JobStatus    `json:"status" gorm:"index"`
	Model         string       `json:"model"`
	Strategy      string       `json:"strategy"`
	Optimizer     string       `json:"optimizer"`
	ServerAddress string       `json:"server_address"`
	RedisAddress  string       `json:"redis_address"`
	ServerConfig  string       `json:"server_config"` // JSON string
	Client        string       `json:"client"`
	ClientsInfo   []ClientInfo `json:"clients_info" gorm:"serializer:json"`
	ServerMetrics string       `json:"server_metrics"` // JSON string
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
