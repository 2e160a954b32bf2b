package domain

import "time"

const DefaultUsername = "admin"

type User struct {
	Username           string    `json:"username" gorm:"primaryKey"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"must_change_password" gorm:"default:false"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// JobUpdate is the event published whenever a job changes.
type JobUpdate struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}
