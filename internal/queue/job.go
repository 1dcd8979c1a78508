package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType names the work a job carries
type JobType string

// JobTypeGenerateTodos runs one generation for a user in the background
const JobTypeGenerateTodos JobType = "generate_todos"

// DefaultMaxRetries bounds re-enqueues of a failing job
const DefaultMaxRetries = 3

// ErrInvalidJob marks a job that can never succeed and should be dead-lettered without retries
var ErrInvalidJob = errors.New("invalid job")

// Job is the message body published to the generation queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	NotBefore  *time.Time `json:"not_before,omitempty"` // nil runs immediately
	NotAfter   *time.Time `json:"not_after,omitempty"`  // nil never expires
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate reports ErrInvalidJob for an unknown type or a missing user
func (j *Job) Validate() error {
	switch {
	case j.Type != JobTypeGenerateTodos:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidJob, j.Type)
	case j.UserID == uuid.Nil:
		return fmt.Errorf("%w: missing user_id", ErrInvalidJob)
	}
	return nil
}

// ShouldProcess is false before NotBefore and after NotAfter
func (j *Job) ShouldProcess() bool {
	if j.NotBefore != nil && time.Now().Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired()
}

func (j *Job) IsExpired() bool {
	return j.NotAfter != nil && time.Now().After(*j.NotAfter)
}

func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry returns a copy of the job scheduled no earlier than delay from now, with its retry count bumped
func (j *Job) Retry(delay time.Duration) *Job {
	next := *j
	next.RetryCount++
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	return &next
}
