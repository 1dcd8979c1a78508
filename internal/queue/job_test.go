package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job := NewJob(JobTypeGenerateTodos, userID)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeGenerateTodos {
		t.Errorf("Expected job type to be %s, got %s", JobTypeGenerateTodos, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID to be %s, got %s", userID, job.UserID)
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected max retries to be %d, got %d", DefaultMaxRetries, job.MaxRetries)
	}
}

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{"no time constraints", nil, nil, true},
		{"not before in past", timePtr(now.Add(-time.Hour)), nil, true},
		{"not before in future", timePtr(now.Add(time.Hour)), nil, false},
		{"expired", nil, timePtr(now.Add(-time.Hour)), false},
		{"not yet expired", nil, timePtr(now.Add(time.Hour)), true},
		{"inside window", timePtr(now.Add(-time.Hour)), timePtr(now.Add(time.Hour)), true},
		{"window in future", timePtr(now.Add(time.Hour)), timePtr(now.Add(2 * time.Hour)), false},
		{"window in past", timePtr(now.Add(-2 * time.Hour)), timePtr(now.Add(-time.Hour)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := &Job{ID: uuid.New(), Type: JobTypeGenerateTodos, NotBefore: tt.notBefore, NotAfter: tt.notAfter}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name     string
		notAfter *time.Time
		want     bool
	}{
		{"no expiration", nil, false},
		{"expired", timePtr(now.Add(-time.Minute)), true},
		{"not expired", timePtr(now.Add(time.Minute)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job := &Job{NotAfter: tt.notAfter}
			if got := job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_CanRetry(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeGenerateTodos, uuid.New())
	for i := 0; i < DefaultMaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("Expected retry %d to be allowed", i+1)
		}
		job = job.Retry(0)
	}
	if job.CanRetry() {
		t.Error("Expected retries to be exhausted")
	}
}

func TestJob_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     *Job
		wantErr bool
	}{
		{name: "valid", job: NewJob(JobTypeGenerateTodos, uuid.New())},
		{name: "unknown type", job: NewJob("reprocess_user", uuid.New()), wantErr: true},
		{name: "missing user", job: NewJob(JobTypeGenerateTodos, uuid.Nil), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.job.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidJob) {
				t.Errorf("Expected ErrInvalidJob, got %v", err)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeGenerateTodos, uuid.New())
	next := job.Retry(30 * time.Second)

	if next == job {
		t.Fatal("Expected Retry to return a copy")
	}
	if job.RetryCount != 0 || job.NotBefore != nil {
		t.Error("Expected original job to be unchanged")
	}
	if next.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", next.RetryCount)
	}
	if next.ID != job.ID {
		t.Error("Expected retry to keep the job ID")
	}
	if next.NotBefore == nil || time.Until(*next.NotBefore) < 25*time.Second {
		t.Errorf("Expected NotBefore about 30s out, got %v", next.NotBefore)
	}
	if next.ShouldProcess() {
		t.Error("Expected delayed retry not to be processable yet")
	}
}

func TestJob_JSONShape(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeGenerateTodos, uuid.New())
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if raw["type"] != "generate_todos" {
		t.Errorf("Expected type generate_todos, got %v", raw["type"])
	}
	if _, ok := raw["not_before"]; ok {
		t.Error("Expected not_before to be omitted when unset")
	}
}
