package models

import "time"

// TaskStatus is the terminal state a task was finalized in.
type TaskStatus string

const (
	StatusCompleted TaskStatus = "completed"
	StatusPartial   TaskStatus = "partial"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

func (s TaskStatus) String() string {
	return string(s)
}

func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Icon is the marker shown next to the status in /history.
func (s TaskStatus) Icon() string {
	switch s {
	case StatusCompleted:
		return "✅"
	case StatusPartial:
		return "⚠️"
	case StatusCancelled:
		return "⛔"
	default:
		return "❌"
	}
}

type TaskRecord struct {
	ID              uint          `json:"id"               gorm:"primaryKey"`
	TaskID          string        `json:"task_id"          gorm:"not null;uniqueIndex"`
	Name            string        `json:"name"             gorm:"not null"`
	Mode            string        `json:"mode"             gorm:"not null"`
	Processing      string        `json:"processing"       gorm:"not null"`
	Service         string        `json:"service"          gorm:"not null;default:''"`
	Status          TaskStatus    `json:"status"           gorm:"not null;index"`
	Reason          string        `json:"reason"           gorm:"not null;default:''"`
	SourceLink      string        `json:"source_link"      gorm:"not null;default:''"`
	ChatID          int64         `json:"chat_id"          gorm:"not null"`
	LinkCount       int           `json:"link_count"       gorm:"not null;default:0"`
	SuccessCount    int           `json:"success_count"    gorm:"not null;default:0"`
	SkippedCount    int           `json:"skipped_count"    gorm:"not null;default:0"`
	UploadCount     int           `json:"upload_count"     gorm:"not null;default:0"`
	DownloadedBytes int64         `json:"downloaded_bytes" gorm:"not null;default:0"`
	UploadedBytes   int64         `json:"uploaded_bytes"   gorm:"not null;default:0"`
	ElapsedSeconds  int64         `json:"elapsed_seconds"  gorm:"not null;default:0"`
	Failures        []TaskFailure `json:"failures"         gorm:"foreignKey:TaskRecordID"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"      gorm:"index"`
	CreatedAt       time.Time     `json:"created_at"       gorm:"autoCreateTime"`
}

// FailedCount is the number of failure records kept with the task.
func (r *TaskRecord) FailedCount() int {
	return len(r.Failures)
}

func (r *TaskRecord) Elapsed() time.Duration {
	return time.Duration(r.ElapsedSeconds) * time.Second
}

type TaskFailure struct {
	ID           uint   `json:"id"             gorm:"primaryKey"`
	TaskRecordID uint   `json:"task_record_id" gorm:"not null;index;constraint:OnDelete:CASCADE;"`
	Link         string `json:"link"           gorm:"not null"`
	Filename     string `json:"filename"       gorm:"not null"`
	Index        string `json:"index"          gorm:"column:link_index;not null"`
	Reason       string `json:"reason"         gorm:"not null"`
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	TaskID    string    `json:"task_id,omitempty"`
	TaskName  string    `json:"task_name,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}
