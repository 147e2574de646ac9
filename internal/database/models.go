package database

import "github.com/NikitaDmitryuk/telegram-leecher/internal/models"

type TaskRecord = models.TaskRecord
type TaskFailure = models.TaskFailure
type TaskStatus = models.TaskStatus

const (
	StatusCompleted = models.StatusCompleted
	StatusPartial   = models.StatusPartial
	StatusCancelled = models.StatusCancelled
	StatusFailed    = models.StatusFailed
)
