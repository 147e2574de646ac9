package database

import (
	"context"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
)

// TaskReader is the read-only subset used by /history.
type TaskReader interface {
	ListTasks(ctx context.Context, limit int) ([]TaskRecord, error)
	GetTask(ctx context.Context, taskID string) (TaskRecord, error)
	CountTasks(ctx context.Context) (int64, error)
}

// TaskWriter is the subset used when a task is finalized.
type TaskWriter interface {
	SaveTask(ctx context.Context, record *TaskRecord) (uint, error)
	PruneTasks(ctx context.Context, keep int) (int64, error)
}

// Database is the full storage interface.
type Database interface {
	Init(config *config.Config) error
	TaskReader
	TaskWriter
	Close() error
}

func NewDatabase(config *config.Config) (Database, error) {
	database := NewSQLiteDatabase()
	if err := database.Init(config); err != nil {
		logutils.Log.WithError(err).Error("Failed to initialize the database")
		return nil, err
	}

	logutils.Log.WithField("path", config.DBPath).Info("Database initialized successfully")
	return database, nil
}
