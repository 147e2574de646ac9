package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrTaskNotFound is returned by GetTask for an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// SaveTask stores a finalized task with its failure records in one
// transaction. Saving the same task id twice updates the first record.
func (s *SQLiteDatabase) SaveTask(ctx context.Context, record *TaskRecord) (uint, error) {
	if record.TaskID == "" {
		return 0, fmt.Errorf("task record without task id")
	}
	if !record.Status.IsValid() {
		return 0, fmt.Errorf("invalid task status %q", record.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TaskRecord
		err := tx.Where("task_id = ?", record.TaskID).First(&existing).Error
		switch {
		case err == nil:
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
			if err := tx.Where("task_record_id = ?", existing.ID).Delete(&TaskFailure{}).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		failures := record.Failures
		record.Failures = nil
		if err := tx.Save(record).Error; err != nil {
			return err
		}
		for i := range failures {
			failures[i].ID = 0
			failures[i].TaskRecordID = record.ID
		}
		if len(failures) > 0 {
			if err := tx.Create(&failures).Error; err != nil {
				return err
			}
		}
		record.Failures = failures
		return nil
	})
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

// ListTasks returns the most recently finished tasks first.
func (s *SQLiteDatabase) ListTasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	var records []TaskRecord
	q := s.db.WithContext(ctx).Preload("Failures").Order("finished_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLiteDatabase) GetTask(ctx context.Context, taskID string) (TaskRecord, error) {
	var record TaskRecord
	err := s.db.WithContext(ctx).Preload("Failures").Where("task_id = ?", taskID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TaskRecord{}, ErrTaskNotFound
	}
	return record, err
}

func (s *SQLiteDatabase) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&TaskRecord{}).Count(&n).Error
	return n, err
}

// PruneTasks keeps the newest keep records and deletes the rest with their
// failures.
func (s *SQLiteDatabase) PruneTasks(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&TaskRecord{}).
			Order("finished_at DESC").Order("id DESC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		stale := ids[keep:]
		if err := tx.Where("task_record_id IN ?", stale).Delete(&TaskFailure{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", stale).Delete(&TaskRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
