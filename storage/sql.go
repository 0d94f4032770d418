package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"weather-tasks/domain"
)

// taskRow is the flat column layout of the tasks table. Structured fields are
// stored as serialized text.
type taskRow struct {
	UserID              string  `gorm:"column:userId;not null;index"`
	TaskID              int64   `gorm:"column:taskID;primaryKey;autoIncrement:false"`
	Task                string  `gorm:"column:task"`
	Date                string  `gorm:"column:date"`
	Time                string  `gorm:"column:time"`
	Location            string  `gorm:"column:location"`
	Lat                 float64 `gorm:"column:lat"`
	Lon                 float64 `gorm:"column:lon"`
	WeatherRestrictions string  `gorm:"column:weatherRestrictions;not null;default:'[]'"`
	Details             string  `gorm:"column:details"`
	RequiredTemperature string  `gorm:"column:requiredTemperature;not null"`
	IdealHumidity       string  `gorm:"column:idealHumidity;not null"`
}

func (taskRow) TableName() string { return "tasks" }

func toTaskRow(t domain.Task) (taskRow, error) {
	enc, err := domain.EncodeConstraints(t)
	if err != nil {
		return taskRow{}, err
	}
	return taskRow{
		UserID:              t.UserID,
		TaskID:              t.TaskID,
		Task:                t.Task,
		Date:                t.Date,
		Time:                t.Time,
		Location:            t.Location,
		Lat:                 t.Lat,
		Lon:                 t.Lon,
		WeatherRestrictions: enc.WeatherRestrictions,
		Details:             t.Details,
		RequiredTemperature: enc.RequiredTemperature,
		IdealHumidity:       enc.IdealHumidity,
	}, nil
}

func (r taskRow) toTask() (domain.Task, error) {
	t := domain.Task{
		UserID:   r.UserID,
		TaskID:   r.TaskID,
		Task:     r.Task,
		Date:     r.Date,
		Time:     r.Time,
		Location: r.Location,
		Lat:      r.Lat,
		Lon:      r.Lon,
		Details:  r.Details,
	}
	err := domain.DecodeConstraints(&t, domain.EncodedConstraints{
		WeatherRestrictions: r.WeatherRestrictions,
		RequiredTemperature: r.RequiredTemperature,
		IdealHumidity:       r.IdealHumidity,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %d: %w", r.TaskID, err)
	}
	return t, nil
}

// SQLStore keeps tasks in a SQLite database through gorm.
type SQLStore struct{ db *gorm.DB }

// OpenSQLite opens (creating if needed) the database at path and migrates the
// tasks table.
func OpenSQLite(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm handle and migrates the tasks table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&taskRow{}); err != nil {
		return nil, fmt.Errorf("automigrate tasks: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateTask inserts a task; an existing row with the same id is left alone
// and reported as domain.ErrDuplicateTask.
func (s *SQLStore) CreateTask(ctx context.Context, t domain.Task) error {
	row, err := toTaskRow(t)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrDuplicateTask
	}
	return nil
}

// ListTasks returns the owner's tasks in storage order.
func (s *SQLStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Where(map[string]any{"userId": userID}).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// UpdateTask overwrites every mutable column of the row with t's id.
func (s *SQLStore) UpdateTask(ctx context.Context, t domain.Task) (int64, error) {
	row, err := toTaskRow(t)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where(map[string]any{"taskID": t.TaskID}).Updates(map[string]any{
		"task":                row.Task,
		"date":                row.Date,
		"time":                row.Time,
		"location":            row.Location,
		"lat":                 row.Lat,
		"lon":                 row.Lon,
		"weatherRestrictions": row.WeatherRestrictions,
		"details":             row.Details,
		"requiredTemperature": row.RequiredTemperature,
		"idealHumidity":       row.IdealHumidity,
	})
	if res.Error != nil {
		return 0, fmt.Errorf("update task: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteTask removes the row with the given id.
func (s *SQLStore) DeleteTask(ctx context.Context, taskID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where(map[string]any{"taskID": taskID}).Delete(&taskRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete task: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TaskOwner returns the owner of the task with the given id.
func (s *SQLStore) TaskOwner(ctx context.Context, taskID int64) (string, error) {
	var row taskRow
	err := s.db.WithContext(ctx).Select("userId").Where(map[string]any{"taskID": taskID}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrTaskNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select task owner: %w", err)
	}
	return row.UserID, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
