package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/artcritique/brushup/pkg/notify"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notification not found")

// NewNotification is the input for Store.Create.
type NewNotification struct {
	UserID   int64     `json:"user_id" binding:"required"`
	Type     string    `json:"type"`
	Title    string    `json:"title" binding:"required"`
	Message  string    `json:"message"`
	URL      string    `json:"url"`
	TargetID notify.ID `json:"target_id"`
}

// NotificationRecord is the stored form of a notification.
type NotificationRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;index:idx_notifications_user_created,priority:1"`
	Type      string    `gorm:"not null"`
	Title     string    `gorm:"not null"`
	Message   string    `gorm:"not null"`
	URL       string    `gorm:"not null"`
	TargetID  int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_notifications_user_created,priority:2,sort:desc"`
	IsRead    bool      `gorm:"not null"`
}

// TableName overrides the gorm default.
func (NotificationRecord) TableName() string {
	return "notifications"
}

func (r NotificationRecord) notification() notify.Notification {
	return notify.Notification{
		ID:        notify.ID(r.ID),
		Type:      r.Type,
		Title:     r.Title,
		Message:   r.Message,
		URL:       r.URL,
		TargetID:  notify.ID(r.TargetID),
		CreatedAt: notify.Timestamp{Time: r.CreatedAt},
		Read:      r.IsRead,
	}
}

// Store keeps notifications in SQLite through gorm.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
	now   func() time.Time
}

// OpenStore opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenStore(path string) (*Store, error) {
	// _time_format=sqlite stores datetimes so that text order is time order.
	dsn := path + "?_time_format=sqlite"
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database shared and serialises writes.
	sqlDB.SetMaxOpenConns(1)

	db, err := gorm.Open(sqlite.New(sqlite.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&NotificationRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate notifications: %w", err)
	}
	return &Store{db: db, sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Create inserts a notification and returns the stored record.
func (s *Store) Create(ctx context.Context, in NewNotification) (notify.Notification, error) {
	rec := NotificationRecord{
		UserID:    in.UserID,
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
		URL:       in.URL,
		TargetID:  int64(in.TargetID),
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return notify.Notification{}, fmt.Errorf("failed to insert notification: %w", err)
	}
	return rec.notification(), nil
}

// List returns up to limit notifications for userID, most recent first.
func (s *Store) List(ctx context.Context, userID int64, limit int) ([]notify.Notification, error) {
	var records []NotificationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	list := make([]notify.Notification, 0, len(records))
	for _, r := range records {
		list = append(list, r.notification())
	}
	return list, nil
}

// UnreadCount returns how many of userID's notifications are unread.
func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&NotificationRecord{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return int(count), nil
}

// MarkRead marks one of userID's notifications read. Marking an already read
// notification succeeds.
func (s *Store) MarkRead(ctx context.Context, userID int64, id notify.ID) error {
	res := s.db.WithContext(ctx).
		Model(&NotificationRecord{}).
		Where("id = ? AND user_id = ?", int64(id), userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of userID read and returns how
// many changed.
func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&NotificationRecord{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
