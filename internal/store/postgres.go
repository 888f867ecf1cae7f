package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

// messageRow is the chat_messages table. The unique index makes concurrent
// saves of the same send collapse into one row.
type messageRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	RoomID      string    `gorm:"index:idx_room_time,priority:1;size:64"`
	UserID      string    `gorm:"size:64;uniqueIndex:idx_user_client,where:client_msg_id <> ''"`
	ClientMsgID string    `gorm:"size:64;uniqueIndex:idx_user_client,where:client_msg_id <> ''"`
	Username    string    `gorm:"size:64"`
	Content     string    `gorm:"type:text;not null"`
	Type        string    `gorm:"size:16"`
	TeamID      int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"index:idx_room_time,priority:2"`
}

func (messageRow) TableName() string { return "chat_messages" }

func rowOf(m protocol.Message) messageRow {
	return messageRow{
		ID:          m.ID,
		RoomID:      m.RoomID,
		UserID:      m.UserID,
		ClientMsgID: m.ClientMsgID,
		Username:    m.Username,
		Content:     m.Content,
		Type:        m.Type,
		TeamID:      m.TeamID,
		CreatedAt:   m.Time,
	}
}

func (r messageRow) message() protocol.Message {
	return protocol.Message{
		ID:          r.ID,
		ClientMsgID: r.ClientMsgID,
		RoomID:      r.RoomID,
		UserID:      r.UserID,
		Username:    r.Username,
		Content:     r.Content,
		Type:        r.Type,
		TeamID:      r.TeamID,
		Time:        r.CreatedAt.UTC(),
	}
}

// Postgres stores messages through gorm on the pgx-backed postgres driver.
type Postgres struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenPostgres connects to dsn and migrates the chat_messages table.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate chat_messages: %w", err)
	}
	return &Postgres{db: db, now: time.Now}, nil
}

func (s *Postgres) Save(ctx context.Context, m protocol.Message) (protocol.Message, bool, error) {
	if m.ClientMsgID != "" {
		if prev, ok, err := s.find(ctx, m.UserID, m.ClientMsgID); err != nil || ok {
			return prev, false, err
		}
	}
	m, err := prepare(m, s.now())
	if err != nil {
		return protocol.Message{}, false, err
	}
	row := rowOf(m)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && m.ClientMsgID != "" {
			// lost the race against the other path of the same send
			prev, _, ferr := s.find(ctx, m.UserID, m.ClientMsgID)
			return prev, false, ferr
		}
		return protocol.Message{}, false, fmt.Errorf("save message: %w", err)
	}
	return m, true, nil
}

func (s *Postgres) find(ctx context.Context, userID, clientMsgID string) (protocol.Message, bool, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND client_msg_id = ?", userID, clientMsgID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("find message: %w", err)
	}
	if len(rows) == 0 {
		return protocol.Message{}, false, nil
	}
	return rows[0].message(), true, nil
}

func (s *Postgres) List(ctx context.Context, roomID string, p Page) ([]protocol.Message, error) {
	var rows []messageRow
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if !p.Before.IsZero() {
		q = q.Where("created_at < ?", p.Before)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(p.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(rows)
	out := make([]protocol.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.message())
	}
	return out, nil
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
