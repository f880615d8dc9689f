package storage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Post 关系库中的帖子表
type Post struct {
	ID            string            `gorm:"primaryKey;size:64" json:"id"`
	Text          string            `gorm:"type:text" json:"text"`
	ProcessedText string            `gorm:"type:text" json:"processedText"`
	Category      string            `gorm:"size:128;index" json:"category"`
	Timestamp     time.Time         `gorm:"index" json:"timestamp"`
	Meta          datatypes.JSONMap `gorm:"type:jsonb" json:"meta"`
}

// GormStore 基于 gorm + PostgreSQL 的 PostStore
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, eris.Wrap(err, "storage: open postgres")
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Post{}); err != nil {
		return nil, eris.Wrap(err, "storage: migrate posts")
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&Post{}).Where("id = ?", id).Limit(1).Count(&n).Error; err != nil {
		return false, eris.Wrapf(err, "storage: exists %s", id)
	}
	return n > 0, nil
}

// Insert 以 ID 作为幂等键，冲突时不写入并返回 ErrDuplicate
func (s *GormStore) Insert(ctx context.Context, rec Record) error {
	row := Post{
		ID:            rec.ID,
		Text:          toValidUTF8(rec.Text),
		ProcessedText: rec.ProcessedText,
		Category:      rec.Category,
		Timestamp:     rec.Timestamp,
		Meta:          metaToMap(rec.Meta),
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return eris.Wrapf(res.Error, "storage: insert %s", rec.ID)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *GormStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	var rows []Post
	err := s.DB.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).Limit(clampLimit(limit)).Find(&rows).Error
	if err != nil {
		return nil, eris.Wrap(err, "storage: list recent")
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, Record{
			ID:            r.ID,
			Text:          r.Text,
			ProcessedText: r.ProcessedText,
			Category:      r.Category,
			Timestamp:     r.Timestamp,
			Meta:          metaFromMap(r.Meta),
		})
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func metaToMap(m *RecordMeta) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	out := datatypes.JSONMap{
		"author": m.Author,
		"source": m.Source,
		"url":    m.URL,
	}
	if !m.PostedAt.IsZero() {
		out["posted_at"] = m.PostedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func metaFromMap(m datatypes.JSONMap) *RecordMeta {
	if len(m) == 0 {
		return nil
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	meta := &RecordMeta{Author: str("author"), Source: str("source"), URL: str("url")}
	if t, err := time.Parse(time.RFC3339, str("posted_at")); err == nil {
		meta.PostedAt = t
	}
	return meta
}
