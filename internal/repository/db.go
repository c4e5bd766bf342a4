package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// documentRecord is the single table backing every collection.
type documentRecord struct {
	Collection string `gorm:"primaryKey;size:64"`
	Key        string `gorm:"primaryKey;column:doc_key;size:191"`
	Body       string `gorm:"type:text"`
	Version    int64
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string {
	return "documents"
}

// NewDB opens a SQLite database and runs migrations.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "task_planner.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows one writer; a single connection serializes them.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return db, nil
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// GormStore keeps documents in a SQL table through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	body, _, err := s.load(ctx, collection, key)
	return body, err
}

func (s *GormStore) Upsert(ctx context.Context, collection, key string, body []byte) error {
	rec := documentRecord{
		Collection: collection,
		Key:        key,
		Body:       string(body),
		Version:    1,
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "doc_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"body":       rec.Body,
			"version":    gorm.Expr("version + 1"),
			"updated_at": rec.UpdatedAt,
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.db.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key).
		Delete(&documentRecord{}).Error; err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *GormStore) Scan(ctx context.Context, collection string, match func(key string, body []byte) bool) ([]Document, error) {
	var records []documentRecord
	if err := s.db.WithContext(ctx).Where("collection = ?", collection).
		Order("doc_key ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(records))
	for _, rec := range records {
		body := []byte(rec.Body)
		if match != nil && !match(rec.Key, body) {
			continue
		}
		docs = append(docs, Document{Collection: rec.Collection, Key: rec.Key, Body: body, Version: rec.Version})
	}
	return docs, nil
}

func (s *GormStore) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	return update(ctx, s, collection, key, fn)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) load(ctx context.Context, collection, key string) ([]byte, int64, error) {
	var rec documentRecord
	err := s.db.WithContext(ctx).Where("collection = ? AND doc_key = ?", collection, key).First(&rec).Error
	switch {
	case err == nil:
		return []byte(rec.Body), rec.Version, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, 0, ErrNotFound
	default:
		return nil, 0, fmt.Errorf("find %s/%s: %w", collection, key, err)
	}
}

func (s *GormStore) swap(ctx context.Context, collection, key string, body []byte, version int64) (bool, error) {
	db := s.db.WithContext(ctx)
	now := time.Now().UTC()
	if version == 0 {
		rec := documentRecord{Collection: collection, Key: key, Body: string(body), Version: 1, UpdatedAt: now}
		err := db.Create(&rec).Error
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return false, nil
		default:
			return false, fmt.Errorf("create %s/%s: %w", collection, key, err)
		}
	}

	res := db.Model(&documentRecord{}).
		Where("collection = ? AND doc_key = ? AND version = ?", collection, key, version).
		Updates(map[string]interface{}{
			"body":       string(body),
			"version":    version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, key, res.Error)
	}
	return res.RowsAffected == 1, nil
}
