package kv

import (
	"errors"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one persisted key-value pair.
type Entry struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// GormStore persists entries in a single sqlite table.
type GormStore struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// entries table.
func Open(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Read(key string) (string, bool, error) {
	var entry Entry
	err := s.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "read", Key: key, Err: err}
	}
	return entry.Value, true, nil
}

func (s *GormStore) Write(key, value string) error {
	entry := Entry{Key: key, Value: value}
	err := s.db.Save(&entry).Error
	if err != nil {
		log.Printf("⚠️ Failed to write %q: %v", key, err)
		return &StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}
