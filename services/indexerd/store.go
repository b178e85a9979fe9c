package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// EventRecord is one sequenced node event persisted for querying.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"index"`
	EntityID   uint64    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	IndexedAt  time.Time
}

// Store wraps the indexer database.
type Store struct {
	db *gorm.DB
}

// OpenStore opens the sqlite database at the supplied DSN and migrates the
// event schema. A plain file path is a valid DSN.
func OpenStore(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveEvent persists one event keyed by its sequence number and reports
// whether a new row was written. Sequences seen before are skipped so
// reconnect replays stay idempotent.
func (s *Store) SaveEvent(seq uint64, eventType string, attributes map[string]string) (bool, error) {
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return false, fmt.Errorf("store: encode attributes: %w", err)
	}
	record := EventRecord{
		ID:         uuid.New(),
		Seq:        seq,
		Type:       strings.TrimSpace(eventType),
		EntityID:   entityID(attributes),
		Attributes: string(encoded),
		IndexedAt:  time.Now().UTC(),
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seq"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return false, fmt.Errorf("store: save event %d: %w", seq, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// LastSeq returns the highest persisted sequence number, or zero when the
// store is empty. It doubles as the resume cursor after a restart.
func (s *Store) LastSeq() (uint64, error) {
	var seq uint64
	err := s.db.Model(&EventRecord{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("store: last seq: %w", err)
	}
	return seq, nil
}

// CountEvents returns the number of persisted events.
func (s *Store) CountEvents() (int64, error) {
	var count int64
	if err := s.db.Model(&EventRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return count, nil
}

// EventFilter narrows a ListEvents query. Zero values leave the respective
// dimension unfiltered.
type EventFilter struct {
	Type     string
	EntityID uint64
	AfterSeq uint64
	Limit    int
}

// ListEvents returns persisted events in ascending sequence order, applying
// the filter and clamping the page size.
func (s *Store) ListEvents(filter EventFilter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.Model(&EventRecord{}).Where("seq > ?", filter.AfterSeq)
	if trimmed := strings.TrimSpace(filter.Type); trimmed != "" {
		query = query.Where("type = ?", trimmed)
	}
	if filter.EntityID != 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	var records []EventRecord
	if err := query.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return records, nil
}

// entityID extracts the numeric subject identifier most events carry under
// the "id" attribute. Events without one (delegation and score updates key
// on addresses) index as zero and are reachable by type instead.
func entityID(attributes map[string]string) uint64 {
	raw, ok := attributes["id"]
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
