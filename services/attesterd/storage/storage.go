// Package storage keeps an append-only journal of signed attestations for
// operators. The engine never reads it back.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	sloggorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrDSNRequired is returned when the journal DSN is missing.
var ErrDSNRequired = errors.New("journal dsn must be configured")

// Attestation is one signed tuple.
type Attestation struct {
	ID        string `gorm:"primaryKey;size:36"`
	Method    string `gorm:"index;size:64"`
	ChainID   uint64
	Symmio    string `gorm:"size:42"`
	Hash      string `gorm:"index;size:66"`
	Signer    string `gorm:"size:42"`
	Signature string
	Tuple     string
	Response  string
	CreatedAt time.Time `gorm:"index"`
}

// TableName pins the table name across drivers.
func (Attestation) TableName() string { return "attestations" }

// Entry is the input to Record. Tuple and Response are marshalled as JSON.
type Entry struct {
	Method    string
	ChainID   uint64
	Symmio    string
	Hash      string
	Signer    string
	Signature string
	Tuple     any
	Response  any
}

// Journal wraps the gorm handle.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn. postgres:// URLs use the postgres driver; anything
// else is treated as a SQLite path or DSN.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	switch {
	case isPostgres(trimmed):
		dialector = postgres.Open(trimmed)
	case strings.HasPrefix(trimmed, "file:") || trimmed == ":memory:":
		dialector = sqlite.Open(trimmed)
	default:
		fileDSN, err := FileDSN(trimmed)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(fileDSN)
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: sloggorm.New(sloggorm.WithHandler(logger.Handler())),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Attestation{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends an entry and returns its id.
func (j *Journal) Record(ctx context.Context, e Entry) (uuid.UUID, error) {
	if j == nil {
		return uuid.Nil, fmt.Errorf("journal not configured")
	}
	tuple, err := json.Marshal(e.Tuple)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode tuple: %w", err)
	}
	resp, err := json.Marshal(e.Response)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode response: %w", err)
	}
	id := uuid.New()
	row := Attestation{
		ID:        id.String(),
		Method:    e.Method,
		ChainID:   e.ChainID,
		Symmio:    strings.ToLower(e.Symmio),
		Hash:      strings.ToLower(e.Hash),
		Signer:    strings.ToLower(e.Signer),
		Signature: e.Signature,
		Tuple:     string(tuple),
		Response:  string(resp),
		CreatedAt: j.now().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert attestation: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Attestation, error) {
	if j == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []Attestation
	err := j.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query attestations: %w", err)
	}
	return rows, nil
}
