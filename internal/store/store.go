// Package store persists final match results. Persistence is strictly
// best-effort from the engine's point of view: a failed save never
// reverses or blocks a decided match.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pongarena/backend/internal/sim"
)

// MatchResult is one finished, attributable match.
type MatchResult struct {
	ID            uint `gorm:"primaryKey"`
	LeftUserID    int64
	LeftUsername  string
	RightUserID   int64
	RightUsername string
	LeftScore     int
	RightScore    int
	Winner        sim.Side `gorm:"type:varchar(8)"`
	GameType      string   `gorm:"type:varchar(16)"` // casual | ai | tournament
	CreatedAt     time.Time
}

// ResultSink records a decided match outcome.
type ResultSink interface {
	SaveResult(ctx context.Context, result MatchResult) error
}

// Ledger is an optional downstream recorder (e.g. an external score
// ledger). Its failures are logged, never propagated.
type Ledger interface {
	Record(ctx context.Context, result MatchResult) error
}

// DB is the gorm-backed ResultSink.
type DB struct {
	db     *gorm.DB
	ledger Ledger
	log    *zap.Logger
}

func Open(dsn string, ledger Ledger, log *zap.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&MatchResult{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{db: db, ledger: ledger, log: log}, nil
}

func (d *DB) SaveResult(ctx context.Context, result MatchResult) error {
	if err := d.db.WithContext(ctx).Create(&result).Error; err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	if d.ledger != nil {
		if err := d.ledger.Record(ctx, result); err != nil {
			d.log.Warn("ledger record failed",
				zap.Uint("result_id", result.ID),
				zap.Error(err))
		}
	}
	return nil
}

// NopSink discards results. Used when no database is configured.
type NopSink struct{}

func (NopSink) SaveResult(context.Context, MatchResult) error { return nil }
