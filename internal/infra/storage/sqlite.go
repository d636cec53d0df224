// Package storage persists per-trade records to SQLite.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bond_arb/internal/domain"
)

// TradeRecord is one row per executed arbitrage sequence.
type TradeRecord struct {
	ID            uint   `gorm:"primaryKey"`
	OpportunityID string `gorm:"index"`
	State         string
	FilledLegs    int
	FailedLegs    int
	RetriesUsed   int
	RealizedARS   string
	RealizedUSD   string
	CommissionARS string
	LatencyMicros int64
	CompletedAt   time.Time
	CreatedAt     time.Time
}

// LegRecord is one row per leg of a sequence.
type LegRecord struct {
	ID            uint   `gorm:"primaryKey"`
	OpportunityID string `gorm:"index"`
	LegID         string
	Security      string
	Side          string
	Currency      string
	Price         string
	Quantity      string
	Filled        bool
	Attempts      int
	LatencyMicros int64
	Error         string
}

// Store wraps the SQLite database handle.
type Store struct {
	db *gorm.DB
}

// NewStore opens (creating if needed) the trade-record database.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite driver.
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&TradeRecord{}, &LegRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Write implements report.Sink: persist the result and its legs.
func (s *Store) Write(res *domain.ExecutionResult) error {
	trade := TradeRecord{
		OpportunityID: res.OpportunityID,
		State:         string(res.State),
		FilledLegs:    res.FilledLegs,
		FailedLegs:    res.FailedLegs,
		RetriesUsed:   res.RetriesUsed,
		RealizedARS:   res.RealizedPnL[domain.CurrencyARS].String(),
		RealizedUSD:   res.RealizedPnL[domain.CurrencyUSD].String(),
		CommissionARS: res.Commission.String(),
		LatencyMicros: res.Latency.Microseconds(),
		CompletedAt:   res.CompletedAt,
	}
	if err := s.db.Create(&trade).Error; err != nil {
		return err
	}

	for _, lr := range res.Legs {
		leg := LegRecord{
			OpportunityID: res.OpportunityID,
			LegID:         lr.Leg.ID,
			Security:      lr.Leg.Security,
			Side:          lr.Leg.Side,
			Currency:      string(lr.Leg.Currency),
			Price:         lr.Leg.Price.String(),
			Quantity:      lr.Leg.Quantity.String(),
			Filled:        lr.Filled,
			Attempts:      lr.Attempts,
			LatencyMicros: lr.Latency.Microseconds(),
			Error:         lr.Error,
		}
		if err := s.db.Create(&leg).Error; err != nil {
			return err
		}
	}
	return nil
}

// TradeByOpportunity retrieves a persisted trade, nil when absent.
func (s *Store) TradeByOpportunity(oppID string) (*TradeRecord, error) {
	var trade TradeRecord
	err := s.db.First(&trade, "opportunity_id = ?", oppID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &trade, err
}

// Legs retrieves the persisted legs of a trade in insertion order.
func (s *Store) Legs(oppID string) ([]LegRecord, error) {
	var legs []LegRecord
	err := s.db.Order("id asc").Find(&legs, "opportunity_id = ?", oppID).Error
	return legs, err
}

// Trades retrieves all persisted trades in insertion order.
func (s *Store) Trades() ([]TradeRecord, error) {
	var trades []TradeRecord
	err := s.db.Order("id asc").Find(&trades).Error
	return trades, err
}
