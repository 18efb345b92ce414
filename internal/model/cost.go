package model

import (
	"math"
	"time"
)

// CostEntry is one immutable ledger record. The sum of a project's entries
// always equals Project.CostCents.
type CostEntry struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID   string    `json:"projectId" gorm:"index;size:36"`
	AmountCents int64     `json:"-"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AmountUSD exposes the entry amount as 2-decimal USD.
func (e *CostEntry) AmountUSD() float64 { return USD(e.AmountCents) }

// Cents converts a non-negative USD amount to integer cents, round-half-up.
func Cents(usd float64) int64 {
	return int64(math.Floor(usd*100 + 0.5))
}

// USD converts integer cents to a float USD value.
func USD(cents int64) float64 {
	return float64(cents) / 100
}
