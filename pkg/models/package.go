package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parcelpoint/parcelpoint-sync/pkg/enums"
)

// Package is one physical item tracked through the warehouse. The remote
// store owns identity and every timestamp; this process only mirrors them.
//
// ProcessedAt is set exactly once, when the status becomes processing.
// ShippedAt is present iff the status is shipped or delivered.
type Package struct {
	ID            uuid.UUID           `json:"id"`
	TrackingCode  string              `json:"tracking_code"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.PackageStatus `json:"status"`
	WeightKg      float64             `json:"weight_kg"`
	DeclaredValue decimal.Decimal     `json:"declared_value"`
	Vendor        string              `json:"vendor"`
	Notes         string              `json:"notes"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
	ShippedAt     *time.Time          `json:"shipped_at,omitempty"`
}
