package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectionStatus captures the lifecycle state of a pickup request.
type CollectionStatus string

const (
	CollectionStatusRequested CollectionStatus = "REQUESTED"
	CollectionStatusAccepted  CollectionStatus = "ACCEPTED"
	CollectionStatusCompleted CollectionStatus = "COMPLETED"
	CollectionStatusVerified  CollectionStatus = "VERIFIED"
	CollectionStatusCancelled CollectionStatus = "CANCELLED"
)

// CoordinateScale converts degrees to the fixed-point form persisted on the ledger.
const CoordinateScale = 1_000_000

// CollectionRequest is one scheduled pickup and its pending reward.
type CollectionRequest struct {
	ID                int64            `db:"id" json:"id"`
	Requester         string           `db:"requester" json:"requester"`
	WasteItems        []WasteItem      `db:"-" json:"wasteItems"`
	Location          string           `db:"location" json:"location"`
	Latitude          int64            `db:"latitude" json:"latitude"`
	Longitude         int64            `db:"longitude" json:"longitude"`
	PendingReward     decimal.Decimal  `db:"pending_reward" json:"pendingReward"`
	Status            CollectionStatus `db:"status" json:"status"`
	AssignedCollector *string          `db:"assigned_collector" json:"assignedCollector,omitempty"`
	Verifier          *string          `db:"verifier" json:"verifier,omitempty"`
	RequestedAt       time.Time        `db:"requested_at" json:"requestedAt"`
	AcceptedAt        *time.Time       `db:"accepted_at" json:"acceptedAt,omitempty"`
	CompletedAt       *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
	VerifiedAt        *time.Time       `db:"verified_at" json:"verifiedAt,omitempty"`
	Notes             string           `db:"notes" json:"notes"`
	VerificationNotes *string          `db:"verification_notes" json:"verificationNotes,omitempty"`
	RejectionCount    int              `db:"rejection_count" json:"rejectionCount"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updatedAt"`
}

// IsAssignedTo reports whether account is the request's collector.
func (r *CollectionRequest) IsAssignedTo(account string) bool {
	return r.AssignedCollector != nil && SameAccount(*r.AssignedCollector, account)
}

// CollectionFilter constrains listing queries.
type CollectionFilter struct {
	Status    []CollectionStatus
	Requester string
	Collector string
	Limit     int
	Offset    int
}

// RewardSplit is the per-role breakdown of a settled pending reward.
type RewardSplit struct {
	Requester decimal.Decimal `json:"requester"`
	Collector decimal.Decimal `json:"collector"`
	Verifier  decimal.Decimal `json:"verifier"`
}

// Total sums every share.
func (s RewardSplit) Total() decimal.Decimal {
	return s.Requester.Add(s.Collector).Add(s.Verifier)
}
