package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WasteDeposit is a smart-bin drop-off awaiting verification and claim.
type WasteDeposit struct {
	ID             int64            `db:"id" json:"id"`
	BinID          string           `db:"bin_id" json:"binId"`
	WasteType      WasteType        `db:"waste_type" json:"wasteType"`
	ReportedWeight int64            `db:"reported_weight" json:"reportedWeight"`
	ActualWeight   *int64           `db:"actual_weight" json:"actualWeight,omitempty"`
	UserAddress    string           `db:"user_address" json:"userAddress"`
	Timestamp      time.Time        `db:"deposited_at" json:"timestamp"`
	TransactionID  string           `db:"transaction_id" json:"transactionId"`
	Verified       bool             `db:"verified" json:"verified"`
	Claimed        bool             `db:"claimed" json:"claimed"`
	Verifier       *string          `db:"verifier" json:"verifier,omitempty"`
	VerifiedAt     *time.Time       `db:"verified_at" json:"verifiedAt,omitempty"`
	ClaimedAt      *time.Time       `db:"claimed_at" json:"claimedAt,omitempty"`
	RewardAmount   *decimal.Decimal `db:"reward_amount" json:"rewardAmount,omitempty"`
	ImagePath      *string          `db:"image_path" json:"-"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// Reviewed reports whether a verifier has already ruled on the deposit.
func (d *WasteDeposit) Reviewed() bool {
	return d.Verifier != nil
}

// DepositFilter constrains listing queries.
type DepositFilter struct {
	UserAddress string
	BinID       string
	Pending     bool
	Limit       int
	Offset      int
}

// ClaimTokenType is the discriminator every smart-bin claim token must carry.
const ClaimTokenType = "sortify-reward"

// ClaimTokenPayload is the QR-encoded body a smart bin hands to the depositor.
// EstimatedWeight is in kilograms; Timestamp is unix milliseconds.
type ClaimTokenPayload struct {
	Type            string  `json:"type"`
	BinID           string  `json:"binId"`
	WasteType       string  `json:"wasteType"`
	EstimatedWeight float64 `json:"estimatedWeight"`
	TransactionID   string  `json:"transactionId"`
	Timestamp       int64   `json:"timestamp"`
}

// IssuedAt converts the millisecond timestamp.
func (p ClaimTokenPayload) IssuedAt() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}
