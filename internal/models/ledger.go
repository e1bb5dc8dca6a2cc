package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntryKind classifies balance movements.
type LedgerEntryKind string

const (
	LedgerEntryCollectionRequester LedgerEntryKind = "COLLECTION_REQUESTER_SHARE"
	LedgerEntryCollectionCollector LedgerEntryKind = "COLLECTION_COLLECTOR_SHARE"
	LedgerEntryCollectionVerifier  LedgerEntryKind = "COLLECTION_VERIFIER_SHARE"
	LedgerEntryDepositClaim        LedgerEntryKind = "DEPOSIT_CLAIM"
)

// LedgerReference names the entity a ledger entry settles.
const (
	LedgerRefCollection = "collection_request"
	LedgerRefDeposit    = "waste_deposit"
)

// LedgerEntry is an immutable credit to an account balance.
type LedgerEntry struct {
	ID            string          `db:"id" json:"id"`
	Account       string          `db:"account" json:"account"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Kind          LedgerEntryKind `db:"kind" json:"kind"`
	ReferenceType string          `db:"reference_type" json:"referenceType"`
	ReferenceID   int64           `db:"reference_id" json:"referenceId"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// AccountBalance is the running total credited to an account.
type AccountBalance struct {
	Account   string          `db:"account" json:"account"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}
