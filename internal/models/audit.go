package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionConnect            = "WALLET_CONNECT"
	AuditActionDisconnect         = "WALLET_DISCONNECT"
	AuditActionCollectionRequest  = "COLLECTION_REQUEST"
	AuditActionCollectionAccept   = "COLLECTION_ACCEPT"
	AuditActionCollectionComplete = "COLLECTION_COMPLETE"
	AuditActionCollectionVerify   = "COLLECTION_VERIFY"
	AuditActionCollectionReject   = "COLLECTION_REJECT"
	AuditActionCollectionCancel   = "COLLECTION_CANCEL"
	AuditActionDepositSubmit      = "DEPOSIT_SUBMIT"
	AuditActionDepositVerify      = "DEPOSIT_VERIFY"
	AuditActionDepositClaim       = "DEPOSIT_CLAIM"
	AuditActionRateUpdate         = "RATE_UPDATE"
	AuditActionVerifierGrant      = "VERIFIER_GRANT"
	AuditActionVerifierRevoke     = "VERIFIER_REVOKE"
	AuditActionBinRegister        = "BIN_REGISTER"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Account    *string   `db:"account" json:"account,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
