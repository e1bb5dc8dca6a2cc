package models

import "time"

// VerifierCredential grants an account the capability to verify collections and deposits.
type VerifierCredential struct {
	Account            string     `db:"account" json:"account"`
	Active             bool       `db:"active" json:"active"`
	VerificationLevel  int        `db:"verification_level" json:"verificationLevel"`
	AccuracyScore      int        `db:"accuracy_score" json:"accuracyScore"`
	TotalVerifications int        `db:"total_verifications" json:"totalVerifications"`
	GrantedBy          *string    `db:"granted_by" json:"grantedBy,omitempty"`
	GrantedAt          time.Time  `db:"granted_at" json:"grantedAt"`
	RevokedAt          *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}
