package dto

import "github.com/shopspring/decimal"

// UpdateRateRequest replaces the reward rate of one waste type.
type UpdateRateRequest struct {
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description" validate:"max=500"`
}

// GrantVerifierRequest grants verifier capability.
type GrantVerifierRequest struct {
	VerificationLevel int `json:"verificationLevel" validate:"gte=0,lte=10"`
}

// RegisterBinRequest registers a smart bin. Coordinates are degrees.
type RegisterBinRequest struct {
	ID        string  `json:"id" validate:"required,max=64"`
	Location  string  `json:"location" validate:"max=500"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// RegisterBinResponse returns the bin and its one-time visible API key.
type RegisterBinResponse struct {
	ID     string `json:"id"`
	APIKey string `json:"apiKey"`
}

// IssueClaimTokenRequest is sent by a bin after weighing a deposit; EstimatedWeight is in kg.
type IssueClaimTokenRequest struct {
	WasteType       string  `json:"wasteType" validate:"required"`
	EstimatedWeight float64 `json:"estimatedWeight" validate:"gt=0"`
}

// IssueClaimTokenResponse carries the QR payload.
type IssueClaimTokenResponse struct {
	Token         string `json:"token"`
	TransactionID string `json:"transactionId"`
	ExpiresAt     string `json:"expiresAt"`
}
