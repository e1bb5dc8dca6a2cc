package dto

// SubmitDepositRequest redeems a smart-bin claim token.
type SubmitDepositRequest struct {
	ClaimToken string `json:"claimToken" validate:"required"`
}

// VerifyDepositRequest records a verifier ruling; ActualWeight is in grams.
type VerifyDepositRequest struct {
	Verified     *bool `json:"verified" validate:"required"`
	ActualWeight int64 `json:"actualWeight" validate:"gte=0"`
}

// DepositImageResponse links to the stored evidence image.
type DepositImageResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
