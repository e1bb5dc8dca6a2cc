package dto

import "github.com/noah-isme/sortify-api/internal/models"

// WasteItemInput is one line of a collection request or estimate; Amount is in grams.
type WasteItemInput struct {
	WasteType string `json:"wasteType" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

// CreateCollectionRequest is the payload for scheduling a pickup. Coordinates are degrees.
type CreateCollectionRequest struct {
	WasteItems []WasteItemInput `json:"wasteItems" validate:"required,min=1,dive"`
	Location   string           `json:"location" validate:"required"`
	Latitude   float64          `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64          `json:"longitude" validate:"gte=-180,lte=180"`
	Notes      string           `json:"notes" validate:"max=2000"`
}

// VerifyCollectionRequest carries the verifier's ruling.
type VerifyCollectionRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Notes    string `json:"notes" validate:"max=2000"`
}

// EstimateRewardRequest prices items without creating anything.
type EstimateRewardRequest struct {
	WasteItems []WasteItemInput `json:"wasteItems" validate:"required,min=1,dive"`
}

// EstimateRewardResponse returns the estimate and the split it would settle into.
type EstimateRewardResponse struct {
	Total string             `json:"total"`
	Split models.RewardSplit `json:"split"`
}

// VerifyCollectionResponse is the verified or re-opened request plus any settled split.
type VerifyCollectionResponse struct {
	Request *models.CollectionRequest `json:"request"`
	Split   *models.RewardSplit       `json:"split,omitempty"`
}
