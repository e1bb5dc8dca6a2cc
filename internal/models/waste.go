package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// WasteType enumerates the waste categories accepted for collection and deposit.
type WasteType string

const (
	WasteTypePlastic    WasteType = "PLASTIC"
	WasteTypePaper      WasteType = "PAPER"
	WasteTypeGlass      WasteType = "GLASS"
	WasteTypeMetal      WasteType = "METAL"
	WasteTypeOrganic    WasteType = "ORGANIC"
	WasteTypeElectronic WasteType = "ELECTRONIC"
	WasteTypeHazardous  WasteType = "HAZARDOUS"
	WasteTypeMixed      WasteType = "MIXED"
)

// WasteTypes lists every known waste type in display order.
var WasteTypes = []WasteType{
	WasteTypePlastic,
	WasteTypePaper,
	WasteTypeGlass,
	WasteTypeMetal,
	WasteTypeOrganic,
	WasteTypeElectronic,
	WasteTypeHazardous,
	WasteTypeMixed,
}

// ParseWasteType normalises user input. Unknown values report ok=false.
func ParseWasteType(raw string) (WasteType, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PLASTIC":
		return WasteTypePlastic, true
	case "PAPER":
		return WasteTypePaper, true
	case "GLASS":
		return WasteTypeGlass, true
	case "METAL":
		return WasteTypeMetal, true
	case "ORGANIC":
		return WasteTypeOrganic, true
	case "ELECTRONIC":
		return WasteTypeElectronic, true
	case "HAZARDOUS":
		return WasteTypeHazardous, true
	case "MIXED", "RECYCLABLE":
		return WasteTypeMixed, true
	default:
		return WasteType(strings.ToUpper(strings.TrimSpace(raw))), false
	}
}

// WasteItem is a single line of a collection request; Amount is in grams.
type WasteItem struct {
	WasteType WasteType `db:"waste_type" json:"wasteType" validate:"required"`
	Amount    int64     `db:"amount" json:"amount" validate:"gt=0"`
}

// RewardRate is the reward paid per kilogram of a waste type.
type RewardRate struct {
	WasteType   WasteType       `db:"waste_type" json:"wasteType"`
	Rate        decimal.Decimal `db:"rate" json:"rate"`
	Description string          `db:"description" json:"description"`
	UpdatedBy   *string         `db:"updated_by" json:"updatedBy,omitempty"`
}
