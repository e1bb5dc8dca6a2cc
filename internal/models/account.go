package models

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAccount returns the EIP-55 checksummed form of a wallet address.
func NormalizeAccount(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return common.HexToAddress(raw).Hex(), true
}

// SameAccount compares two wallet addresses case-insensitively.
func SameAccount(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// AccountProfile summarises an account's standing on the platform.
type AccountProfile struct {
	Account              string              `json:"account"`
	TokenBalance         string              `json:"tokenBalance"`
	TotalRequests        int                 `json:"totalRequests"`
	CompletedCollections int                 `json:"completedCollections"`
	IsCollector          bool                `json:"isCollector"`
	IsVerifier           bool                `json:"isVerifier"`
	Verifier             *VerifierCredential `json:"verifier,omitempty"`
}
