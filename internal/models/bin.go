package models

import "time"

// SmartBin is a registered drop-off point allowed to mint claim tokens.
type SmartBin struct {
	ID         string    `db:"id" json:"id"`
	Location   string    `db:"location" json:"location"`
	Latitude   int64     `db:"latitude" json:"latitude"`
	Longitude  int64     `db:"longitude" json:"longitude"`
	APIKeyHash string    `db:"api_key_hash" json:"-"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
