package dto

// NonceRequest starts a wallet connect.
type NonceRequest struct {
	Account string `json:"account" validate:"required"`
}

// ConnectRequest completes a wallet connect with the signed challenge.
type ConnectRequest struct {
	Account   string `json:"account" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}
