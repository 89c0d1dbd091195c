package types

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// Auth types

type AuthRequest struct {
	AccessKey string `json:"accessKey" binding:"required"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// Session types

// StatusResponse is the HTTP-visible snapshot of the session state.
type StatusResponse struct {
	Status               string `json:"status"`
	HasPairingPayload    bool   `json:"hasPairingPayload"`
	RetryCount           int    `json:"retryCount"`
	AutoReconnectEnabled bool   `json:"autoReconnectEnabled"`
}

// PairingResponse carries the pairing code and its rendered QR image.
type PairingResponse struct {
	Code   string `json:"code,omitempty"`
	QRPNG  string `json:"qrPng,omitempty"` // base64 PNG
	Linked bool   `json:"linked,omitempty"`
}

// SendRequest is the body of POST /v1/send.
type SendRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Text      string `json:"text"`
	MediaURL  string `json:"mediaUrl"`
}

type SendResponse struct {
	DeliveryID string `json:"deliveryId"`
}

type AutoReconnectRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// DeliveryRecord is one row of the outbound delivery log.
type DeliveryRecord struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
}
