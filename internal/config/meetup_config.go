package config

import "time"

const (
	// Transactions
	MaxTxAttempts = 5
	TxBackoffBase = 20 * time.Millisecond
	TxBackoffMax  = 500 * time.Millisecond

	// Request ledger
	DefaultRequestLimit  = 5
	DefaultRequestWindow = 24 * time.Hour

	// Live views
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 4096

	// Auth
	TokenTTL    = 72 * time.Hour
	TokenIssuer = "travelquest-service"
	LinkCodeTTL = 10 * time.Minute

	// Display
	UnknownUserName = "Unknown User"
)
