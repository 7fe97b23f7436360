package store

import (
	"context"
	"errors"
	"time"
)

// Ledger statuses. Every attempt lands on exactly one of these; there is no
// in-flight status because a proxy invocation completes synchronously.
const (
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusFailedProxy = "failed_proxy"
)

// ErrNotFound is returned when a lookup names a row that does not exist.
var ErrNotFound = errors.New("not found")

// Service is a registered forward target. Immutable after creation.
type Service struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
	EndpointURL   string `json:"endpoint_url"`
	Price         string `json:"price"`
}

// Attempt is one row of the append-only ledger. ServiceName is populated by
// Recent for display; it is not stored on the row itself.
type Attempt struct {
	ID          int64     `json:"id"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name,omitempty"`
	TxHash      string    `json:"tx_hash"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Services persists registered services in insertion order.
type Services interface {
	CreateService(ctx context.Context, name, walletAddress, endpointURL, price string) (Service, error)
	GetService(ctx context.Context, id int64) (Service, error)
	ListServices(ctx context.Context) ([]Service, error)
}

// Attempts is the append-only record of proxy attempts. Rows are never
// updated or deleted.
type Attempts interface {
	AppendAttempt(ctx context.Context, serviceID int64, txHash, status string) (Attempt, error)
	RecentAttempts(ctx context.Context, limit int) ([]Attempt, error)
	HasSuccess(ctx context.Context, serviceID int64, txHash string) (bool, error)
}

// Store combines both interfaces over one backing database.
type Store interface {
	Services
	Attempts
}
