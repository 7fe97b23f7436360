package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"paygate/internal/store"
)

// ErrServiceNotFound is returned when the service id resolves to nothing.
// No ledger row is written in that case.
var ErrServiceNotFound = errors.New("service not found")

// PaymentVerifier decides whether a transaction satisfies a service's price.
type PaymentVerifier interface {
	Verify(ctx context.Context, txHash, recipient, amount string) (bool, string)
}

// Result is the terminal outcome of one proxy invocation. Status is the
// ledger status that was recorded for it.
type Result struct {
	Status         string
	Rejected       bool
	Reason         string
	UpstreamStatus int
	UpstreamBody   []byte
}

// Dispatcher orchestrates lookup, verification, forwarding and the ledger
// append. Forwarding is at-most-once; there are no retries.
type Dispatcher struct {
	store    store.Store
	verifier PaymentVerifier
	client   *http.Client
	log      *zap.Logger
}

func NewDispatcher(st store.Store, verifier PaymentVerifier, forwardTimeout time.Duration, log *zap.Logger) *Dispatcher {
	if forwardTimeout <= 0 {
		forwardTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:    st,
		verifier: verifier,
		client:   &http.Client{Timeout: forwardTimeout},
		log:      log,
	}
}

// Handle runs one proxy invocation. Exactly one ledger row is written for
// every invocation that resolves the service; duplicate successful payments
// are rejected without re-verifying or re-forwarding.
func (d *Dispatcher) Handle(ctx context.Context, serviceID int64, txHash string, payload json.RawMessage) (*Result, error) {
	svc, err := d.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("look up service: %w", err)
	}

	redeemed, err := d.store.HasSuccess(ctx, serviceID, txHash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if redeemed {
		if err := d.append(ctx, svc.ID, txHash, store.StatusFailed); err != nil {
			return nil, err
		}
		return &Result{Status: store.StatusFailed, Rejected: true, Reason: "transaction already redeemed"}, nil
	}

	ok, reason := d.verifier.Verify(ctx, txHash, svc.WalletAddress, svc.Price)
	if !ok {
		if err := d.append(ctx, svc.ID, txHash, store.StatusFailed); err != nil {
			return nil, err
		}
		return &Result{Status: store.StatusFailed, Rejected: true, Reason: reason}, nil
	}

	upstreamStatus, upstreamBody, fwdErr := d.forward(ctx, svc.EndpointURL, payload)
	if fwdErr != nil {
		d.log.Warn("forward failed",
			zap.Int64("service_id", svc.ID),
			zap.String("tx_hash", txHash),
			zap.Error(fwdErr))
		if err := d.append(ctx, svc.ID, txHash, store.StatusFailedProxy); err != nil {
			return nil, err
		}
		return &Result{Status: store.StatusFailedProxy}, nil
	}

	if upstreamStatus < 200 || upstreamStatus > 299 {
		d.log.Warn("upstream returned error",
			zap.Int64("service_id", svc.ID),
			zap.String("tx_hash", txHash),
			zap.Int("status", upstreamStatus))
		if err := d.append(ctx, svc.ID, txHash, store.StatusFailedProxy); err != nil {
			return nil, err
		}
		return &Result{
			Status:         store.StatusFailedProxy,
			UpstreamStatus: upstreamStatus,
			UpstreamBody:   upstreamBody,
		}, nil
	}

	// The forward already happened; a ledger failure here is logged rather
	// than returned so the caller still receives the upstream response.
	if err := d.append(ctx, svc.ID, txHash, store.StatusSuccess); err != nil {
		d.log.Error("ledger append failed after forward",
			zap.Int64("service_id", svc.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err))
	}
	return &Result{
		Status:         store.StatusSuccess,
		UpstreamStatus: upstreamStatus,
		UpstreamBody:   upstreamBody,
	}, nil
}

func (d *Dispatcher) append(ctx context.Context, serviceID int64, txHash, status string) error {
	if _, err := d.store.AppendAttempt(ctx, serviceID, txHash, status); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (d *Dispatcher) forward(ctx context.Context, endpointURL string, payload json.RawMessage) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read upstream body: %w", err)
	}
	return resp.StatusCode, body, nil
}
