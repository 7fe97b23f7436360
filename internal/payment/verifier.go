package payment

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"paygate/internal/chain"
)

// Rejection reasons surfaced in logs and metrics.
const (
	ReasonChainUnavailable = "chain_unavailable"
	ReasonNotMined         = "not_mined"
	ReasonUnconfirmed      = "unconfirmed"
	ReasonNotFound         = "not_found"
	ReasonRecipient        = "recipient_mismatch"
	ReasonAmount           = "amount_mismatch"
	ReasonBadAmount        = "invalid_expected_amount"
)

// Verifier decides whether a referenced transaction pays the expected
// recipient the exact expected amount. It never returns an error: a chain
// dependency failure is a rejection, so one flaky read cannot take down the
// gateway or corrupt ledger semantics.
type Verifier struct {
	reader   chain.Reader
	decimals int
	minConf  uint64
	timeout  time.Duration
	log      *zap.Logger
}

func NewVerifier(reader chain.Reader, decimals int, minConfirmations uint64, timeout time.Duration, log *zap.Logger) *Verifier {
	if minConfirmations == 0 {
		minConfirmations = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Verifier{
		reader:   reader,
		decimals: decimals,
		minConf:  minConfirmations,
		timeout:  timeout,
		log:      log,
	}
}

// Ping reports whether the underlying chain node is reachable.
func (v *Verifier) Ping(ctx context.Context) error {
	if checker, ok := v.reader.(chain.HealthChecker); ok {
		return checker.Ping(ctx)
	}
	return nil
}

// Verify checks, in order: the transaction is mined with enough
// confirmations, it exists and is not pending, the recipient matches
// case-insensitively, and the transferred value equals amount scaled to the
// smallest unit. The reason string is empty on acceptance.
func (v *Verifier) Verify(ctx context.Context, txHash, recipient, amount string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	want, err := ParseAmount(amount, v.decimals)
	if err != nil {
		v.log.Warn("unparseable expected amount", zap.String("amount", amount), zap.Error(err))
		return false, ReasonBadAmount
	}

	conf, err := v.reader.ConfirmationsByHash(ctx, txHash)
	if err != nil {
		v.log.Warn("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		return false, ReasonChainUnavailable
	}
	if conf == nil {
		return false, ReasonNotMined
	}
	if conf.Depth < v.minConf {
		v.log.Debug("insufficient confirmations",
			zap.String("tx_hash", txHash),
			zap.Uint64("depth", conf.Depth),
			zap.Uint64("required", v.minConf))
		return false, ReasonUnconfirmed
	}

	tx, err := v.reader.TransactionByHash(ctx, txHash)
	if err != nil {
		v.log.Warn("transaction lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		return false, ReasonChainUnavailable
	}
	if tx == nil || tx.Pending {
		return false, ReasonNotFound
	}

	if !strings.EqualFold(tx.Recipient, recipient) {
		v.log.Debug("recipient mismatch",
			zap.String("tx_hash", txHash),
			zap.String("got", tx.Recipient),
			zap.String("want", recipient))
		return false, ReasonRecipient
	}

	if tx.Value == nil || tx.Value.Cmp(want) != 0 {
		v.log.Debug("amount mismatch",
			zap.String("tx_hash", txHash),
			zap.Stringer("want", want))
		return false, ReasonAmount
	}

	return true, ""
}
