// Package engine implements the copy-trading core: trade-event dedup and
// dispatch, buy-side replication, FIFO sell matching with realized P&L
// accounting, and order submission with re-signed retries.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// Credential is the decrypted submission context for one account.
type Credential struct {
	APIKey        string
	APISecret     string
	APIPassphrase string
	WalletAddress string
}

// OrderSigner produces a signed CLOB order payload. Every call must generate
// a fresh salt; the exchange rejects a reused signature.
type OrderSigner interface {
	SignOrder(privateKeyHex, makerAddress, tokenID string, side domain.OrderSide, price, size decimal.Decimal) (domain.SignedOrder, error)
}

// OrderPoster submits a signed order to the exchange.
type OrderPoster interface {
	PostOrder(ctx context.Context, order domain.SignedOrder, cred Credential, orderType domain.OrderType) (domain.OrderResult, error)
}

// TokenResolver resolves the tradable outcome token for a market.
type TokenResolver interface {
	ResolveTokenID(ctx context.Context, marketID string, outcomeIndex int) (string, error)
}

// CredentialVault decrypts stored account secrets.
type CredentialVault interface {
	Decrypt(ciphertext string) (string, error)
}

// Notifier pushes operator notifications. Delivery failures must never
// block trade processing.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event types.
const (
	EventCopyExecuted = "copy_executed"
	EventCopyFailed   = "copy_failed"
	EventSellMatched  = "sell_matched"
)

// sleepFunc waits for d or until ctx is done. Injectable so tests run
// without real delays.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// matchKey is the serialization key for tracking mutations of one
// (relation, market, outcome) triple.
func matchKey(relationID int64, marketID string, outcomeIndex int) string {
	return fmt.Sprintf("copy:%d:%s:%d", relationID, marketID, outcomeIndex)
}

// acquireLock blocks until the lock is obtained or ctx is cancelled,
// polling past ErrLockHeld. LockManager implementations are non-blocking by
// contract, so contention is resolved here.
func acquireLock(ctx context.Context, lm domain.LockManager, key string, ttl time.Duration) (func(), error) {
	for {
		unlock, err := lm.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if err != domain.ErrLockHeld {
			return nil, err
		}
		if err := sleepCtx(ctx, 50*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

// startOfDayUTC returns midnight UTC of the day containing t. Daily risk
// windows are anchored to UTC.
func startOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
