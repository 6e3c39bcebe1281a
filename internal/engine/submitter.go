package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

const (
	// submitAttempts is the total number of submission attempts (first try
	// plus one retry).
	submitAttempts = 2
	// defaultRetryBackoff is the wait between attempts.
	defaultRetryBackoff = time.Second
)

// SubmitRequest describes one copy order to sign and submit.
type SubmitRequest struct {
	TokenID      string
	Side         domain.OrderSide
	Price        decimal.Decimal
	Size         decimal.Decimal
	PrivateKey   string // decrypted signing key
	MakerAddress string // proxy wallet holding the funds
	Credential   Credential
}

// Submitter signs and submits orders to the exchange. Every attempt signs a
// fresh payload: the exchange binds a signature to its salt, so a stale
// signature cannot be resubmitted.
type Submitter struct {
	signer  OrderSigner
	poster  OrderPoster
	backoff time.Duration
	sleep   sleepFunc
	logger  *slog.Logger
}

// NewSubmitter creates a Submitter using the given signer and poster.
func NewSubmitter(signer OrderSigner, poster OrderPoster, logger *slog.Logger) *Submitter {
	return &Submitter{
		signer:  signer,
		poster:  poster,
		backoff: defaultRetryBackoff,
		sleep:   sleepCtx,
		logger:  logger.With(slog.String("component", "order_submitter")),
	}
}

// Submit places req as a fill-and-kill order. Partial fill is allowed and
// the unfilled remainder is cancelled immediately, which suits a
// latency-sensitive copy action. On attempt failure it waits the backoff,
// re-signs, and retries once; after that it returns the last error.
//
// The returned attempt count records how many submissions were made.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (orderID string, attempts int, err error) {
	var lastErr error

	for attempt := 1; attempt <= submitAttempts; attempt++ {
		attempts = attempt

		if attempt > 1 {
			if err := s.sleep(ctx, s.backoff); err != nil {
				return "", attempts, err
			}
		}

		signed, err := s.signer.SignOrder(req.PrivateKey, req.MakerAddress, req.TokenID, req.Side, req.Price, req.Size)
		if err != nil {
			lastErr = fmt.Errorf("engine: sign order: %w", err)
			s.logger.WarnContext(ctx, "order signing failed",
				slog.Int("attempt", attempt),
				slog.String("token_id", req.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}

		result, err := s.poster.PostOrder(ctx, signed, req.Credential, domain.OrderTypeFAK)
		if err != nil {
			lastErr = fmt.Errorf("engine: post order: %w", err)
			s.logger.WarnContext(ctx, "order submission failed, will re-sign",
				slog.Int("attempt", attempt),
				slog.String("token_id", req.TokenID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !result.Success || result.OrderID == "" {
			lastErr = fmt.Errorf("engine: order rejected: %s", result.Message)
			s.logger.WarnContext(ctx, "order rejected, will re-sign",
				slog.Int("attempt", attempt),
				slog.String("token_id", req.TokenID),
				slog.String("message", result.Message),
			)
			continue
		}

		return result.OrderID, attempts, nil
	}

	if lastErr == nil {
		lastErr = errors.New("engine: order submission failed")
	}
	return "", attempts, lastErr
}
