package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

type failedTradeInput struct {
	LeaderID       int64
	Trade          domain.LeaderTrade
	CopyRelationID int64
	AccountID      int64
	Side           domain.OrderSide
	Price          decimal.Decimal
	Size           decimal.Decimal
	Cause          error
	RetryCount     int
}

// recordFailedTrade audits a replication that failed after retry exhaustion
// and marks the leader trade processed with FAILED status so it is never
// retried. Both writes tolerate losing a uniqueness race to a concurrent
// duplicate delivery.
func recordFailedTrade(ctx context.Context, processed domain.ProcessedTradeStore, failed domain.FailedTradeStore, logger *slog.Logger, in failedTradeInput) {
	rec := domain.FailedTrade{
		LeaderID:       in.LeaderID,
		LeaderTradeID:  in.Trade.ID,
		TradeType:      in.Trade.Side,
		CopyRelationID: in.CopyRelationID,
		AccountID:      in.AccountID,
		MarketID:       in.Trade.MarketID,
		Side:           in.Side,
		Price:          in.Price.String(),
		Size:           in.Size.String(),
		ErrorMessage:   in.Cause.Error(),
		RetryCount:     in.RetryCount,
		FailedAt:       time.Now().UTC(),
	}
	if err := failed.Insert(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "recording failed trade",
			slog.String("trade_id", in.Trade.ID),
			slog.String("error", err.Error()),
		)
	}

	mark := domain.ProcessedTrade{
		LeaderID:      in.LeaderID,
		LeaderTradeID: in.Trade.ID,
		TradeType:     in.Trade.Side,
		Source:        domain.SourcePolling,
		Status:        domain.ProcessedFailed,
		ProcessedAt:   time.Now().UTC(),
	}
	if err := processed.Insert(ctx, mark); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		logger.ErrorContext(ctx, "marking trade failed",
			slog.String("trade_id", in.Trade.ID),
			slog.String("error", err.Error()),
		)
	}

	logger.WarnContext(ctx, "failed trade recorded",
		slog.Int64("leader_id", in.LeaderID),
		slog.String("trade_id", in.Trade.ID),
		slog.Int64("relation_id", in.CopyRelationID),
		slog.String("error", in.Cause.Error()),
	)
}

// openCredentials decrypts the account's trading credentials. A missing or
// undecryptable credential means the relation cannot trade: skip, not fatal.
func openCredentials(ctx context.Context, vault CredentialVault, account domain.Account, logger *slog.Logger) (Credential, string, bool) {
	if !account.Enabled {
		return Credential{}, "", false
	}
	if !account.HasCredentials() {
		logger.WarnContext(ctx, "account missing api credentials, skipping",
			slog.Int64("account_id", account.ID),
		)
		return Credential{}, "", false
	}

	privateKey, err := vault.Decrypt(account.PrivateKey)
	if err != nil {
		logger.WarnContext(ctx, "decrypting private key failed, skipping",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return Credential{}, "", false
	}
	apiSecret, err := vault.Decrypt(account.APISecret)
	if err != nil {
		logger.WarnContext(ctx, "decrypting api secret failed, skipping",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return Credential{}, "", false
	}
	passphrase, err := vault.Decrypt(account.APIPassphrase)
	if err != nil {
		logger.WarnContext(ctx, "decrypting api passphrase failed, skipping",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return Credential{}, "", false
	}

	cred := Credential{
		APIKey:        account.APIKey,
		APISecret:     apiSecret,
		APIPassphrase: passphrase,
		WalletAddress: account.WalletAddress,
	}
	return cred, privateKey, true
}
