package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a leader's trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Trade-event sources. The same leader trade can arrive via both the
// activity websocket and the polling fallback; the processed-trade ledger
// makes the duplicate delivery harmless.
const (
	SourceWebsocket = "websocket"
	SourcePolling   = "polling"
)

// LeaderTrade is one observed fill by a leader wallet, normalized from
// either feed.
type LeaderTrade struct {
	ID           string // exchange trade id, unique per leader
	MarketID     string // condition id of the market
	OutcomeIndex int    // index into the market's outcome tokens
	Side         TradeSide
	Price        decimal.Decimal
	Size         decimal.Decimal
	Timestamp    time.Time
}

// Leader is a wallet whose trades are observed and replicated.
type Leader struct {
	ID        int64
	Address   string
	Name      string
	Enabled   bool
	CreatedAt time.Time
}
