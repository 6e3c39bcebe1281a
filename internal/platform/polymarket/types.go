package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/copybot/internal/domain"
)

// APIOrderResult is the CLOB response to an order submission.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// ToDomainOrderResult converts the API shape to the domain result.
func (r *APIOrderResult) ToDomainOrderResult() domain.OrderResult {
	msg := r.ErrorMsg
	if msg == "" {
		msg = r.Status
	}
	return domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Message: msg,
	}
}

// APIMarket is the Gamma API market shape, reduced to the fields the
// resolver needs. ClobTokenIDs arrives as a JSON string containing a JSON
// array, a Gamma quirk handled by TokenIDs.
type APIMarket struct {
	ID           string `json:"id"`
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	Slug         string `json:"slug"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
	ClobTokenIDs string `json:"clobTokenIds"`
}

// TokenIDs decodes the embedded clobTokenIds array.
func (m *APIMarket) TokenIDs() ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// APITrade is one trade row from the Data API /trades endpoint and, with
// the same field names, the payload of an activity websocket trade event.
type APITrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	ConditionID     string          `json:"conditionId"`
	OutcomeIndex    int             `json:"outcomeIndex"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	Timestamp       int64           `json:"timestamp"`
	TransactionHash string          `json:"transactionHash"`
}

// ToDomainTrade normalizes the API row into a LeaderTrade. The transaction
// hash is the trade identity; both the websocket and the polling feed carry
// it, which is what lets the processed-trade ledger collapse duplicate
// deliveries.
func (t *APITrade) ToDomainTrade() domain.LeaderTrade {
	return domain.LeaderTrade{
		ID:           t.TransactionHash,
		MarketID:     t.ConditionID,
		OutcomeIndex: t.OutcomeIndex,
		Side:         domain.TradeSide(strings.ToUpper(t.Side)),
		Price:        t.Price,
		Size:         t.Size,
		Timestamp:    time.Unix(t.Timestamp, 0).UTC(),
	}
}

// wsSubscription is one topic subscription on the real-time data websocket.
type wsSubscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// wsCommand is the subscribe/unsubscribe envelope.
type wsCommand struct {
	Action        string           `json:"action"`
	Subscriptions []wsSubscription `json:"subscriptions"`
}

// wsEnvelope is the outer shape of every message the real-time data
// websocket delivers.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
