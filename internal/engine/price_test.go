package engine

import (
	"testing"

	"github.com/alanyoungcy/copybot/internal/domain"
)

func TestAdjustPrice_ZeroToleranceIsIdentity(t *testing.T) {
	got := AdjustPrice(dec("0.42"), dec("0"), domain.OrderSideBuy)
	if !got.Equal(dec("0.42")) {
		t.Fatalf("price=%s want=0.42", got)
	}
}

func TestAdjustPrice_BuyChasesUp(t *testing.T) {
	got := AdjustPrice(dec("0.50"), dec("10"), domain.OrderSideBuy)
	if !got.Equal(dec("0.55")) {
		t.Fatalf("price=%s want=0.55", got)
	}
}

func TestAdjustPrice_SellChasesDown(t *testing.T) {
	got := AdjustPrice(dec("0.50"), dec("10"), domain.OrderSideSell)
	if !got.Equal(dec("0.45")) {
		t.Fatalf("price=%s want=0.45", got)
	}
}

func TestAdjustPrice_BuyClampedAtCeiling(t *testing.T) {
	got := AdjustPrice(dec("0.95"), dec("10"), domain.OrderSideBuy)
	if !got.Equal(dec("0.99")) {
		t.Fatalf("price=%s want=0.99", got)
	}
}

func TestAdjustPrice_SellClampedAtFloor(t *testing.T) {
	got := AdjustPrice(dec("0.02"), dec("60"), domain.OrderSideSell)
	if !got.Equal(dec("0.01")) {
		t.Fatalf("price=%s want=0.01", got)
	}
}
