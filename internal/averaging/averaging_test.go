package averaging

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var tolerance = d("0.0000001")

func near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func TestBlend_Worked(t *testing.T) {
	r := Blend(Holding{Price: d("100"), Qty: d("1")}, d("80"), d("800"))

	if !r.NewQtyFromBuy.Equal(d("10")) {
		t.Errorf("new qty: got %s, want 10", r.NewQtyFromBuy)
	}
	if !r.TotalQty.Equal(d("11")) {
		t.Errorf("total qty: got %s, want 11", r.TotalQty)
	}
	if !r.TotalCost.Equal(d("900")) {
		t.Errorf("total cost: got %s, want 900", r.TotalCost)
	}
	if !near(r.NewAvgPrice, d("900").Div(d("11"))) {
		t.Errorf("new avg: got %s, want 81.8181...", r.NewAvgPrice)
	}
	if r.ReductionPct.Sub(d("18.181818")).Abs().GreaterThan(d("0.0001")) {
		t.Errorf("reduction: got %s, want ~18.18", r.ReductionPct)
	}
}

func TestBlend_NoPurchase(t *testing.T) {
	r := Blend(Holding{Price: d("100"), Qty: d("2")}, decimal.Zero, decimal.Zero)
	if !r.NewQtyFromBuy.IsZero() {
		t.Errorf("expected no new qty, got %s", r.NewQtyFromBuy)
	}
	if !r.NewAvgPrice.Equal(d("100")) {
		t.Errorf("avg should be unchanged, got %s", r.NewAvgPrice)
	}
	if !r.ReductionPct.IsZero() {
		t.Errorf("reduction should be 0, got %s", r.ReductionPct)
	}
}

func TestBlend_EmptyHolding(t *testing.T) {
	r := Blend(Holding{}, decimal.Zero, decimal.Zero)
	if !r.NewAvgPrice.IsZero() || !r.ReductionPct.IsZero() {
		t.Errorf("expected zeros, got avg=%s reduction=%s", r.NewAvgPrice, r.ReductionPct)
	}
}

func TestTarget_RoundTripsThroughBlend(t *testing.T) {
	h := Holding{Price: d("100"), Qty: d("1")}
	buy := Target(h, d("90"), d("1000"))
	if !buy.Valid {
		t.Fatal("expected a required price")
	}

	r := Blend(h, buy.Decimal, d("1000"))
	if !near(r.NewAvgPrice, d("90")) {
		t.Errorf("blending back should give 90, got %s (buy=%s)", r.NewAvgPrice, buy.Decimal)
	}
}

func TestTarget_Unreachable(t *testing.T) {
	h := Holding{Price: d("100"), Qty: d("10")}
	// (1000+100)/200 - 10 < 0: averaging up that far needs more than 100.
	if got := Target(h, d("200"), d("100")); got.Valid {
		t.Errorf("expected no result for unreachable target, got %s", got.Decimal)
	}
	if got := Target(h, decimal.Zero, d("100")); got.Valid {
		t.Error("expected no result for zero target")
	}
}

func TestEvaluate_TargetNeedsAllFields(t *testing.T) {
	res := Evaluate(Inputs{InitPrice: "100", InitQty: "1", TargetAvg: "90"})
	if res.RequiredPrice.Valid {
		t.Error("required price should be null without a planned investment")
	}

	res = Evaluate(Inputs{InitPrice: "100", InitQty: "1", NewPrice: "80", NewSpend: "800", TargetAvg: "90", PlanInvest: "1000"})
	if !res.RequiredPrice.Valid {
		t.Fatal("expected required price")
	}
	if !res.Blend.TotalQty.Equal(d("11")) {
		t.Errorf("blend should still be computed, got total qty %s", res.Blend.TotalQty)
	}
}

func TestEvaluate_UnparsedFieldsCountAsZero(t *testing.T) {
	res := Evaluate(Inputs{InitPrice: "abc", InitQty: "2", NewPrice: "50", NewSpend: "100"})
	if !res.Blend.TotalQty.Equal(d("4")) {
		t.Errorf("total qty: got %s, want 4", res.Blend.TotalQty)
	}
	if !res.Blend.NewAvgPrice.Equal(d("25")) {
		t.Errorf("avg: got %s, want 25", res.Blend.NewAvgPrice)
	}
}
