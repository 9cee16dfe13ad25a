package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return numeric.MustParse(s)
}

func newGoldLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(quietLogger())
	if err := l.Define(Definition{
		ID:                "gold",
		Name:              "Gold",
		Visible:           true,
		Unlocked:          true,
		AccruesProduction: true,
		ResetsOnPrestige:  true,
	}); err != nil {
		t.Fatalf("define: %v", err)
	}
	return l
}

func assertRateMatchesSources(t *testing.T, l *Ledger, id string) {
	t.Helper()
	sum := numeric.Zero
	for _, v := range l.ProductionSources(id) {
		sum = sum.Add(v)
	}
	if !l.Rate(id).Equal(sum) {
		t.Fatalf("rate %s != sum of sources %s", l.Rate(id), sum)
	}
}

func TestProductionScenario(t *testing.T) {
	l := newGoldLedger(t)
	if err := l.SetProductionRate("gold", "minerA", dec("5")); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := l.SetProductionRate("gold", "minerB", dec("3")); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if got := l.Rate("gold"); !got.Equal(dec("8")) {
		t.Fatalf("rate got=%s want=8", got)
	}
	assertRateMatchesSources(t, l, "gold")

	if err := l.Accrue("gold", dec("2")); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if got := l.Amount("gold"); !got.Equal(dec("16")) {
		t.Fatalf("amount got=%s want=16", got)
	}
	if got := l.TotalEarned("gold"); !got.Equal(dec("16")) {
		t.Fatalf("total earned got=%s want=16", got)
	}
}

func TestSetProductionRateUpserts(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.SetProductionRate("gold", "minerA", dec("5"))
	_ = l.SetProductionRate("gold", "minerA", dec("2.5"))
	_ = l.SetProductionRate("gold", "minerB", dec("1"))
	if got := l.Rate("gold"); !got.Equal(dec("3.5")) {
		t.Fatalf("rate got=%s want=3.5", got)
	}
	_ = l.RemoveProductionSource("gold", "minerA")
	if got := l.Rate("gold"); !got.Equal(dec("1")) {
		t.Fatalf("rate got=%s want=1", got)
	}
	assertRateMatchesSources(t, l, "gold")
}

func TestAddRejectsNegativeAndUnknown(t *testing.T) {
	l := newGoldLedger(t)
	if err := l.Add("gold", dec("10")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := l.Add("gold", dec("-1")); !errors.Is(err, ErrNegativeDelta) {
		t.Fatalf("expected ErrNegativeDelta, got %v", err)
	}
	if err := l.Add("silver", dec("1")); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
	if got := l.Amount("gold"); !got.Equal(dec("10")) {
		t.Fatalf("amount got=%s want=10", got)
	}
	if got := l.TotalEarned("gold"); !got.Equal(dec("10")) {
		t.Fatalf("total earned got=%s want=10", got)
	}
}

func TestAddRejectsLocked(t *testing.T) {
	l := New(quietLogger())
	_ = l.Define(Definition{ID: "gems", AccruesProduction: true})
	if err := l.Add("gems", dec("1")); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	_ = l.Unlock("gems")
	if err := l.Add("gems", dec("1")); err != nil {
		t.Fatalf("add after unlock: %v", err)
	}
}

func TestSpend(t *testing.T) {
	tests := []struct {
		name          string
		spend         string
		allowNegative bool
		wantErr       error
		wantAmount    string
	}{
		{name: "sufficient", spend: "4", wantAmount: "6"},
		{name: "exact", spend: "10", wantAmount: "0"},
		{name: "insufficient", spend: "11", wantErr: ErrInsufficient, wantAmount: "10"},
		{name: "negative allowed", spend: "15", allowNegative: true, wantAmount: "-5"},
		{name: "negative delta", spend: "-1", wantErr: ErrNegativeDelta, wantAmount: "10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newGoldLedger(t)
			_ = l.Add("gold", dec("10"))
			err := l.Spend("gold", dec(tc.spend), tc.allowNegative)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := l.Amount("gold"); !got.Equal(dec(tc.wantAmount)) {
				t.Fatalf("amount got=%s want=%s", got, tc.wantAmount)
			}
			if got := l.TotalEarned("gold"); !got.Equal(dec("10")) {
				t.Fatalf("spend must not touch total earned, got %s", got)
			}
		})
	}
}

func TestSetAmountDoesNotCountAsEarned(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Add("gold", dec("3"))
	if err := l.SetAmount("gold", dec("500")); err != nil {
		t.Fatalf("set amount: %v", err)
	}
	if got := l.TotalEarned("gold"); !got.Equal(dec("3")) {
		t.Fatalf("total earned got=%s want=3", got)
	}
	_ = l.SetAmount("gold", dec("-7"))
	if got := l.Amount("gold"); !got.IsZero() {
		t.Fatalf("set amount must clamp to zero, got %s", got)
	}
}

func TestRedefinePreservesBalances(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Add("gold", dec("42"))
	if err := l.Define(Definition{ID: "gold", Name: "Shiny Gold", Initial: dec("1000"), Unlocked: true}); err != nil {
		t.Fatalf("redefine: %v", err)
	}
	v, _ := l.Get("gold")
	if v.Name != "Shiny Gold" {
		t.Fatalf("name not updated: %q", v.Name)
	}
	if !v.Amount.Equal(dec("42")) || !v.TotalEarned.Equal(dec("42")) {
		t.Fatalf("redefinition reset balances: amount=%s earned=%s", v.Amount, v.TotalEarned)
	}
	if len(l.IDs()) != 1 {
		t.Fatalf("redefinition duplicated resource: %v", l.IDs())
	}
}

func TestRedefineUpdatesFlags(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Add("gold", dec("5"))
	if err := l.Define(Definition{ID: "gold", Visible: false, Unlocked: false}); err != nil {
		t.Fatalf("redefine: %v", err)
	}
	v, _ := l.Get("gold")
	if v.Visible || v.Unlocked {
		t.Fatalf("flags not updated: visible=%v unlocked=%v", v.Visible, v.Unlocked)
	}
	if err := l.Add("gold", dec("1")); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked after redefinition, got %v", err)
	}
	if !v.Amount.Equal(dec("5")) {
		t.Fatalf("amount changed on redefinition: %s", v.Amount)
	}
}

func TestResetForPrestige(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Define(Definition{ID: "souls", Unlocked: true})
	_ = l.Add("gold", dec("100"))
	_ = l.Add("souls", dec("2"))
	_ = l.SetProductionRate("gold", "minerA", dec("5"))

	reset := l.ResetForPrestige()
	if len(reset) != 1 || reset[0] != "gold" {
		t.Fatalf("reset list got %v", reset)
	}
	if !l.Amount("gold").IsZero() || !l.Rate("gold").IsZero() || len(l.ProductionSources("gold")) != 0 {
		t.Fatalf("gold not reset")
	}
	if got := l.TotalEarned("gold"); !got.Equal(dec("100")) {
		t.Fatalf("total earned must survive prestige, got %s", got)
	}
	if got := l.Amount("souls"); !got.Equal(dec("2")) {
		t.Fatalf("non-resetting resource changed: %s", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Add("gold", dec("123456789012345678901234567890.125"))
	_ = l.SetProductionRate("gold", "minerA", dec("0.3333333333333333"))
	_ = l.SetProductionRate("gold", "minerB", dec("7"))

	raw, err := json.Marshal(l.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	fresh := newGoldLedger(t)
	var snaps map[string]Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := fresh.Restore(snaps); err != nil {
		t.Fatalf("restore: %v", err)
	}
	before, _ := l.Get("gold")
	after, _ := fresh.Get("gold")
	if !before.Amount.Equal(after.Amount) || !before.TotalEarned.Equal(after.TotalEarned) || !before.Rate.Equal(after.Rate) {
		t.Fatalf("round trip mismatch: before=%+v after=%+v", before, after)
	}
	for k, v := range before.Sources {
		if !after.Sources[k].Equal(v) {
			t.Fatalf("source %s mismatch: %s vs %s", k, v, after.Sources[k])
		}
	}
}

func TestRestoreIsAllOrNothing(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Add("gold", dec("5"))
	err := l.Restore(map[string]Snapshot{
		"gold": {Amount: "9", TotalEarned: "not-a-number"},
	})
	if err == nil {
		t.Fatalf("expected corrupt snapshot to fail")
	}
	if got := l.Amount("gold"); !got.Equal(dec("5")) {
		t.Fatalf("failed restore mutated state: %s", got)
	}
}

func TestAccrueAllSkipsNonAccruing(t *testing.T) {
	l := newGoldLedger(t)
	_ = l.Define(Definition{ID: "gems", Unlocked: true})
	_ = l.SetProductionRate("gold", "p", dec("2"))
	_ = l.SetProductionRate("gems", "p", dec("2"))
	l.AccrueAll(dec("0.5"))
	if got := l.Amount("gold"); !got.Equal(dec("1")) {
		t.Fatalf("gold got=%s want=1", got)
	}
	if got := l.Amount("gems"); !got.IsZero() {
		t.Fatalf("gems must not accrue, got %s", got)
	}
}

func TestResetAll(t *testing.T) {
	l := New(quietLogger())
	_ = l.Define(Definition{ID: "gold", Initial: dec("10"), Unlocked: true})
	_ = l.Add("gold", dec("5"))
	_ = l.SetProductionRate("gold", "p", dec("1"))
	l.ResetAll()
	v, _ := l.Get("gold")
	if !v.Amount.Equal(dec("10")) || !v.TotalEarned.IsZero() || !v.Rate.IsZero() {
		t.Fatalf("reset all got %+v", v)
	}
}
