package effects

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dec(s string) decimal.Decimal {
	return numeric.MustParse(s)
}

func key(module, source, system, target string, kind Kind) Key {
	return Key{Module: module, Source: source, Bucket: Bucket{System: system, Target: target, Kind: kind}}
}

func TestEmptyBucketsAreNeutral(t *testing.T) {
	r := newTestRegistry()
	tests := []struct {
		kind Kind
		want string
	}{
		{Multiplicative, "1"},
		{CostReduction, "1"},
		{Additive, "0"},
		{Percentage, "0"},
	}
	for _, tc := range tests {
		if got := r.Aggregate("producers", "minerA", tc.kind); !got.Equal(dec(tc.want)) {
			t.Fatalf("kind %s got=%s want=%s", tc.kind, got, tc.want)
		}
	}
}

func TestAggregateCombinesSpecificAndAll(t *testing.T) {
	r := newTestRegistry()
	if err := r.Register(key("achievements", "a1", "producers", All, Multiplicative), Const{Value: dec("1.10")}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(key("skills", "s1", "producers", "minerA", Multiplicative), Const{Value: dec("1.20")}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(dec("1.32")) {
		t.Fatalf("minerA got=%s want=1.32", got)
	}
	if got := r.Aggregate("producers", "minerB", Multiplicative); !got.Equal(dec("1.10")) {
		t.Fatalf("minerB got=%s want=1.10", got)
	}
	if got := r.Aggregate("producers", All, Multiplicative); !got.Equal(dec("1.10")) {
		t.Fatalf("all bucket must be read once, got=%s", got)
	}
	if got := r.Aggregate("other", "minerA", Multiplicative); !got.Equal(dec("1")) {
		t.Fatalf("other system leaked: %s", got)
	}
}

func TestAdditiveKindsSum(t *testing.T) {
	r := newTestRegistry()
	_ = r.Register(key("skills", "a", "manual", "gold", Percentage), Const{Value: dec("10")})
	_ = r.Register(key("market", "b", "manual", All, Percentage), Const{Value: dec("5")})
	_ = r.Register(key("skills", "c", "manual", "gold", Additive), Const{Value: dec("2")})
	if got := r.Aggregate("manual", "gold", Percentage); !got.Equal(dec("15")) {
		t.Fatalf("percentage got=%s want=15", got)
	}
	if got := r.Aggregate("manual", "gold", Additive); !got.Equal(dec("2")) {
		t.Fatalf("additive got=%s want=2", got)
	}
}

func TestReRegisterOverwrites(t *testing.T) {
	r := newTestRegistry()
	k := key("moduleX", "keyY", "global-production", All, Multiplicative)
	_ = r.Register(k, Const{Value: dec("1.05")})
	_ = r.Register(k, Const{Value: dec("1.08")})
	if got := r.Aggregate("global-production", All, Multiplicative); !got.Equal(dec("1.08")) {
		t.Fatalf("got=%s want=1.08", got)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one source, got %d", r.Len())
	}
}

func TestRegisterThenUnregisterRestores(t *testing.T) {
	r := newTestRegistry()
	_ = r.Register(key("base", "b", "producers", All, Multiplicative), Const{Value: dec("2")})
	before := r.Aggregate("producers", "minerA", Multiplicative)

	k := key("skills", "s", "producers", "minerA", Multiplicative)
	_ = r.Register(k, Const{Value: dec("3")})
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(dec("6")) {
		t.Fatalf("got=%s want=6", got)
	}
	if err := r.Unregister(k); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(before) {
		t.Fatalf("got=%s want=%s", got, before)
	}
	if _, ok := r.tree["producers"]["minerA"]; ok {
		t.Fatalf("empty bucket not pruned")
	}
	if err := r.Unregister(k); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry()
	bad := []Key{
		key("", "s", "sys", "t", Multiplicative),
		key("m", "", "sys", "t", Multiplicative),
		key("m", "s", "", "t", Multiplicative),
		key("m", "s", "sys", "", Multiplicative),
		key("m", "s", "sys", "t", ""),
	}
	for _, k := range bad {
		if err := r.Register(k, Const{Value: dec("1")}); !errors.Is(err, ErrInvalidSource) {
			t.Fatalf("expected ErrInvalidSource for %+v, got %v", k, err)
		}
	}
	if err := r.Register(key("m", "s", "sys", "t", Multiplicative), nil); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected nil valuer to fail, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("invalid registrations stored: %d", r.Len())
	}
}

func TestFaultySourceIsSkipped(t *testing.T) {
	r := newTestRegistry()
	_ = r.Register(key("ok", "a", "producers", "minerA", Multiplicative), Const{Value: dec("2")})
	_ = r.Register(key("broken", "err", "producers", "minerA", Multiplicative), ValueFunc(func() (decimal.Decimal, error) {
		return numeric.Zero, errors.New("boom")
	}))
	_ = r.Register(key("broken", "panic", "producers", All, Multiplicative), ValueFunc(func() (decimal.Decimal, error) {
		panic("nil skill table")
	}))
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(dec("2")) {
		t.Fatalf("got=%s want=2", got)
	}
}

func TestUnknownKindReturnsNeutral(t *testing.T) {
	r := newTestRegistry()
	_ = r.Register(key("m", "s", "producers", "minerA", Kind("exponential")), Const{Value: dec("9")})
	if got := r.Aggregate("producers", "minerA", Kind("exponential")); !got.Equal(dec("1")) {
		t.Fatalf("got=%s want=1", got)
	}
}

type levels map[string]int64

func (l levels) Level(id string) int64 { return l[id] }

func TestLevelScaledIsReadLive(t *testing.T) {
	r := newTestRegistry()
	lv := levels{"mining": 1}
	_ = r.Register(key("skills", "mining", "producers", All, Multiplicative), LevelScaled{
		Source: lv, ID: "mining", Base: dec("1"), PerLevel: dec("0.1"),
	})
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(dec("1.1")) {
		t.Fatalf("got=%s want=1.1", got)
	}
	lv["mining"] = 5
	if got := r.Aggregate("producers", "minerA", Multiplicative); !got.Equal(dec("1.5")) {
		t.Fatalf("got=%s want=1.5", got)
	}
}

func TestListenersSeeMutations(t *testing.T) {
	r := newTestRegistry()
	var seen []Bucket
	r.Subscribe(func(b Bucket) { seen = append(seen, b) })
	k := key("m", "s", "producers", "minerA", Multiplicative)
	_ = r.Register(k, Const{Value: dec("2")})
	_ = r.Unregister(k)
	if len(seen) != 2 || seen[0] != k.Bucket || seen[1] != k.Bucket {
		t.Fatalf("listener saw %+v", seen)
	}
}

func TestSourcesListing(t *testing.T) {
	r := newTestRegistry()
	_ = r.Register(key("skills", "b", "producers", "minerA", Multiplicative), Const{Value: dec("2")})
	_ = r.Register(key("achievements", "a", "global-production", All, Multiplicative), Const{Value: dec("1.5")})
	list := r.Sources()
	if len(list) != 2 {
		t.Fatalf("got %d sources", len(list))
	}
	if list[0].System != "global-production" || list[1].System != "producers" {
		t.Fatalf("unsorted listing: %+v", list)
	}
	if list[1].Value != "2" || list[1].Description != "const 2" {
		t.Fatalf("unexpected view: %+v", list[1])
	}
	if n := r.UnregisterModule("skills", ""); n != 1 || r.Len() != 1 {
		t.Fatalf("unregister module removed %d, left %d", n, r.Len())
	}
}
