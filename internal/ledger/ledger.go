// Package ledger owns the authoritative balance of every resource: its
// current amount, its lifetime total, and the per-contributor production
// breakdown whose sum is the cached production rate.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrInvalidID       = errors.New("resource id must not be empty")
	ErrNegativeDelta   = errors.New("amount must be >= 0")
	ErrLocked          = errors.New("resource is locked")
	ErrInsufficient    = errors.New("insufficient balance")
)

type Definition struct {
	ID                string
	Name              string
	Initial           decimal.Decimal
	Visible           bool
	Unlocked          bool
	AccruesProduction bool
	ResetsOnPrestige  bool
}

type resource struct {
	def         Definition
	amount      decimal.Decimal
	totalEarned decimal.Decimal
	sources     map[string]decimal.Decimal
	rate        decimal.Decimal
	unlocked    bool
	visible     bool
}

// View is a detached copy of one resource.
type View struct {
	ID                string                     `json:"id"`
	Name              string                     `json:"name"`
	Amount            decimal.Decimal            `json:"amount"`
	TotalEarned       decimal.Decimal            `json:"total_earned"`
	Rate              decimal.Decimal            `json:"rate"`
	Sources           map[string]decimal.Decimal `json:"sources"`
	Unlocked          bool                       `json:"unlocked"`
	Visible           bool                       `json:"visible"`
	AccruesProduction bool                       `json:"accrues_production"`
	ResetsOnPrestige  bool                       `json:"resets_on_prestige"`
}

type Ledger struct {
	log       *slog.Logger
	resources map[string]*resource
	order     []string
}

func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		log:       logger,
		resources: make(map[string]*resource),
	}
}

// Define creates a resource or reconfigures an existing one. Redefinition
// replaces the name and flags, including visible and unlocked, and never
// touches amount or total earned.
func (l *Ledger) Define(def Definition) error {
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		l.log.Warn("ledger define rejected", "err", ErrInvalidID)
		return ErrInvalidID
	}
	if def.Name == "" {
		def.Name = def.ID
	}
	def.Initial = numeric.ClampZero(def.Initial)

	if r, ok := l.resources[def.ID]; ok {
		r.def = def
		r.visible = def.Visible
		r.unlocked = def.Unlocked
		return nil
	}
	l.resources[def.ID] = &resource{
		def:         def,
		amount:      def.Initial,
		totalEarned: numeric.Zero,
		sources:     make(map[string]decimal.Decimal),
		rate:        numeric.Zero,
		unlocked:    def.Unlocked,
		visible:     def.Visible,
	}
	l.order = append(l.order, def.ID)
	return nil
}

func (l *Ledger) lookup(op, id string) (*resource, error) {
	r, ok := l.resources[id]
	if !ok {
		l.log.Warn("ledger "+op+" rejected", "resource", id, "err", ErrUnknownResource)
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, id)
	}
	return r, nil
}

func (l *Ledger) Has(id string) bool {
	_, ok := l.resources[id]
	return ok
}

// IDs returns resource ids in definition order.
func (l *Ledger) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func (l *Ledger) Get(id string) (View, bool) {
	r, ok := l.resources[id]
	if !ok {
		return View{}, false
	}
	return r.view(), true
}

func (l *Ledger) All() []View {
	out := make([]View, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.resources[id].view())
	}
	return out
}

func (r *resource) view() View {
	sources := make(map[string]decimal.Decimal, len(r.sources))
	for k, v := range r.sources {
		sources[k] = v
	}
	return View{
		ID:                r.def.ID,
		Name:              r.def.Name,
		Amount:            r.amount,
		TotalEarned:       r.totalEarned,
		Rate:              r.rate,
		Sources:           sources,
		Unlocked:          r.unlocked,
		Visible:           r.visible,
		AccruesProduction: r.def.AccruesProduction,
		ResetsOnPrestige:  r.def.ResetsOnPrestige,
	}
}

func (l *Ledger) Amount(id string) decimal.Decimal {
	if r, ok := l.resources[id]; ok {
		return r.amount
	}
	return numeric.Zero
}

func (l *Ledger) TotalEarned(id string) decimal.Decimal {
	if r, ok := l.resources[id]; ok {
		return r.totalEarned
	}
	return numeric.Zero
}

// Rate returns the cached total production per second.
func (l *Ledger) Rate(id string) decimal.Decimal {
	if r, ok := l.resources[id]; ok {
		return r.rate
	}
	return numeric.Zero
}

// Add credits delta to both amount and total earned.
func (l *Ledger) Add(id string, delta decimal.Decimal) error {
	r, err := l.lookup("add", id)
	if err != nil {
		return err
	}
	if delta.IsNegative() {
		l.log.Warn("ledger add rejected", "resource", id, "delta", delta.String(), "err", ErrNegativeDelta)
		return ErrNegativeDelta
	}
	if !r.unlocked {
		l.log.Warn("ledger add rejected", "resource", id, "err", ErrLocked)
		return fmt.Errorf("%w: %q", ErrLocked, id)
	}
	r.amount = r.amount.Add(delta)
	r.totalEarned = r.totalEarned.Add(delta)
	return nil
}

// Spend debits delta. Without allowNegative an insufficient balance fails
// and nothing changes.
func (l *Ledger) Spend(id string, delta decimal.Decimal, allowNegative bool) error {
	r, err := l.lookup("spend", id)
	if err != nil {
		return err
	}
	if delta.IsNegative() {
		l.log.Warn("ledger spend rejected", "resource", id, "delta", delta.String(), "err", ErrNegativeDelta)
		return ErrNegativeDelta
	}
	if !allowNegative && r.amount.LessThan(delta) {
		return fmt.Errorf("%w: %s needs %s, has %s", ErrInsufficient, id, delta.String(), r.amount.String())
	}
	next := r.amount.Sub(delta)
	if !allowNegative {
		next = numeric.ClampZero(next)
	}
	r.amount = next
	return nil
}

// CanAfford reports whether amount >= cost.
func (l *Ledger) CanAfford(id string, cost decimal.Decimal) bool {
	r, ok := l.resources[id]
	return ok && r.amount.GreaterThanOrEqual(cost)
}

// SetAmount overwrites the balance. Total earned is left alone.
func (l *Ledger) SetAmount(id string, value decimal.Decimal) error {
	r, err := l.lookup("set", id)
	if err != nil {
		return err
	}
	r.amount = numeric.ClampZero(value)
	return nil
}

func (l *Ledger) SetProductionRate(id, contributor string, perSecond decimal.Decimal) error {
	r, err := l.lookup("set rate", id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(contributor) == "" {
		l.log.Warn("ledger set rate rejected", "resource", id, "err", "empty contributor key")
		return fmt.Errorf("contributor key must not be empty")
	}
	r.sources[contributor] = perSecond
	r.recomputeRate()
	return nil
}

func (l *Ledger) RemoveProductionSource(id, contributor string) error {
	r, err := l.lookup("remove rate", id)
	if err != nil {
		return err
	}
	delete(r.sources, contributor)
	r.recomputeRate()
	return nil
}

func (l *Ledger) ProductionSources(id string) map[string]decimal.Decimal {
	r, ok := l.resources[id]
	if !ok {
		return nil
	}
	return r.view().Sources
}

func (r *resource) recomputeRate() {
	total := numeric.Zero
	for _, v := range r.sources {
		total = total.Add(v)
	}
	r.rate = total
}

// Accrue credits rate * seconds through Add, so accrual counts as earned.
func (l *Ledger) Accrue(id string, seconds decimal.Decimal) error {
	r, err := l.lookup("accrue", id)
	if err != nil {
		return err
	}
	if !r.def.AccruesProduction || !r.unlocked || r.rate.IsZero() {
		return nil
	}
	return l.Add(id, r.rate.Mul(seconds))
}

// AccrueAll runs Accrue for every resource in definition order. A failure on
// one resource is logged and does not stop the others.
func (l *Ledger) AccrueAll(seconds decimal.Decimal) {
	for _, id := range l.order {
		if err := l.Accrue(id, seconds); err != nil {
			l.log.Warn("accrual skipped", "resource", id, "err", err)
		}
	}
}

func (l *Ledger) Unlock(id string) error {
	r, err := l.lookup("unlock", id)
	if err != nil {
		return err
	}
	r.unlocked = true
	r.visible = true
	return nil
}

func (l *Ledger) SetVisible(id string, visible bool) error {
	r, err := l.lookup("visibility", id)
	if err != nil {
		return err
	}
	r.visible = visible
	return nil
}

// ResetForPrestige zeroes amount and production sources of every resource
// flagged to reset. Total earned survives.
func (l *Ledger) ResetForPrestige() []string {
	var reset []string
	for _, id := range l.order {
		r := l.resources[id]
		if !r.def.ResetsOnPrestige {
			continue
		}
		r.amount = numeric.Zero
		r.sources = make(map[string]decimal.Decimal)
		r.rate = numeric.Zero
		reset = append(reset, id)
	}
	return reset
}

// ResetAll returns every resource to its definition defaults, including
// total earned.
func (l *Ledger) ResetAll() {
	for _, id := range l.order {
		r := l.resources[id]
		r.amount = r.def.Initial
		r.totalEarned = numeric.Zero
		r.sources = make(map[string]decimal.Decimal)
		r.rate = numeric.Zero
		r.unlocked = r.def.Unlocked
		r.visible = r.def.Visible
	}
}

// Snapshot is the persisted form of one resource. Decimals are strings so
// magnitude and precision survive JSON.
type Snapshot struct {
	Amount            string            `json:"amount"`
	TotalEarned       string            `json:"totalEarned"`
	ProductionSources map[string]string `json:"productionSources"`
	Unlocked          bool              `json:"unlocked"`
	Visible           bool              `json:"visible"`
}

func (l *Ledger) Snapshot() map[string]Snapshot {
	out := make(map[string]Snapshot, len(l.order))
	for _, id := range l.order {
		r := l.resources[id]
		sources := make(map[string]string, len(r.sources))
		for k, v := range r.sources {
			sources[k] = v.String()
		}
		out[id] = Snapshot{
			Amount:            r.amount.String(),
			TotalEarned:       r.totalEarned.String(),
			ProductionSources: sources,
			Unlocked:          r.unlocked,
			Visible:           r.visible,
		}
	}
	return out
}

type restored struct {
	amount, totalEarned decimal.Decimal
	sources             map[string]decimal.Decimal
	unlocked, visible   bool
}

// Restore replaces ledger state from snapshots. Every value is parsed before
// anything is applied: on error the ledger is untouched. Snapshot entries for
// undefined resources are ignored; defined resources missing from the
// snapshot keep their current state.
func (l *Ledger) Restore(snaps map[string]Snapshot) error {
	ids := make([]string, 0, len(snaps))
	for id := range snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parsed := make(map[string]restored, len(snaps))
	for _, id := range ids {
		snap := snaps[id]
		if _, ok := l.resources[id]; !ok {
			l.log.Warn("snapshot references undefined resource", "resource", id)
			continue
		}
		amount, err := numeric.Parse(snap.Amount)
		if err != nil {
			return fmt.Errorf("resource %s amount: %w", id, err)
		}
		earned, err := numeric.Parse(snap.TotalEarned)
		if err != nil {
			return fmt.Errorf("resource %s totalEarned: %w", id, err)
		}
		if earned.IsNegative() {
			return fmt.Errorf("resource %s totalEarned: %w", id, ErrNegativeDelta)
		}
		sources := make(map[string]decimal.Decimal, len(snap.ProductionSources))
		for key, raw := range snap.ProductionSources {
			v, err := numeric.Parse(raw)
			if err != nil {
				return fmt.Errorf("resource %s source %s: %w", id, key, err)
			}
			sources[key] = v
		}
		parsed[id] = restored{
			amount:      amount,
			totalEarned: earned,
			sources:     sources,
			unlocked:    snap.Unlocked,
			visible:     snap.Visible,
		}
	}

	for id, p := range parsed {
		r := l.resources[id]
		r.amount = p.amount
		r.totalEarned = p.totalEarned
		r.sources = p.sources
		r.unlocked = p.unlocked
		r.visible = p.visible
		r.recomputeRate()
	}
	return nil
}
