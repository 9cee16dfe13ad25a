package game

import (
	"errors"
	"fmt"

	"idleforge/internal/catalog"
	"idleforge/internal/effects"
	"idleforge/internal/ledger"
	"idleforge/internal/numeric"
	"idleforge/internal/production"

	"github.com/shopspring/decimal"
)

// inventory tracks owned producer counts and answers the production
// service's yield query.
type inventory struct {
	catalog *catalog.Catalog
	owned   map[string]int64
}

func newInventory(cat *catalog.Catalog) *inventory {
	return &inventory{catalog: cat, owned: map[string]int64{}}
}

func (i *inventory) ProducersFor(resourceID string) []production.Yield {
	var out []production.Yield
	for _, p := range i.catalog.Producers {
		if p.Yields != resourceID {
			continue
		}
		out = append(out, production.Yield{
			TargetSystem:    p.Category,
			ProducerID:      p.ID,
			BaseRatePerUnit: p.BaseRate,
			Owned:           i.owned[p.ID],
		})
	}
	return out
}

func (i *inventory) reset() {
	i.owned = map[string]int64{}
}

// unitCost prices the unit bought when owned are held, after cost reduction.
func (s *Session) unitCost(p catalog.Producer, owned int64) decimal.Decimal {
	factor := numeric.ClampZero(s.effects.Aggregate(p.Category, p.ID, effects.CostReduction))
	return p.Cost.At(owned).Mul(factor)
}

func (s *Session) BuyProducer(id string, qty int64) (PurchaseResult, error) {
	if err := ValidateQuantity(qty); err != nil {
		return PurchaseResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.catalog.Producer(id)
	if !ok {
		return PurchaseResult{}, fmt.Errorf("%w: %s", ErrUnknownProducer, id)
	}
	owned := s.inv.owned[id]
	total := numeric.Zero
	for k := int64(0); k < qty; k++ {
		total = total.Add(s.unitCost(p, owned+k))
	}
	if err := s.ledger.Spend(p.Cost.Resource, total, false); err != nil {
		return PurchaseResult{}, spendError(err, fmt.Sprintf("%s x%d costs %s %s", id, qty, numeric.Format(total), p.Cost.Resource))
	}
	s.inv.owned[id] = owned + qty
	if v, ok := s.ledger.Get(p.Yields); ok && !v.Unlocked {
		if err := s.ledger.Unlock(p.Yields); err == nil {
			s.log.Info("resource unlocked", "resource", p.Yields, "by", id)
		}
	}
	s.production.ProducerChanged(p.Category, id)

	s.log.Debug("producer bought", "producer", id, "qty", qty, "spent", total.String())
	return PurchaseResult{
		ProducerID:   id,
		Quantity:     qty,
		Owned:        s.inv.owned[id],
		Spent:        total,
		CostResource: p.Cost.Resource,
		NextCost:     s.unitCost(p, s.inv.owned[id]),
	}, nil
}

func (s *Session) Owned(producerID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.owned[producerID]
}

// spendError marks a failed spend as ErrInsufficientFunds only when the
// balance was short. Other ledger errors pass through unchanged.
func spendError(err error, what string) error {
	if errors.Is(err, ledger.ErrInsufficient) {
		return fmt.Errorf("%w: %s: %w", ErrInsufficientFunds, what, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
