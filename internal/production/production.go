// Package production turns owned producers and registered effects into the
// per-second rates cached on the ledger.
//
// Rates are recomputed on demand. Registry mutations and producer changes
// mark the affected resources dirty and the next Rate or ResolveDirty call
// brings them up to date, so callers never have to remember to recompute.
package production

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"idleforge/internal/effects"
	"idleforge/internal/ledger"
	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

const (
	// GlobalResourceSystem scales every producer of one resource.
	GlobalResourceSystem = "global-resource-production"
	// GlobalSystem scales every resource.
	GlobalSystem = "global-production"
)

// Yield is one producer's contribution to a resource.
type Yield struct {
	TargetSystem    string
	ProducerID      string
	BaseRatePerUnit decimal.Decimal
	Owned           int64
}

// Producers is implemented by any module that owns producers.
type Producers interface {
	ProducersFor(resourceID string) []Yield
}

type Aggregator interface {
	Aggregate(system, target string, kind effects.Kind) decimal.Decimal
}

type RateBook interface {
	Has(id string) bool
	IDs() []string
	Rate(id string) decimal.Decimal
	SetProductionRate(id, contributor string, perSecond decimal.Decimal) error
	RemoveProductionSource(id, contributor string) error
	ProductionSources(id string) map[string]decimal.Decimal
}

type Service struct {
	log       *slog.Logger
	book      RateBook
	effects   Aggregator
	producers []Producers
	dirty     map[string]struct{}
}

func NewService(book RateBook, agg Aggregator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		log:     logger,
		book:    book,
		effects: agg,
		dirty:   make(map[string]struct{}),
	}
}

// AddProducers attaches a producer-owning collaborator and marks everything
// dirty.
func (s *Service) AddProducers(p Producers) {
	if p == nil {
		return
	}
	s.producers = append(s.producers, p)
	s.MarkAllDirty()
}

// ContributorKey is the production-source key written for a producer.
func ContributorKey(system, producerID string) string {
	return contributorPrefix + system + "/" + producerID
}

const contributorPrefix = "producer:"

func (s *Service) MarkDirty(resourceID string) {
	s.dirty[resourceID] = struct{}{}
}

func (s *Service) MarkAllDirty() {
	for _, id := range s.book.IDs() {
		s.dirty[id] = struct{}{}
	}
}

func (s *Service) IsDirty(resourceID string) bool {
	_, ok := s.dirty[resourceID]
	return ok
}

// OnEffectChange is an effects.Listener. Only multiplicative buckets feed
// production rates.
func (s *Service) OnEffectChange(b effects.Bucket) {
	if b.Kind != effects.Multiplicative {
		return
	}
	switch b.System {
	case GlobalSystem:
		s.MarkAllDirty()
	case GlobalResourceSystem:
		if b.Target == effects.All {
			s.MarkAllDirty()
			return
		}
		s.MarkDirty(b.Target)
	default:
		s.ProducerChanged(b.System, b.Target)
	}
}

// ProducerChanged marks every resource yielded by the producer dirty.
// producerID may be effects.All to match the whole system.
func (s *Service) ProducerChanged(system, producerID string) {
	for _, rid := range s.book.IDs() {
		for _, p := range s.producers {
			for _, y := range p.ProducersFor(rid) {
				if y.TargetSystem == system && (producerID == effects.All || y.ProducerID == producerID) {
					s.MarkDirty(rid)
				}
			}
		}
	}
}

// Rate returns the resource's production rate, recomputing it first if any
// input changed since the last computation.
func (s *Service) Rate(resourceID string) decimal.Decimal {
	if s.IsDirty(resourceID) {
		if err := s.Recompute(resourceID); err != nil {
			s.log.Warn("lazy recompute failed", "resource", resourceID, "err", err)
		}
	}
	return s.book.Rate(resourceID)
}

// ResolveDirty recomputes every dirty resource and returns how many were
// refreshed.
func (s *Service) ResolveDirty() int {
	if len(s.dirty) == 0 {
		return 0
	}
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := s.Recompute(id); err != nil {
			s.log.Warn("recompute failed", "resource", id, "err", err)
			delete(s.dirty, id)
		}
	}
	return len(ids)
}

type contribution struct {
	system     string
	producerID string
	owned      int64
	base       decimal.Decimal
	multiplier decimal.Decimal
}

// Contribution explains one producer's share of a rate.
type Contribution struct {
	TargetSystem string          `json:"target_system"`
	ProducerID   string          `json:"producer_id"`
	Owned        int64           `json:"owned"`
	BaseRate     decimal.Decimal `json:"base_rate"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Rate         decimal.Decimal `json:"rate"`
}

type Breakdown struct {
	ResourceID         string          `json:"resource_id"`
	Producers          []Contribution  `json:"producers"`
	ResourceMultiplier decimal.Decimal `json:"resource_multiplier"`
	GlobalMultiplier   decimal.Decimal `json:"global_multiplier"`
	Total              decimal.Decimal `json:"total"`
}

// Explain computes the rate of resourceID without writing it.
func (s *Service) Explain(resourceID string) (Breakdown, error) {
	if !s.book.Has(resourceID) {
		return Breakdown{}, fmt.Errorf("%w: %q", ledger.ErrUnknownResource, resourceID)
	}
	out := Breakdown{
		ResourceID:         resourceID,
		ResourceMultiplier: s.effects.Aggregate(GlobalResourceSystem, resourceID, effects.Multiplicative),
		GlobalMultiplier:   s.effects.Aggregate(GlobalSystem, effects.All, effects.Multiplicative),
		Total:              numeric.Zero,
	}

	merged := make(map[string]*contribution)
	var order []string
	for _, p := range s.producers {
		for _, y := range p.ProducersFor(resourceID) {
			if y.Owned <= 0 {
				continue
			}
			k := ContributorKey(y.TargetSystem, y.ProducerID)
			c, ok := merged[k]
			if !ok {
				c = &contribution{
					system:     y.TargetSystem,
					producerID: y.ProducerID,
					base:       numeric.Zero,
					multiplier: s.effects.Aggregate(y.TargetSystem, y.ProducerID, effects.Multiplicative),
				}
				merged[k] = c
				order = append(order, k)
			}
			c.owned += y.Owned
			c.base = c.base.Add(y.BaseRatePerUnit.Mul(numeric.FromInt(y.Owned)))
		}
	}
	sort.Strings(order)

	for _, k := range order {
		c := merged[k]
		rate := c.base.Mul(c.multiplier).Mul(out.ResourceMultiplier).Mul(out.GlobalMultiplier)
		out.Producers = append(out.Producers, Contribution{
			TargetSystem: c.system,
			ProducerID:   c.producerID,
			Owned:        c.owned,
			BaseRate:     c.base,
			Multiplier:   c.multiplier,
			Rate:         rate,
		})
		out.Total = out.Total.Add(rate)
	}
	return out, nil
}

// Recompute writes the production rate of resourceID into the ledger, one
// production source per producer, and drops sources of producers that no
// longer contribute.
func (s *Service) Recompute(resourceID string) error {
	b, err := s.Explain(resourceID)
	if err != nil {
		return err
	}
	next := make(map[string]struct{}, len(b.Producers))
	for _, c := range b.Producers {
		k := ContributorKey(c.TargetSystem, c.ProducerID)
		if err := s.book.SetProductionRate(resourceID, k, c.Rate); err != nil {
			return fmt.Errorf("write rate %s: %w", k, err)
		}
		next[k] = struct{}{}
	}
	for k := range s.book.ProductionSources(resourceID) {
		if _, ok := next[k]; ok || !strings.HasPrefix(k, contributorPrefix) {
			continue
		}
		if err := s.book.RemoveProductionSource(resourceID, k); err != nil {
			return fmt.Errorf("drop rate %s: %w", k, err)
		}
	}
	delete(s.dirty, resourceID)
	return nil
}
