package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"idleforge/internal/catalog"
	"idleforge/internal/effects"
	"idleforge/internal/ledger"
	"idleforge/internal/numeric"
	"idleforge/internal/production"
	"idleforge/internal/tick"

	"github.com/shopspring/decimal"
)

var ErrDuplicateIdempotency = errors.New("duplicate idempotency key")

const idempotencyWindow = 4096

type Options struct {
	Step       time.Duration
	OfflineCap time.Duration
	Logger     *slog.Logger
}

// Session is one game instance: a ledger, an effect registry, the
// production service, the scheduler and the feature state that feeds them.
// Every exported method takes the session lock.
type Session struct {
	mu  sync.Mutex
	log *slog.Logger

	catalog    *catalog.Catalog
	ledger     *ledger.Ledger
	effects    *effects.Registry
	production *production.Service
	scheduler  *tick.Scheduler

	inv          *inventory
	skills       skillLevels
	achievements map[string]bool
	upgrades     map[string]bool
	prestige     prestigeState
	conditions   []condition
	manualGains  int64

	offlineCap time.Duration
	revision   string
	idem       map[string]string
	idemOrder  []string
}

type prestigeState struct {
	count   int64
	points  decimal.Decimal
	claimed decimal.Decimal
}

func NewSession(cat *catalog.Catalog, opts Options) (*Session, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.OfflineCap <= 0 {
		opts.OfflineCap = DefaultOfflineCap
	}

	s := &Session{
		log:          logger,
		catalog:      cat,
		ledger:       ledger.New(logger.With("component", "ledger")),
		effects:      effects.NewRegistry(logger.With("component", "effects")),
		inv:          newInventory(cat),
		skills:       skillLevels{},
		achievements: map[string]bool{},
		upgrades:     map[string]bool{},
		prestige:     prestigeState{points: numeric.Zero, claimed: numeric.Zero},
		offlineCap:   opts.OfflineCap,
		idem:         map[string]string{},
	}
	for _, r := range cat.Resources {
		if err := s.ledger.Define(ledger.Definition{
			ID:                r.ID,
			Name:              r.Name,
			Initial:           r.Initial,
			Visible:           r.Visible,
			Unlocked:          r.Unlocked,
			AccruesProduction: r.Accrues,
			ResetsOnPrestige:  r.ResetsOnPrestige,
		}); err != nil {
			return nil, fmt.Errorf("define resource %q: %w", r.ID, err)
		}
	}

	s.production = production.NewService(s.ledger, s.effects, logger.With("component", "production"))
	s.production.AddProducers(s.inv)
	s.effects.Subscribe(s.production.OnEffectChange)

	sched, err := tick.New(opts.Step, s.accrue, logger.With("component", "tick"))
	if err != nil {
		return nil, err
	}
	s.scheduler = sched
	s.scheduler.OnLogic(s.evaluateConditions)
	return s, nil
}

func (s *Session) accrue(t tick.Tick) {
	s.production.ResolveDirty()
	s.ledger.AccrueAll(numeric.Seconds(t.Step))
}

func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// OnLogic and OnRender register extra per-tick handlers. Handlers run with
// the session lock held and must not call exported Session methods.
func (s *Session) OnLogic(h tick.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.OnLogic(h)
}

func (s *Session) OnRender(h tick.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.OnRender(h)
}

func (s *Session) StartScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Start()
}

func (s *Session) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Stop()
}

// Run drives the scheduler from a host ticker until ctx is done.
func (s *Session) Run(ctx context.Context, period time.Duration) {
	s.scheduler.Pump(ctx, period, &s.mu, nil)
}

// Advance feeds elapsed host time to the scheduler and returns how many
// ticks ran.
func (s *Session) Advance(elapsed time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler.Advance(elapsed)
}

// Simulate runs whole ticks covering d regardless of scheduler state.
func (s *Session) Simulate(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int(d / s.scheduler.Step())
	s.scheduler.RunTicks(n)
	return n
}

// ClaimIdempotency records key for action. A key seen before fails with
// ErrDuplicateIdempotency. Only the most recent keys are remembered.
func (s *Session) ClaimIdempotency(key, action string) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.idem[key]; ok {
		return fmt.Errorf("%w: %s already used for %s", ErrDuplicateIdempotency, key, prev)
	}
	s.idem[key] = action
	s.idemOrder = append(s.idemOrder, key)
	if len(s.idemOrder) > idempotencyWindow {
		delete(s.idem, s.idemOrder[0])
		s.idemOrder = s.idemOrder[1:]
	}
	return nil
}

// ReleaseIdempotency forgets key so a failed request can be retried.
func (s *Session) ReleaseIdempotency(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idem[key]; !ok {
		return
	}
	delete(s.idem, key)
	for i, k := range s.idemOrder {
		if k == key {
			s.idemOrder = append(s.idemOrder[:i], s.idemOrder[i+1:]...)
			break
		}
	}
}

func (s *Session) Resource(id string) (ledger.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ledger.Has(id) {
		return ledger.View{}, fmt.Errorf("%w: %s", ErrUnknownResource, id)
	}
	s.production.Rate(id)
	v, _ := s.ledger.Get(id)
	return v, nil
}

func (s *Session) State() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.production.ResolveDirty()

	out := StateView{
		Resources: s.ledger.All(),
		Prestige: PrestigeView{
			Count:     s.prestige.count,
			Points:    s.prestige.points,
			Available: s.availablePrestige(),
			Bonus:     s.prestigeBonus(),
		},
		Scheduler: SchedulerView{
			State:    s.scheduler.State().String(),
			Ticks:    s.scheduler.Ticks(),
			Step:     s.scheduler.Step(),
			PlayTime: s.scheduler.PlayTime(),
		},
	}
	for _, p := range s.catalog.Producers {
		out.Producers = append(out.Producers, ProducerView{
			ID:           p.ID,
			Name:         p.Name,
			Category:     p.Category,
			Yields:       p.Yields,
			Owned:        s.inv.owned[p.ID],
			CostResource: p.Cost.Resource,
			NextCost:     s.unitCost(p, s.inv.owned[p.ID]),
		})
	}
	for _, sk := range s.catalog.Skills {
		lvl := s.skills[sk.ID]
		v := SkillView{ID: sk.ID, Name: sk.Name, Level: lvl, MaxLevel: sk.MaxLevel, CostResource: sk.Cost.Resource}
		if lvl < sk.MaxLevel {
			v.NextCost = sk.Cost.At(lvl)
		}
		out.Skills = append(out.Skills, v)
	}
	for _, a := range s.catalog.Achievements {
		out.Achievements = append(out.Achievements, AchievementView{ID: a.ID, Name: a.Name, Unlocked: s.achievements[a.ID]})
	}
	for _, u := range s.catalog.Upgrades {
		out.Upgrades = append(out.Upgrades, UpgradeView{
			ID:           u.ID,
			Name:         u.Name,
			Owned:        s.upgrades[u.ID],
			Permanent:    u.Permanent,
			CostResource: u.Cost.Resource,
			Cost:         u.Cost.At(0),
		})
	}
	return out
}

func (s *Session) Effects() []effects.SourceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effects.Sources()
}

// Aggregate is the value production uses: the target's bucket combined with
// the system's All bucket. An empty target means All.
func (s *Session) Aggregate(system, target string, kind effects.Kind) AggregateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == "" {
		target = effects.All
	}
	b := effects.Bucket{System: system, Target: target, Kind: kind}
	return AggregateView{Bucket: b, Value: s.effects.Aggregate(system, target, kind)}
}

// AggregateBucket folds only the named bucket, without the All overlay.
func (s *Session) AggregateBucket(system, target string, kind effects.Kind) AggregateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == "" {
		target = effects.All
	}
	b := effects.Bucket{System: system, Target: target, Kind: kind}
	return AggregateView{Bucket: b, Value: s.effects.AggregateBucket(b), BucketOnly: true}
}

func (s *Session) Explain(resourceID string) (production.Breakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.production.Explain(resourceID)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
