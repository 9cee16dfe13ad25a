// Package effects holds the registry of modifier sources contributed by game
// features and aggregates them per target.
package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	Multiplicative Kind = "multiplicative"
	Additive       Kind = "additive"
	Percentage     Kind = "percentage"
	CostReduction  Kind = "cost_reduction"
)

// All is the target id that applies to every entity in a target system.
const All = "*"

var (
	ErrInvalidSource = errors.New("invalid effect source")
	ErrNotRegistered = errors.New("effect source not registered")
)

// Bucket addresses every source sharing a target and a kind.
type Bucket struct {
	System string `json:"system"`
	Target string `json:"target"`
	Kind   Kind   `json:"kind"`
}

// Key identifies one source. Registering an existing key replaces it.
type Key struct {
	Module string `json:"module"`
	Source string `json:"source"`
	Bucket
}

func (k Key) validate() error {
	switch {
	case strings.TrimSpace(k.Module) == "":
		return fmt.Errorf("%w: module id is empty", ErrInvalidSource)
	case strings.TrimSpace(k.Source) == "":
		return fmt.Errorf("%w: source key is empty", ErrInvalidSource)
	case strings.TrimSpace(k.System) == "":
		return fmt.Errorf("%w: target system is empty", ErrInvalidSource)
	case strings.TrimSpace(k.Target) == "":
		return fmt.Errorf("%w: target id is empty", ErrInvalidSource)
	case strings.TrimSpace(string(k.Kind)) == "":
		return fmt.Errorf("%w: effect kind is empty", ErrInvalidSource)
	}
	return nil
}

type owner struct {
	module string
	source string
}

// Listener is told about every bucket whose membership changed.
type Listener func(Bucket)

type Registry struct {
	log *slog.Logger
	// system -> target -> kind -> owner -> valuer
	tree      map[string]map[string]map[Kind]map[owner]Valuer
	listeners []Listener
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:  logger,
		tree: make(map[string]map[string]map[Kind]map[owner]Valuer),
	}
}

func (r *Registry) Subscribe(fn Listener) {
	if fn != nil {
		r.listeners = append(r.listeners, fn)
	}
}

func (r *Registry) notify(b Bucket) {
	for _, fn := range r.listeners {
		fn(b)
	}
}

func (r *Registry) Register(key Key, v Valuer) error {
	if err := key.validate(); err != nil {
		r.log.Warn("effect register rejected", "module", key.Module, "source", key.Source, "err", err)
		return err
	}
	if v == nil {
		err := fmt.Errorf("%w: nil valuer", ErrInvalidSource)
		r.log.Warn("effect register rejected", "module", key.Module, "source", key.Source, "err", err)
		return err
	}
	targets, ok := r.tree[key.System]
	if !ok {
		targets = make(map[string]map[Kind]map[owner]Valuer)
		r.tree[key.System] = targets
	}
	kinds, ok := targets[key.Target]
	if !ok {
		kinds = make(map[Kind]map[owner]Valuer)
		targets[key.Target] = kinds
	}
	sources, ok := kinds[key.Kind]
	if !ok {
		sources = make(map[owner]Valuer)
		kinds[key.Kind] = sources
	}
	sources[owner{module: key.Module, source: key.Source}] = v
	r.notify(key.Bucket)
	return nil
}

// Touch tells listeners that a bucket's values changed without a
// registration change.
func (r *Registry) Touch(b Bucket) {
	r.notify(b)
}

func (r *Registry) Unregister(key Key) error {
	sources := r.tree[key.System][key.Target][key.Kind]
	o := owner{module: key.Module, source: key.Source}
	if _, ok := sources[o]; !ok {
		err := fmt.Errorf("%w: %s/%s on %s/%s/%s", ErrNotRegistered, key.Module, key.Source, key.System, key.Target, key.Kind)
		r.log.Warn("effect unregister rejected", "err", err)
		return err
	}
	delete(sources, o)
	if len(sources) == 0 {
		delete(r.tree[key.System][key.Target], key.Kind)
		if len(r.tree[key.System][key.Target]) == 0 {
			delete(r.tree[key.System], key.Target)
			if len(r.tree[key.System]) == 0 {
				delete(r.tree, key.System)
			}
		}
	}
	r.notify(key.Bucket)
	return nil
}

// UnregisterModule drops every source owned by module whose source key has
// the given prefix. It returns how many were removed.
func (r *Registry) UnregisterModule(module, prefix string) int {
	var doomed []Key
	for _, src := range r.Sources() {
		if src.Module == module && strings.HasPrefix(src.Source, prefix) {
			doomed = append(doomed, src.Key)
		}
	}
	for _, k := range doomed {
		_ = r.Unregister(k)
	}
	return len(doomed)
}

func (r *Registry) Has(key Key) bool {
	_, ok := r.tree[key.System][key.Target][key.Kind][owner{module: key.Module, source: key.Source}]
	return ok
}

func (r *Registry) Len() int {
	n := 0
	for _, targets := range r.tree {
		for _, kinds := range targets {
			for _, sources := range kinds {
				n += len(sources)
			}
		}
	}
	return n
}

// Neutral returns the identity of kind's composition rule and whether the
// kind is known.
func Neutral(kind Kind) (decimal.Decimal, bool) {
	switch kind {
	case Multiplicative, CostReduction:
		return numeric.One, true
	case Additive, Percentage:
		return numeric.Zero, true
	default:
		return numeric.One, false
	}
}

func compose(kind Kind, acc, v decimal.Decimal) decimal.Decimal {
	switch kind {
	case Multiplicative, CostReduction:
		return acc.Mul(v)
	default:
		return acc.Add(v)
	}
}

// Aggregate combines the bucket for target with the All bucket of the same
// system. Asking for All itself reads that bucket once.
func (r *Registry) Aggregate(system, target string, kind Kind) decimal.Decimal {
	acc, known := Neutral(kind)
	if !known {
		r.log.Warn("aggregate of unknown effect kind", "system", system, "target", target, "kind", string(kind))
		return acc
	}
	acc = r.fold(system, target, kind, acc)
	if target != All {
		acc = r.fold(system, All, kind, acc)
	}
	return acc
}

// AggregateBucket folds a single bucket without the All overlay.
func (r *Registry) AggregateBucket(b Bucket) decimal.Decimal {
	acc, known := Neutral(b.Kind)
	if !known {
		r.log.Warn("aggregate of unknown effect kind", "system", b.System, "target", b.Target, "kind", string(b.Kind))
		return acc
	}
	return r.fold(b.System, b.Target, b.Kind, acc)
}

func (r *Registry) fold(system, target string, kind Kind, acc decimal.Decimal) decimal.Decimal {
	for o, v := range r.tree[system][target][kind] {
		key := Key{Module: o.module, Source: o.source, Bucket: Bucket{System: system, Target: target, Kind: kind}}
		val, err := r.evaluate(v)
		if err != nil {
			r.log.Error("effect source skipped",
				"module", key.Module,
				"source", key.Source,
				"system", key.System,
				"target", key.Target,
				"kind", string(key.Kind),
				"err", err,
			)
			continue
		}
		acc = compose(kind, acc, val)
	}
	return acc
}

func (r *Registry) evaluate(v Valuer) (val decimal.Decimal, err error) {
	defer func() {
		if p := recover(); p != nil {
			val = numeric.Zero
			err = fmt.Errorf("valuer panicked: %v", p)
		}
	}()
	return v.CurrentValue()
}

// SourceView is a debugging view of one registered source.
type SourceView struct {
	Key
	Value       string `json:"value"`
	Error       string `json:"error,omitempty"`
	Description string `json:"description,omitempty"`
}

// Sources lists every registered source, sorted by system, target, kind,
// module and source key.
func (r *Registry) Sources() []SourceView {
	var out []SourceView
	for system, targets := range r.tree {
		for target, kinds := range targets {
			for kind, sources := range kinds {
				for o, v := range sources {
					view := SourceView{Key: Key{
						Module: o.module,
						Source: o.source,
						Bucket: Bucket{System: system, Target: target, Kind: kind},
					}}
					if val, err := r.evaluate(v); err != nil {
						view.Error = err.Error()
					} else {
						view.Value = val.String()
					}
					if d, ok := v.(Describer); ok {
						view.Description = d.Describe()
					}
					out = append(out, view)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.System != b.System {
			return a.System < b.System
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Source < b.Source
	})
	return out
}
