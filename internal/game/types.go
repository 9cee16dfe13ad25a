package game

import (
	"time"

	"idleforge/internal/effects"
	"idleforge/internal/ledger"

	"github.com/shopspring/decimal"
)

type StateView struct {
	Resources    []ledger.View     `json:"resources"`
	Producers    []ProducerView    `json:"producers"`
	Skills       []SkillView       `json:"skills"`
	Achievements []AchievementView `json:"achievements"`
	Upgrades     []UpgradeView     `json:"upgrades"`
	Prestige     PrestigeView      `json:"prestige"`
	Scheduler    SchedulerView     `json:"scheduler"`
}

type ProducerView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Yields       string          `json:"yields"`
	Owned        int64           `json:"owned"`
	CostResource string          `json:"cost_resource"`
	NextCost     decimal.Decimal `json:"next_cost"`
}

type SkillView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Level        int64           `json:"level"`
	MaxLevel     int64           `json:"max_level"`
	CostResource string          `json:"cost_resource"`
	NextCost     decimal.Decimal `json:"next_cost"`
}

type AchievementView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Unlocked bool   `json:"unlocked"`
}

type UpgradeView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Owned        bool            `json:"owned"`
	Permanent    bool            `json:"permanent"`
	CostResource string          `json:"cost_resource"`
	Cost         decimal.Decimal `json:"cost"`
}

type PrestigeView struct {
	Count     int64           `json:"count"`
	Points    decimal.Decimal `json:"points"`
	Available decimal.Decimal `json:"available"`
	Bonus     decimal.Decimal `json:"bonus"`
}

type SchedulerView struct {
	State    string        `json:"state"`
	Ticks    uint64        `json:"ticks"`
	Step     time.Duration `json:"step_ns"`
	PlayTime time.Duration `json:"play_time_ns"`
}

type PurchaseResult struct {
	ProducerID   string          `json:"producer_id"`
	Quantity     int64           `json:"quantity"`
	Owned        int64           `json:"owned"`
	Spent        decimal.Decimal `json:"spent"`
	CostResource string          `json:"cost_resource"`
	NextCost     decimal.Decimal `json:"next_cost"`
}

type SkillResult struct {
	SkillID string          `json:"skill_id"`
	Level   int64           `json:"level"`
	Spent   decimal.Decimal `json:"spent"`
}

type GainResult struct {
	ResourceID string          `json:"resource_id"`
	Gained     decimal.Decimal `json:"gained"`
	Amount     decimal.Decimal `json:"amount"`
}

type PrestigeResult struct {
	Gained decimal.Decimal `json:"gained"`
	Points decimal.Decimal `json:"points"`
	Count  int64           `json:"count"`
	Reset  []string        `json:"reset"`
}

type OfflineReport struct {
	Elapsed time.Duration              `json:"elapsed_ns"`
	Applied time.Duration              `json:"applied_ns"`
	Gains   map[string]decimal.Decimal `json:"gains"`
}

type AggregateView struct {
	effects.Bucket
	Value      decimal.Decimal `json:"value"`
	BucketOnly bool            `json:"bucket_only,omitempty"`
}
