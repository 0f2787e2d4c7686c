package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Alert statuses. Records are append-only; status is the only mutable
// column and moves active -> resolved exactly once.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

// AlertRecord captures one emitted alert. (entity_id, rule_id, fired_at)
// is unique: fired_at is the actual decision instant at full precision,
// never a rounded bucket, so replays de-duplicate without coordination.
type AlertRecord struct {
	ID        uuid.UUID
	EntityID  string
	RuleID    string
	FiredAt   time.Time
	Score     float64
	Band      string
	Message   string
	Payload   json.RawMessage
	Status    string
	CreatedAt time.Time
}

// ScoreHistoryEntry is one recorded point of an entity's score history,
// carrying the full snapshot alongside the computed score.
type ScoreHistoryEntry struct {
	EntityID   string
	ObservedAt time.Time
	Liquidity  decimal.Decimal
	Holders    int64
	FreshPct   float64
	SniperPct  float64
	InsiderPct float64
	Top10Pct   float64
	Score      float64
	CreatedAt  time.Time
}

// RuleFire identifies the most recent fire of a rule for an entity,
// used to seed gate debounce anchors on startup.
type RuleFire struct {
	EntityID string
	RuleID   string
	FiredAt  time.Time
}
