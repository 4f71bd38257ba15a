// Package store implements the gateway's embedded persistence layer:
// a single SQLite database file holding connections, cost configs,
// the global budget default, append-only request/api_call logs, and
// alerts. It is the single transactional gateway every mutator in the
// process goes through.
package store

import "time"

// Connection is one configured instance of a provider family.
type Connection struct {
	ID                  string
	Name                string
	ServiceKey          string // "openai", "anthropic", "local", "github", "custom"
	Category            string
	BaseURL             string
	APIKeyEnc           string
	TokenEnc            string
	CredFilePathEnc     string
	Enabled             bool
	DailyLimitUSD       float64
	WeeklyLimitUSD      float64
	MonthlyLimitUSD     float64
	BudgetOverrideUntil *time.Time
	IsDefault           bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CostConfig carries per-million-token pricing for a (connection, model
// pattern) pair. ConnectionID == "" marks a legacy/global row.
type CostConfig struct {
	ID                  string    `json:"id"`
	ConnectionID        string    `json:"connection_id"`
	ModelPattern        string    `json:"model_pattern"`
	InputUSDPerMillion  float64   `json:"input_usd_per_million"`
	OutputUSDPerMillion float64   `json:"output_usd_per_million"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// BudgetLimit is the singleton global default row.
type BudgetLimit struct {
	DailyLimitUSD   float64   `json:"daily_limit_usd"`
	WeeklyLimitUSD  float64   `json:"weekly_limit_usd"`
	MonthlyLimitUSD float64   `json:"monthly_limit_usd"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Request is an append-only row for every completed LLM call.
type Request struct {
	ID               string
	CreatedAt        time.Time
	Model            string
	Provider         string
	ConnectionID     string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	LatencyMS        int64
	Success          bool
	Error            string
	WorkflowName     string
}

// ApiCall is an append-only row for every completed non-LLM upstream call.
type ApiCall struct {
	ID           string
	CreatedAt    time.Time
	ServiceKey   string
	Operation    string
	Endpoint     string
	Method       string
	StatusCode   int
	LatencyMS    int64
	CostUSD      float64
	MetadataJSON string
	Success      bool
	Error        string
}

// AlertKind enumerates the alert conditions the health monitor evaluates.
type AlertKind string

const (
	AlertConsecutiveErrors AlertKind = "consecutive-errors"
	AlertLatencySpike      AlertKind = "latency-spike"
	AlertBudgetThreshold   AlertKind = "budget-threshold"
)

// Alert is a raised condition, deduplicated by (connection_id, kind).
type Alert struct {
	ID           string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	DismissedAt  *time.Time
	ConnectionID string
	Kind         AlertKind
	Severity     string
	Message      string
	MetadataJSON string
}

// Window is one of the rolling budget/spend windows the dashboard and
// budget enforcer evaluate spend against.
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
)

func (w Window) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
