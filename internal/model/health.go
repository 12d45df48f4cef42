package model

// EngineHealth is one engine's probe result.
type EngineHealth struct {
	Engine    string `json:"engine"`
	Status    string `json:"status"` // "healthy" or "unreachable"
	URL       string `json:"url"`
	LatencyMs int64  `json:"latencyMs"`
}

// HealthReport aggregates one probe cycle across all registered engines.
type HealthReport struct {
	Total        int            `json:"total"`
	Healthy      int            `json:"healthy"`
	Unhealthy    int            `json:"unhealthy"`
	Dependencies []EngineHealth `json:"dependencies"`
}

// Engine health statuses
const (
	EngineHealthy     = "healthy"
	EngineUnreachable = "unreachable"
)
