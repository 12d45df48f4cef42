package model

// QueryRequest is the inbound payload for the grounded query flow.
type QueryRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	TopK      int    `json:"topK,omitempty"`
}

// Source is one retrieved context passage backing a grounded answer.
type Source struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
}

// QueryResponse is the composed result of the grounded query flow.
// Degraded lists the names of non-critical steps that failed; an empty
// slice means the response is complete.
type QueryResponse struct {
	Answer           string         `json:"answer"`
	Intent           string         `json:"intent"`
	IntentConfidence float64        `json:"intentConfidence,omitempty"`
	Sources          []Source       `json:"sources"`
	Trust            map[string]any `json:"trust,omitempty"`
	Safety           map[string]any `json:"safety,omitempty"`
	Degraded         []string       `json:"degraded"`
	LatencyMs        float64        `json:"latencyMs"`
}

// OnboardRequest carries registration plus optional profile enrichment
// attributes (income, occupation, category, and so on) which are
// normalized downstream.
type OnboardRequest struct {
	Phone              string         `json:"phone"`
	Password           string         `json:"password"`
	Name               string         `json:"name"`
	State              string         `json:"state,omitempty"`
	District           string         `json:"district,omitempty"`
	LanguagePreference string         `json:"languagePreference,omitempty"`
	ConsentData        bool           `json:"consentDataProcessing"`
	Profile            map[string]any `json:"profile,omitempty"`
}

// OnboardResponse is the composed onboarding result. Only registration
// is critical; everything else may appear in Degraded.
type OnboardResponse struct {
	UserID             string         `json:"userId"`
	AccessToken        string         `json:"accessToken"`
	RefreshToken       string         `json:"refreshToken,omitempty"`
	IdentityToken      string         `json:"identityToken,omitempty"`
	EligibilityResults map[string]any `json:"eligibilityResults,omitempty"`
	UpcomingDeadlines  map[string]any `json:"upcomingDeadlines,omitempty"`
	Degraded           []string       `json:"degraded"`
	LatencyMs          float64        `json:"latencyMs"`
}

// EligibilityRequest asks for a deterministic eligibility evaluation,
// optionally followed by an AI-generated explanation.
type EligibilityRequest struct {
	UserID    string         `json:"userId"`
	Profile   map[string]any `json:"profile"`
	SchemeIDs []string       `json:"schemeIds,omitempty"`
	Explain   bool           `json:"explain,omitempty"`
}

// EligibilityResponse carries the verdicts plus the optional explanation.
type EligibilityResponse struct {
	Results     []map[string]any `json:"results"`
	Summary     map[string]any   `json:"summary,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Degraded    []string         `json:"degraded"`
	LatencyMs   float64          `json:"latencyMs"`
}

// IngestPolicyRequest feeds the policy ingestion pipeline either a URL
// to fetch or raw text.
type IngestPolicyRequest struct {
	URL        string         `json:"url,omitempty"`
	RawText    string         `json:"rawText,omitempty"`
	SourceMeta map[string]any `json:"sourceMeta,omitempty"`
}

// IngestPolicyResponse reports the pipeline outcome. Ingestion has no
// degraded semantics: every stage is critical, so a response is only
// returned when all stages succeeded.
type IngestPolicyResponse struct {
	DocumentID string  `json:"documentId"`
	PolicyID   string  `json:"policyId,omitempty"`
	Title      string  `json:"title,omitempty"`
	ChunkCount int     `json:"chunkCount"`
	Indexed    bool    `json:"indexed"`
	LatencyMs  float64 `json:"latencyMs"`
}

// VoiceQueryRequest accepts pre-transcribed text (or a reference to an
// already uploaded audio clip) plus the caller's language.
type VoiceQueryRequest struct {
	Text     string `json:"text,omitempty"`
	AudioRef string `json:"audioRef,omitempty"`
	Language string `json:"language,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// VoiceQueryResponse is the composed voice flow result.
type VoiceQueryResponse struct {
	Transcript string   `json:"transcript,omitempty"`
	Answer     string   `json:"answer"`
	Intent     string   `json:"intent"`
	Language   string   `json:"language,omitempty"`
	AudioRef   string   `json:"audioRef,omitempty"`
	Degraded   []string `json:"degraded"`
	LatencyMs  float64  `json:"latencyMs"`
}

// SimulateRequest runs a deterministic what-if evaluation over a profile
// with a set of hypothetical changes applied.
type SimulateRequest struct {
	UserID         string         `json:"userId"`
	CurrentProfile map[string]any `json:"currentProfile"`
	Changes        map[string]any `json:"changes"`
	Explain        bool           `json:"explain,omitempty"`
}

// SimulateResponse reports the before/after eligibility delta.
type SimulateResponse struct {
	Before        map[string]any `json:"before"`
	After         map[string]any `json:"after"`
	Delta         map[string]any `json:"delta"`
	SchemesGained []string       `json:"schemesGained"`
	SchemesLost   []string       `json:"schemesLost"`
	Explanation   string         `json:"explanation,omitempty"`
	Degraded      []string       `json:"degraded"`
	LatencyMs     float64        `json:"latencyMs"`
}
