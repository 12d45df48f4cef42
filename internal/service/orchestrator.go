package service

import (
	"context"
	"strings"

	"BharatSetu/internal/biz"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// OrchestratorService exposes the six composite flows over HTTP.
type OrchestratorService struct {
	query       *biz.GroundedQueryUsecase
	onboarding  *biz.OnboardingUsecase
	eligibility *biz.EligibilityUsecase
	ingestion   *biz.IngestionUsecase
	voice       *biz.VoiceUsecase
	simulation  *biz.SimulationUsecase
	logger      *log.Helper
}

// NewOrchestratorService creates a new orchestrator service.
func NewOrchestratorService(
	query *biz.GroundedQueryUsecase,
	onboarding *biz.OnboardingUsecase,
	eligibility *biz.EligibilityUsecase,
	ingestion *biz.IngestionUsecase,
	voice *biz.VoiceUsecase,
	simulation *biz.SimulationUsecase,
	logger log.Logger,
) *OrchestratorService {
	return &OrchestratorService{
		query:       query,
		onboarding:  onboarding,
		eligibility: eligibility,
		ingestion:   ingestion,
		voice:       voice,
		simulation:  simulation,
		logger:      log.NewHelper(logger),
	}
}

// Query runs the grounded query flow.
func (s *OrchestratorService) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, badRequest("message is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, badRequest("userId is required")
	}

	s.logger.WithContext(ctx).Infow("query flow requested", "user_id", req.UserID, "type", "flow")

	resp, err := s.query.Query(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}

// Onboard runs the onboarding flow.
func (s *OrchestratorService) Onboard(ctx context.Context, req *model.OnboardRequest) (*model.OnboardResponse, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return nil, badRequest("phone is required")
	}
	if req.Password == "" {
		return nil, badRequest("password is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, badRequest("name is required")
	}

	s.logger.WithContext(ctx).Infow("onboarding flow requested", "state", req.State, "type", "flow")

	resp, err := s.onboarding.Onboard(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}

// CheckEligibility runs the eligibility flow.
func (s *OrchestratorService) CheckEligibility(ctx context.Context, req *model.EligibilityRequest) (*model.EligibilityResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, badRequest("userId is required")
	}
	if len(req.Profile) == 0 {
		return nil, badRequest("profile is required")
	}

	s.logger.WithContext(ctx).Infow("eligibility flow requested", "user_id", req.UserID, "explain", req.Explain, "type", "flow")

	resp, err := s.eligibility.Check(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}

// IngestPolicy runs the policy ingestion pipeline.
func (s *OrchestratorService) IngestPolicy(ctx context.Context, req *model.IngestPolicyRequest) (*model.IngestPolicyResponse, error) {
	if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.RawText) == "" {
		return nil, badRequest("either url or rawText is required")
	}

	s.logger.WithContext(ctx).Infow("ingestion flow requested", "url", req.URL, "raw_text", req.RawText != "", "type", "flow")

	resp, err := s.ingestion.Ingest(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}

// VoiceQuery runs the voice flow.
func (s *OrchestratorService) VoiceQuery(ctx context.Context, req *model.VoiceQueryRequest) (*model.VoiceQueryResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, badRequest("text is required")
	}

	s.logger.WithContext(ctx).Infow("voice flow requested", "language", req.Language, "type", "flow")

	resp, err := s.voice.Query(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}

// Simulate runs the what-if simulation flow.
func (s *OrchestratorService) Simulate(ctx context.Context, req *model.SimulateRequest) (*model.SimulateResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, badRequest("userId is required")
	}
	if len(req.Changes) == 0 {
		return nil, badRequest("changes is required")
	}

	s.logger.WithContext(ctx).Infow("simulation flow requested", "user_id", req.UserID, "type", "flow")

	resp, err := s.simulation.Simulate(ctx, req)
	if err != nil {
		return nil, asTransportError(err)
	}
	return resp, nil
}
