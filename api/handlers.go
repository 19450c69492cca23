package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/strataworks/strata/pkg/consent"
	"github.com/strataworks/strata/pkg/federation"
	"github.com/strataworks/strata/pkg/memory"
	"github.com/strataworks/strata/pkg/storage"
	"github.com/strataworks/strata/pkg/strata"
)

// ScopeRequest is the wire form of a scope. Exactly the fields the kind
// requires must be set.
type ScopeRequest struct {
	Kind    string `json:"kind"`
	AgentID string `json:"agent_id,omitempty"`
	AgentA  string `json:"agent_a,omitempty"`
	AgentB  string `json:"agent_b,omitempty"`
	Tier    string `json:"tier,omitempty"`
}

func (r ScopeRequest) scope() memory.Scope {
	return memory.Scope{
		Kind:    memory.ScopeKind(r.Kind),
		AgentID: r.AgentID,
		AgentA:  r.AgentA,
		AgentB:  r.AgentB,
		Tier:    r.Tier,
	}
}

// StoreRequest is the wire form of a write.
type StoreRequest struct {
	Scope      ScopeRequest      `json:"scope"`
	Text       string            `json:"text"`
	Type       string            `json:"type,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Priority   string            `json:"priority,omitempty"`
	Policy     string            `json:"policy,omitempty"`

	Consent   *consent.MutualConsent    `json:"consent,omitempty"`
	Consensus *consent.ConsensusLevel   `json:"consensus,omitempty"`
	Mentor    *consent.MentorValidation `json:"mentor,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth returns the weighted subsystem health report.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(s.manager.Health(c.Context()))
}

// handleStore runs the full write path. Gate rejections map to 403 with
// the required and actual levels so callers can act on them.
func (s *Server) handleStore(c *fiber.Ctx) error {
	var req StoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "text is required"})
	}

	result, err := s.manager.Store(c.Context(), strata.StoreRequest{
		Scope: req.Scope.scope(),
		Payload: memory.Content{
			Text:       req.Text,
			Type:       req.Type,
			Meta:       req.Meta,
			Confidence: req.Confidence,
		},
		Priority:  memory.Priority(req.Priority),
		Policy:    memory.FederationPolicy(req.Policy),
		Consent:   req.Consent,
		Consensus: req.Consensus,
		Mentor:    req.Mentor,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// SearchRequest is the wire form of a multi-scope search.
type SearchRequest struct {
	Query   string            `json:"query"`
	Scopes  []ScopeRequest    `json:"scopes"`
	Filters map[string]string `json:"filters,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query is required"})
	}
	if len(req.Scopes) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "at least one scope is required"})
	}

	scopes := make([]memory.Scope, len(req.Scopes))
	for i, sr := range req.Scopes {
		scopes[i] = sr.scope()
	}

	results, err := s.manager.Search(c.Context(), req.Query, scopes, req.Filters, req.Limit)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"count":   len(results),
		"results": results,
	})
}

// FuseRequest is the wire form of a fusion call. RequiredConsensus lets the
// caller tighten or relax the floor the sources must clear; zero takes the
// server's configured floor.
type FuseRequest struct {
	Scope             ScopeRequest `json:"scope"`
	IDs               []string     `json:"ids"`
	Strategy          string       `json:"strategy"`
	RequiredConsensus float64      `json:"required_consensus,omitempty"`
}

func (s *Server) handleFuse(c *fiber.Ctx) error {
	var req FuseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if len(req.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "at least one id is required"})
	}

	fused, err := s.manager.Fuse(c.Context(), req.Scope.scope(), req.IDs, memory.FuseStrategy(req.Strategy), req.RequiredConsensus)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(fused)
}

// ConsolidateRequest is the wire form of a consolidation pass.
type ConsolidateRequest struct {
	Scope             ScopeRequest  `json:"scope"`
	IDs               []string      `json:"ids"`
	Strategy          string        `json:"strategy"`
	PreserveOriginals bool          `json:"preserve_originals,omitempty"`
	PromoteTo         *ScopeRequest `json:"promote_to,omitempty"`
	RequiredConsensus float64       `json:"required_consensus,omitempty"`

	Consent   *consent.MutualConsent    `json:"consent,omitempty"`
	Consensus *consent.ConsensusLevel   `json:"consensus,omitempty"`
	Mentor    *consent.MentorValidation `json:"mentor,omitempty"`
}

func (s *Server) handleConsolidate(c *fiber.Ctx) error {
	var req ConsolidateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	creq := strata.ConsolidateRequest{
		Scope:             req.Scope.scope(),
		IDs:               req.IDs,
		Strategy:          strata.ConsolidateStrategy(req.Strategy),
		PreserveOriginals: req.PreserveOriginals,
		RequiredConsensus: req.RequiredConsensus,
		Consent:           req.Consent,
		Consensus:         req.Consensus,
		Mentor:            req.Mentor,
	}
	if req.PromoteTo != nil {
		dest := req.PromoteTo.scope()
		creq.PromoteTo = &dest
	}

	result, err := s.manager.Consolidate(c.Context(), creq)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(result)
}

// SyncRequest is the wire form of an explicit federation sync.
type SyncRequest struct {
	NodeIDs []string `json:"node_ids"`
	Policy  string   `json:"policy"`
	IDs     []string `json:"ids,omitempty"`
}

func (s *Server) handleSync(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.manager.Synchronize(c.Context(), req.NodeIDs, federation.SyncPolicy(req.Policy), req.IDs)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(result)
}

// handlePatterns returns the behavior aggregates for one agent.
func (s *Server) handlePatterns(c *fiber.Ctx) error {
	agent := c.Params("agent")
	if agent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "agent parameter required"})
	}

	patterns, err := s.manager.AnalyzePatterns(c.Context(), agent)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"agent":    agent,
		"patterns": patterns,
	})
}

// writeError maps domain errors to HTTP statuses. Gate rejections are 403
// and carry the thresholds, caller mistakes are 400 or 404, everything else
// is a 500.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, memory.ErrNoMemoriesToFuse) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	var notFound storage.ErrNotFound
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	var consentErr *memory.ConsentError
	if errors.As(err, &consentErr) {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:         consentErr.Error(),
			RequiredTrust: &consentErr.RequiredTrust,
			ActualTrust:   &consentErr.ActualTrust,
		})
	}

	var consensusErr *memory.ConsensusError
	if errors.As(err, &consensusErr) {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:             consensusErr.Error(),
			RequiredConsensus: &consensusErr.Required,
			ActualConsensus:   &consensusErr.Actual,
		})
	}

	s.logger.Error("request failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
}
