package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arena-trade-agent-go/internal/agent"
	"arena-trade-agent-go/internal/models"
	"arena-trade-agent-go/internal/skill"
	"arena-trade-agent-go/internal/trader"
	"arena-trade-agent-go/internal/vault"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type createAgentRequest struct {
	Name          string   `json:"name" validate:"required,max=64"`
	Description   string   `json:"description" validate:"max=500"`
	Creator       string   `json:"creator" validate:"required"`
	Strategy      string   `json:"strategy" validate:"required,oneof=momentum arbitrage sentiment degen conservative custom"`
	Skills        []string `json:"skills" validate:"required,min=1,dive,required"`
	AllowedTokens []string `json:"allowed_tokens" default:"[\"SOL\"]" validate:"dive,required"`
}

type depositRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Investor string  `json:"investor" validate:"required"`
}

// agentView is an agent with its API key masked.
type agentView struct {
	*models.Agent
	APIKey string       `json:"api_key"`
	Stats  *agent.Stats `json:"stats,omitempty"`
}

func maskedView(a *models.Agent, stats *agent.Stats) agentView {
	return agentView{Agent: a, APIKey: a.MaskedAPIKey(), Stats: stats}
}

type vaultView struct {
	*models.Vault
	UnrealizedProfit float64          `json:"unrealized_profit"`
	ProjectedSplit   vault.Allocation `json:"projected_split"`
}

type agentDetailView struct {
	agentView
	Vault     vaultView             `json:"vault"`
	Heartbeat trader.HeartbeatState `json:"heartbeat"`
}

type leaderboardView struct {
	Rank  int         `json:"rank"`
	Agent agentView   `json:"agent"`
	Stats agent.Stats `json:"stats"`
}

type statusView struct {
	Message       string             `json:"message,omitempty"`
	Status        models.AgentStatus `json:"status"`
	LastHeartbeat *time.Time         `json:"last_heartbeat"`
}

type skillView struct {
	skill.CatalogEntry
	Implemented bool `json:"implemented"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/skills
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	catalog := skill.Catalog()
	out := make([]skillView, len(catalog))
	for i, e := range catalog {
		out[i] = skillView{CatalogEntry: e, Implemented: s.skills.Implemented(e.ID)}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GET /api/agents?strategy=X&sort=pnl|aum|winRate
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summaries, err := s.registry.List(r.Context(), models.Strategy(q.Get("strategy")), q.Get("sort"))
	if err != nil {
		s.writeFailure(w, err, "Failed to list agents")
		return
	}
	out := make([]agentView, len(summaries))
	for i := range summaries {
		out[i] = maskedView(summaries[i].Agent, &summaries[i].Stats)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// POST /api/agents
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if errs := readAndValidate(r, &req); errs != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	a, err := s.registry.Create(r.Context(), agent.CreateParams{
		Name:          req.Name,
		Description:   req.Description,
		Creator:       req.Creator,
		Strategy:      models.Strategy(req.Strategy),
		Skills:        req.Skills,
		AllowedTokens: req.AllowedTokens,
	})
	if err != nil {
		s.writeFailure(w, err, "Failed to create agent")
		return
	}
	// the only response that carries the unmasked key
	s.writeJSON(w, http.StatusCreated, a)
}

// GET /api/agents/{id}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to get agent")
		return
	}
	profit := vault.UnrealizedProfit(d.Vault)
	s.writeJSON(w, http.StatusOK, agentDetailView{
		agentView: maskedView(d.Agent, &d.Stats),
		Vault: vaultView{
			Vault:            d.Vault,
			UnrealizedProfit: profit,
			ProjectedSplit:   vault.SplitProfit(d.Vault.ProfitSplit, profit),
		},
		Heartbeat: d.Heartbeat,
	})
}

// GET /api/agents/{id}/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// GET /api/agents/{id}/trades?limit=N
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	trades, err := s.registry.Trades(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeFailure(w, err, "Failed to get trades")
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// POST /api/agents/{id}/start
func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	a, started, err := s.registry.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to start agent")
		return
	}
	msg := "Agent already live"
	if started {
		msg = "Agent started"
	}
	s.writeJSON(w, http.StatusOK, statusView{Message: msg, Status: a.Status, LastHeartbeat: a.LastHeartbeat})
}

// POST /api/agents/{id}/stop
func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	a, stopped, err := s.registry.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err, "Failed to stop agent")
		return
	}
	msg := "Agent already stopped"
	if stopped {
		msg = "Agent stopped"
	}
	s.writeJSON(w, http.StatusOK, statusView{Message: msg, Status: a.Status, LastHeartbeat: a.LastHeartbeat})
}

// POST /api/agents/{id}/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(r.Context(), id); err != nil {
		s.writeFailure(w, err, "Failed to get agent")
		return
	}

	var req depositRequest
	if errs := readAndValidate(r, &req); errs != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
		return
	}

	deposit, v, err := s.registry.Deposit(r.Context(), id, req.Investor, req.Amount)
	if err != nil {
		s.writeFailure(w, err, "Failed to record deposit")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"deposit": deposit,
		"vault":   v,
	})
}

// PATCH /api/agents/{id}/heartbeat with "Authorization: Bearer <api key>"
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	key := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		key = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	a, err := s.registry.Heartbeat(r.Context(), chi.URLParam(r, "id"), key)
	if err != nil {
		s.writeFailure(w, err, "Failed to record heartbeat")
		return
	}
	s.writeJSON(w, http.StatusOK, statusView{Status: a.Status, LastHeartbeat: a.LastHeartbeat})
}

// GET /api/leaderboard
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.Leaderboard(r.Context())
	if err != nil {
		s.writeFailure(w, err, "Failed to build leaderboard")
		return
	}
	out := make([]leaderboardView, len(entries))
	for i, e := range entries {
		out[i] = leaderboardView{Rank: e.Rank, Agent: maskedView(e.Agent, nil), Stats: e.Stats}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// writeFailure maps domain errors to status codes. Anything unexpected is
// logged and reported as msg.
func (s *Server) writeFailure(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, agent.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Agent not found")
	case errors.Is(err, vault.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Vault not found for this agent")
	case errors.Is(err, agent.ErrUnauthorized):
		s.writeError(w, http.StatusUnauthorized, "Missing API key")
	case errors.Is(err, agent.ErrForbidden):
		s.writeError(w, http.StatusForbidden, "Invalid API key")
	case errors.Is(err, agent.ErrInvalidAgent), errors.Is(err, vault.ErrInvalidDeposit):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error(msg, zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, msg)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
