package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/store"
)

type createAgentRequest struct {
	Name         string `json:"name"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
}

type addToolRequest struct {
	AgentID  core.AgentID `json:"agentId"`
	ToolName string       `json:"toolName"`
}

type addToolResponse struct {
	Success bool       `json:"success"`
	Agent   core.Agent `json:"agent"`
}

type startConversationRequest struct {
	AgentIDs     []core.AgentID `json:"agentIds"`
	UserInput    string         `json:"userInput"`
	MaxTurns     int            `json:"maxTurns"`
	StopWhenIdle bool           `json:"stopWhenIdle"`
}

type conversationResponse struct {
	ID       string         `json:"id"`
	Status   core.RunStatus `json:"status"`
	Turns    int            `json:"turns"`
	Messages []core.Message `json:"messages"`
	Error    string         `json:"error,omitempty"`
}

type toolResponse struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body exceeds %d bytes: %w", s.opts.MaxBodyBytes, err)
		}
		return core.InvalidInput("malformed JSON body")
	}
	return nil
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := s.agents.Register(req.Name, req.Model, req.Instructions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAddTool(w http.ResponseWriter, r *http.Request) {
	var req addToolRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AgentID == 0 || req.ToolName == "" {
		writeError(w, core.InvalidInput("agentId and toolName are required"))
		return
	}

	a, err := s.agents.AttachTool(req.AgentID, req.ToolName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addToolResponse{Success: true, Agent: a})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.List())
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	defs := s.tools.Definitions()
	out := make([]toolResponse, len(defs))
	for i, d := range defs {
		out[i] = toolResponse{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.AgentIDs) == 0 {
		writeError(w, core.InvalidInput("agentIds must be a non-empty array"))
		return
	}
	if req.MaxTurns < 0 {
		writeError(w, core.InvalidInput("maxTurns must not be negative"))
		return
	}
	if s.opts.MaxTurnsLimit > 0 && req.MaxTurns > s.opts.MaxTurnsLimit {
		writeError(w, core.InvalidInput(fmt.Sprintf("maxTurns must not exceed %d", s.opts.MaxTurnsLimit)))
		return
	}

	ctx := r.Context()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, conductor.Request{
		AgentIDs:     req.AgentIDs,
		Conversation: core.NewConversation(req.UserInput),
		MaxTurns:     req.MaxTurns,
		StopWhenIdle: req.StopWhenIdle,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.archive(res, req.AgentIDs)

	resp := conversationResponse{
		ID:       res.RunID,
		Status:   res.Status,
		Turns:    res.TurnsTaken,
		Messages: res.Messages(),
	}
	status := http.StatusOK
	if res.Status == core.StatusCancelled {
		status = http.StatusGatewayTimeout
		resp.Error = "conversation cancelled before completion"
	}
	writeJSON(w, status, resp)
}

// archive stores the finished run. Failures are logged; the caller already
// has the transcript.
func (s *Server) archive(res *conductor.Result, ids []core.AgentID) {
	if s.opts.Store == nil {
		return
	}
	// the request context may already be cancelled
	if err := s.opts.Store.Save(context.Background(), store.NewTranscript(res, ids)); err != nil {
		s.logger.Warn("store.save_failed", "run_id", res.RunID, "error", err.Error())
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeJSON(w, http.StatusOK, []*store.Transcript{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, core.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.opts.Store.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.opts.Store == nil {
		writeError(w, store.NotFound(id))
		return
	}
	t, err := s.opts.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
