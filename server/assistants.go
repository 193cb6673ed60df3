package server

import (
	"context"
	"net/http"

	"github.com/hupe1980/agentconductor/assistant"
)

// AssistantService drives hosted assistants. *assistant.Service satisfies it.
type AssistantService interface {
	GetOrCreate(ctx context.Context, name, instructions, model string) (assistant.Assistant, bool, error)
	NewThread(ctx context.Context) (string, error)
	Run(ctx context.Context, threadID, prompt string) (*assistant.RunResult, error)
}

type assistantRequest struct {
	AssistantName string `json:"assistantName"`
	SystemMessage string `json:"systemMessage"`
	Model         string `json:"model"`
}

type assistantResponse struct {
	AssistantID string `json:"assistantId"`
	Status      string `json:"status"`
}

type threadResponse struct {
	ThreadID string `json:"threadId"`
	Status   string `json:"status"`
}

type runRequest struct {
	ThreadID   string `json:"threadId"`
	UserPrompt string `json:"userPrompt"`
}

type runResponse struct {
	RunID    string              `json:"runId"`
	Messages []assistant.Message `json:"messages"`
	Reply    string              `json:"reply"`
	Status   string              `json:"status"`
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, created, err := s.opts.Assistants.GetOrCreate(r.Context(), req.AssistantName, req.SystemMessage, req.Model)
	if err != nil {
		writeError(w, err)
		return
	}
	status := "Assistant found"
	if created {
		status = "Assistant created successfully"
	}
	writeJSON(w, http.StatusOK, assistantResponse{AssistantID: a.ID, Status: status})
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	id, err := s.opts.Assistants.NewThread(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{ThreadID: id, Status: "New thread created"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	res, err := s.opts.Assistants.Run(ctx, req.ThreadID, req.UserPrompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		RunID:    res.RunID,
		Messages: res.Messages,
		Reply:    res.Reply(),
		Status:   "Response received from Assistant",
	})
}
