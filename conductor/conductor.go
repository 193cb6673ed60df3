package conductor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentconductor/agent"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/model"
	"github.com/hupe1980/agentconductor/tool"
)

// TracerName is the instrumentation scope of the conductor's spans.
const TracerName = "github.com/hupe1980/agentconductor/conductor"

// AgentLookup resolves agent ids. *agent.Registry satisfies it.
type AgentLookup interface {
	Get(id core.AgentID) (core.Agent, bool)
}

// ToolInvoker dispatches tool calls. *tool.Registry satisfies it.
type ToolInvoker interface {
	Has(name string) bool
	Definitions(names ...string) []tool.Definition
	Invoke(ctx context.Context, name string, params map[string]any) (string, error)
}

// Request describes one run.
type Request struct {
	// AgentIDs is the speaking order. Repeats are allowed.
	AgentIDs []core.AgentID
	// Conversation is the seeded transcript; the run appends to it.
	Conversation *core.Conversation
	// MaxTurns bounds the run. Values below one use the conductor default.
	MaxTurns int
	// StopWhenIdle ends the run after a turn without tool calls.
	StopWhenIdle bool
}

// Result is the outcome of a run that reached a terminal status.
type Result struct {
	RunID        string             `json:"id"`
	Status       core.RunStatus     `json:"status"`
	Conversation *core.Conversation `json:"conversation"`
	TurnsTaken   int                `json:"turns"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// Messages returns a snapshot of the transcript.
func (r *Result) Messages() []core.Message {
	if r == nil || r.Conversation == nil {
		return nil
	}
	return r.Conversation.Messages()
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Options configures a Conductor.
type Options struct {
	Logger logging.Logger
	// Callbacks receives lifecycle events. May be nil.
	Callbacks *CallbackManager
	// TracerProvider defaults to the global otel provider.
	TracerProvider trace.TracerProvider
	// DefaultMaxTurns applies when a request does not set MaxTurns.
	DefaultMaxTurns int
	// TurnTimeout bounds each provider call. Zero means no bound.
	TurnTimeout time.Duration
	// StopWhenIdle applies the idle policy to every run.
	StopWhenIdle bool
	// Instruction maps an agent to its system instruction. Defaults to
	// agent.InstructionFor, which sends the registered text verbatim.
	Instruction func(core.Agent) agent.Instruction
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Conductor executes round-robin runs against shared registries. It holds
// no per-run state and is safe for concurrent use.
type Conductor struct {
	agents   AgentLookup
	tools    ToolInvoker
	provider model.Provider
	tracer   trace.Tracer
	logger   logging.Logger
	opts     Options
}

// New creates a Conductor.
func New(agents AgentLookup, tools ToolInvoker, provider model.Provider, optFns ...func(o *Options)) *Conductor {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		DefaultMaxTurns: core.DefaultMaxTurns,
		Now:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultMaxTurns <= 0 {
		opts.DefaultMaxTurns = core.DefaultMaxTurns
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Instruction == nil {
		opts.Instruction = agent.InstructionFor
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Conductor{
		agents:   agents,
		tools:    tools,
		provider: provider,
		tracer:   tp.Tracer(TracerName),
		logger:   logging.OrNoOp(opts.Logger),
		opts:     opts,
	}
}

// run is the mutable state of one Run call.
type run struct {
	id       string
	req      Request
	conv     *core.Conversation
	limiter  *core.TurnLimiter
	index    int
	idle     bool
	logger   logging.Logger
	startsAt time.Time
}

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeMissingAgent
	outcomeIdle
	outcomeCancelled
)

// Run drives the conversation until a terminal status is reached.
//
// Cancellation of ctx ends the run with StatusCancelled and the partial
// transcript; it is not reported as an error. A failing provider call returns
// a *core.ProviderError and no result.
func (c *Conductor) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.AgentIDs) == 0 {
		return nil, core.InvalidInput("at least one agent id is required")
	}
	if req.Conversation == nil {
		return nil, core.InvalidInput("conversation is required")
	}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = c.opts.DefaultMaxTurns
	}

	r := &run{
		id:       core.NewID(),
		req:      req,
		conv:     req.Conversation,
		limiter:  core.NewTurnLimiter(maxTurns),
		idle:     req.StopWhenIdle || c.opts.StopWhenIdle,
		startsAt: c.opts.Now(),
	}
	r.logger = withRun(c.logger, r.id)

	ctx, span := c.tracer.Start(ctx, "conductor.run", trace.WithAttributes(
		attribute.String("run.id", r.id),
		attribute.Int("run.max_turns", maxTurns),
		attribute.Int("run.agents", len(req.AgentIDs)),
	))
	defer span.End()

	r.logger.Info("run.start", "agents", len(req.AgentIDs), "max_turns", maxTurns)
	c.fire(ctx, r, CallbackBeforeRun, &CallbackContext{})

	status, err := c.loop(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.fire(ctx, r, CallbackOnError, &CallbackContext{Turn: r.limiter.Count() + 1, Err: err})
		logRun(r.logger, "failed", r.limiter.Count(), c.opts.Now().Sub(r.startsAt), err)
		return nil, err
	}

	res := &Result{
		RunID:        r.id,
		Status:       status,
		Conversation: r.conv,
		TurnsTaken:   r.limiter.Count(),
		StartedAt:    r.startsAt,
		FinishedAt:   c.opts.Now(),
	}
	span.SetAttributes(attribute.String("run.status", string(status)), attribute.Int("run.turns", res.TurnsTaken))
	c.fire(ctx, r, CallbackOnRunComplete, &CallbackContext{Turn: res.TurnsTaken, Result: res})
	logRun(r.logger, string(status), res.TurnsTaken, res.Duration(), nil)
	return res, nil
}

func (c *Conductor) loop(ctx context.Context, r *run) (core.RunStatus, error) {
	for {
		if ctx.Err() != nil {
			return core.StatusCancelled, nil
		}
		if r.limiter.Exhausted() {
			return core.StatusCompleted, nil
		}

		out, err := c.turn(ctx, r)
		if err != nil {
			return "", err
		}
		switch out {
		case outcomeMissingAgent:
			return core.StatusStoppedMissingAgent, nil
		case outcomeCancelled:
			return core.StatusCancelled, nil
		case outcomeIdle:
			return core.StatusStoppedNoFurtherAction, nil
		}
	}
}

func (c *Conductor) turn(ctx context.Context, r *run) (outcome, error) {
	turnNo := r.limiter.Count() + 1
	agentID := r.req.AgentIDs[r.index%len(r.req.AgentIDs)]

	ctx, span := c.tracer.Start(ctx, "conductor.turn", trace.WithAttributes(
		attribute.Int("turn", turnNo),
		attribute.Int64("agent.id", int64(agentID)),
	))
	defer span.End()

	a, ok := c.agents.Get(agentID)
	if !ok {
		r.conv.Append(core.NewSystemMessage(fmt.Sprintf("Agent with id=%s not found. Stopping.", agentID)))
		r.logger.Warn("turn.agent_missing", "turn", turnNo, "agent_id", agentID)
		span.SetAttributes(attribute.Bool("agent.missing", true))
		return outcomeMissingAgent, nil
	}
	span.SetAttributes(attribute.String("agent.name", a.Name), attribute.String("agent.model", a.Model))
	c.fire(ctx, r, CallbackBeforeTurn, &CallbackContext{Turn: turnNo, Agent: a})

	req := model.Request{
		Model:    a.Model,
		Messages: append([]core.Message{core.NewSystemMessage(c.instructions(r, a))}, r.conv.Messages()...),
		Tools:    c.toolDefinitions(a),
	}

	resp, err := c.complete(ctx, r, turnNo, a, &req)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Info("turn.cancelled", "turn", turnNo, "agent_id", a.ID)
			return outcomeCancelled, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomeContinue, &core.ProviderError{AgentID: a.ID, Model: a.Model, Turn: turnNo, Err: err}
	}

	reply := core.Message{
		Role:      core.RoleAssistant,
		Name:      a.Name,
		Content:   resp.Message.Content,
		ToolCalls: assignCallIDs(resp.Message.ToolCalls),
	}
	r.conv.Append(reply)

	for i := range reply.ToolCalls {
		c.dispatch(ctx, r, turnNo, a, reply.ToolCalls[i])
	}

	if err := r.limiter.Increment(); err != nil {
		return outcomeContinue, err
	}
	r.index = (r.index + 1) % len(r.req.AgentIDs)

	c.fire(ctx, r, CallbackAfterTurn, &CallbackContext{Turn: turnNo, Agent: a, Response: resp})
	r.logger.Debug("turn.complete", "turn", turnNo, "agent_id", a.ID, "tool_calls", len(reply.ToolCalls))

	if r.idle && len(reply.ToolCalls) == 0 && !r.limiter.Exhausted() {
		return outcomeIdle, nil
	}
	return outcomeContinue, nil
}

func (c *Conductor) complete(ctx context.Context, r *run, turnNo int, a core.Agent, req *model.Request) (*model.Response, error) {
	callCtx := ctx
	if c.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.TurnTimeout)
		defer cancel()
	}

	callCtx, span := c.tracer.Start(callCtx, "conductor.provider", trace.WithAttributes(
		attribute.String("llm.model", a.Model),
		attribute.Int("llm.messages_count", len(req.Messages)),
		attribute.Int("llm.tools_count", len(req.Tools)),
	))
	defer span.End()

	c.fire(ctx, r, CallbackBeforeProvider, &CallbackContext{Turn: turnNo, Agent: a, Request: req})

	resp, err := c.provider.Complete(callCtx, *req)
	if err == nil && resp == nil {
		err = model.ErrEmptyResponse
	}

	c.fire(ctx, r, CallbackAfterProvider, &CallbackContext{Turn: turnNo, Agent: a, Request: req, Response: resp, Err: err})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens))
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.Message.ToolCalls)))
	return resp, nil
}

// dispatch handles a single tool call. It never fails the run: unknown tools
// become a system notice and tool failures become the tool message content.
func (c *Conductor) dispatch(ctx context.Context, r *run, turnNo int, a core.Agent, call core.ToolCall) {
	if !a.HasTool(call.Name) || !c.tools.Has(call.Name) {
		r.conv.Append(core.NewSystemMessage(fmt.Sprintf("Agent %s tried to call unknown tool: %s", a.Name, call.Name)))
		r.logger.Warn("tool.unknown", "turn", turnNo, "agent_id", a.ID, "tool", call.Name)
		return
	}

	ctx, span := c.tracer.Start(ctx, "conductor.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	c.fire(ctx, r, CallbackBeforeTool, &CallbackContext{Turn: turnNo, Agent: a, ToolCall: &call})

	start := time.Now()
	content, err := c.invoke(ctx, call)
	logTool(r.logger, call.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		content = "error: " + err.Error()
	}

	r.conv.Append(core.NewToolMessage(call.ID, call.Name, content))
	c.fire(ctx, r, CallbackAfterTool, &CallbackContext{Turn: turnNo, Agent: a, ToolCall: &call, ToolResult: content, Err: err})
}

func (c *Conductor) invoke(ctx context.Context, call core.ToolCall) (string, error) {
	params, err := tool.ParseArguments(call.Arguments)
	if err != nil {
		return "", err
	}
	return c.tools.Invoke(ctx, call.Name, params)
}

func (c *Conductor) instructions(r *run, a core.Agent) string {
	text, err := c.opts.Instruction(a).Resolve(a)
	if err != nil {
		r.logger.Warn("agent.instruction_invalid", "agent_id", a.ID, "error", err.Error())
		return a.Instructions
	}
	return text
}

// toolDefinitions describes the agent's attached tools that are registered.
func (c *Conductor) toolDefinitions(a core.Agent) []model.ToolDefinition {
	if len(a.Tools) == 0 {
		return nil
	}
	defs := c.tools.Definitions(a.Tools...)
	if len(defs) == 0 {
		return nil
	}
	out := make([]model.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

func (c *Conductor) fire(ctx context.Context, r *run, t CallbackType, cc *CallbackContext) {
	if c.opts.Callbacks == nil {
		return
	}
	cc.RunID = r.id
	if err := c.opts.Callbacks.ExecuteCallbacks(ctx, t, cc); err != nil {
		r.logger.Warn("callback.failed", "callback", string(t), "error", err.Error())
	}
}

// assignCallIDs gives every tool call an id so its result can be paired.
func assignCallIDs(calls []core.ToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]core.ToolCall, len(calls))
	for i, tc := range calls {
		if tc.ID == "" {
			tc.ID = "call_" + core.NewID()
		}
		out[i] = tc
	}
	return out
}

func withRun(l logging.Logger, runID string) logging.Logger {
	if cl, ok := l.(*logging.ConductorLogger); ok {
		return cl.WithRun(runID)
	}
	return l
}

func logRun(l logging.Logger, status string, turns int, dur time.Duration, err error) {
	if cl, ok := l.(*logging.ConductorLogger); ok {
		cl.LogRunExecution(status, turns, dur, err)
		return
	}
	if err != nil {
		l.Error("run.failed", "turns", turns, "duration", dur, "error", err.Error())
		return
	}
	l.Info("run.complete", "status", status, "turns", turns, "duration", dur)
}

func logTool(l logging.Logger, name string, dur time.Duration, err error) {
	if cl, ok := l.(*logging.ConductorLogger); ok {
		cl.LogToolCall(name, dur, err == nil, err)
		return
	}
	if err != nil {
		l.Warn("tool.failed", "tool", name, "duration", dur, "error", err.Error())
	}
}

// IsProviderError reports whether err aborted a run in the provider.
func IsProviderError(err error) bool { return errors.Is(err, core.ErrProvider) }
