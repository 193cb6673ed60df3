package conductor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentconductor/agent"
	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/internal/testutil"
	"github.com/hupe1980/agentconductor/model"
	"github.com/hupe1980/agentconductor/tool"
)

func alwaysReply(text string) model.Provider {
	return model.ProviderFunc(func(ctx context.Context, _ model.Request) (*model.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &model.Response{Message: core.Message{Role: core.RoleAssistant, Content: text}}, nil
	})
}

func TestRun_SingleAgentScenario(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m1", "Be terse")

	var seen []model.Request
	var mu sync.Mutex
	provider := model.ProviderFunc(func(_ context.Context, req model.Request) (*model.Response, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		return &model.Response{Message: core.Message{Role: core.RoleAssistant, Content: "ok"}}, nil
	})

	c := New(f.Agents, f.Tools, provider)
	res, err := c.Run(context.Background(), Request{
		AgentIDs:     []core.AgentID{a.ID},
		Conversation: core.NewConversation("hi"),
		MaxTurns:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 2, res.TurnsTaken)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []core.Message{
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("A", "ok"),
		core.NewAssistantMessage("A", "ok"),
	}, res.Messages())

	require.Len(t, seen, 2)
	assert.Equal(t, "m1", seen[0].Model)
	assert.Equal(t, core.NewSystemMessage("Be terse"), seen[0].Messages[0])
	assert.Len(t, seen[0].Messages, 2)
	assert.Len(t, seen[1].Messages, 3, "the second turn sees the first reply")
	assert.Empty(t, seen[0].Tools)
}

func TestRun_MissingAgentScenario(t *testing.T) {
	f := testutil.NewFixture(t)

	res, err := New(f.Agents, f.Tools, alwaysReply("ok")).Run(context.Background(), Request{
		AgentIDs:     []core.AgentID{999},
		Conversation: core.NewConversation("hi"),
		MaxTurns:     2,
	})
	require.NoError(t, err)

	assert.Equal(t, core.StatusStoppedMissingAgent, res.Status)
	assert.Equal(t, 0, res.TurnsTaken)
	assert.Equal(t, []core.Message{
		core.NewUserMessage("hi"),
		core.NewSystemMessage("Agent with id=999 not found. Stopping."),
	}, res.Messages())
}

func TestRun_RoundRobinOrder(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	b := f.Agent("B", "m", "")
	c := f.Agent("C", "m", "")

	tests := []struct {
		maxTurns int
		ids      []core.AgentID
		want     []string
	}{
		{1, []core.AgentID{a.ID, b.ID, c.ID}, []string{"A"}},
		{3, []core.AgentID{a.ID, b.ID, c.ID}, []string{"A", "B", "C"}},
		{7, []core.AgentID{a.ID, b.ID, c.ID}, []string{"A", "B", "C", "A", "B", "C", "A"}},
		{4, []core.AgentID{a.ID, a.ID, b.ID}, []string{"A", "A", "B", "A"}},
		{0, []core.AgentID{a.ID, b.ID}, []string{"A", "B", "A", "B", "A", "B"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d turns over %v", tt.maxTurns, tt.ids), func(t *testing.T) {
			res, err := New(f.Agents, f.Tools, alwaysReply("ok")).Run(context.Background(), Request{
				AgentIDs:     tt.ids,
				Conversation: core.NewConversation("hi"),
				MaxTurns:     tt.maxTurns,
			})
			require.NoError(t, err)

			msgs := res.Messages()
			assert.Equal(t, core.StatusCompleted, res.Status)
			assert.Equal(t, tt.want, testutil.Speakers(msgs))
			assert.Equal(t, len(tt.want), res.TurnsTaken)
			assert.Equal(t, len(tt.want), res.Conversation.Count(core.RoleAssistant))
			assert.Equal(t, 1+len(tt.want), len(msgs))
		})
	}
}

func TestRun_MissingAgentAtPosition(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	b := f.Agent("B", "m", "")

	res, err := New(f.Agents, f.Tools, alwaysReply("ok")).Run(context.Background(), Request{
		AgentIDs:     []core.AgentID{a.ID, b.ID, 42, a.ID},
		Conversation: core.NewConversation("hi"),
		MaxTurns:     6,
	})
	require.NoError(t, err)

	msgs := res.Messages()
	assert.Equal(t, core.StatusStoppedMissingAgent, res.Status)
	assert.Equal(t, 2, res.TurnsTaken)
	assert.Equal(t, 2, res.Conversation.Count(core.RoleAssistant))
	assert.Equal(t, 1, res.Conversation.Count(core.RoleSystem))
	last, _ := res.Conversation.Last()
	assert.Equal(t, core.NewSystemMessage("Agent with id=42 not found. Stopping."), last)
	assert.Len(t, msgs, 4)
}

func TestRun_DefaultInstruction(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	s := model.NewScriptedProvider(model.Reply("ok"))

	_, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
	})
	require.NoError(t, err)

	reqs := s.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, core.NewSystemMessage("You are a helpful agent."), reqs[0].Messages[0])
}

func TestRun_InstructionsSentVerbatim(t *testing.T) {
	texts := []string{
		"Fill in the template {{.customer}} for the user.",
		"Reply with {{.name}} only.",
		"Say <no value> if unsure {{.model}}",
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			f := testutil.NewFixture(t)
			a := f.Agent("A", "m1", text)
			s := model.NewScriptedProvider(model.Reply("ok"))

			_, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
				AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
			})
			require.NoError(t, err)

			reqs := s.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, core.NewSystemMessage(text), reqs[0].Messages[0])
		})
	}
}

func TestRun_InstructionTemplatesAreOptIn(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("Critic", "m1", "You are {{.name}} on {{.model}}.")
	s := model.NewScriptedProvider(model.Reply("ok"))

	c := New(f.Agents, f.Tools, s, func(o *Options) {
		o.Instruction = func(ag core.Agent) agent.Instruction {
			return agent.NewInstructionFromTemplate(ag.Instructions)
		}
	})
	_, err := c.Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "You are Critic on m1.", s.Requests()[0].Messages[0].Content)
}

func TestRun_InvalidInput(t *testing.T) {
	f := testutil.NewFixture(t)
	c := New(f.Agents, f.Tools, alwaysReply("ok"))

	_, err := c.Run(context.Background(), Request{Conversation: core.NewConversation("hi")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = c.Run(context.Background(), Request{AgentIDs: []core.AgentID{1}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRun_ProviderErrorAborts(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m1", "")
	b := f.Agent("B", "m2", "")
	boom := errors.New("upstream exploded")
	s := model.NewScriptedProvider(model.Reply("ok"), model.Fail(boom))

	conv := core.NewConversation("hi")
	res, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID, b.ID}, Conversation: conv, MaxTurns: 4,
	})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsProviderError(err))

	var pErr *core.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, b.ID, pErr.AgentID)
	assert.Equal(t, "m2", pErr.Model)
	assert.Equal(t, 2, pErr.Turn)

	assert.Equal(t, 2, conv.Len(), "nothing is appended for the failed turn")
	assert.Equal(t, 2, s.Calls())
}

func TestRun_CancelledMidRun(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	provider := model.ProviderFunc(func(ctx context.Context, _ model.Request) (*model.Response, error) {
		calls++
		if calls == 2 {
			cancel()
			return nil, ctx.Err()
		}
		return &model.Response{Message: core.Message{Role: core.RoleAssistant, Content: "ok"}}, nil
	})

	res, err := New(f.Agents, f.Tools, provider).Run(ctx, Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, res.Status)
	assert.Equal(t, 1, res.TurnsTaken)
	assert.Equal(t, 1, res.Conversation.Count(core.RoleAssistant))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := model.NewScriptedProvider(model.Reply("never"))
	res, err := New(f.Agents, f.Tools, s).Run(ctx, Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, res.Status)
	assert.Equal(t, 0, res.TurnsTaken)
	assert.Equal(t, 0, s.Calls())
}

func TestRun_TurnTimeoutIsProviderError(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	slow := model.ProviderFunc(func(ctx context.Context, _ model.Request) (*model.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	c := New(f.Agents, f.Tools, slow, func(o *Options) { o.TurnTimeout = 10 * time.Millisecond })
	_, err := c.Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
	})
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ToolDispatch(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "", "add", "ghost")

	s := model.NewScriptedProvider(
		model.CallTools("calling",
			testutil.Call("c1", "add", `{"a":2,"b":3}`),
			testutil.Call("c2", "exampleTool", `{}`),
			testutil.Call("c3", "ghost", `{}`),
		),
		model.Reply("done"),
	)

	res, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 2,
	})
	require.NoError(t, err)

	msgs := res.Messages()
	assert.Equal(t, []core.Role{
		core.RoleUser, core.RoleAssistant, core.RoleTool, core.RoleSystem, core.RoleSystem, core.RoleAssistant,
	}, testutil.Roles(msgs))
	assert.Len(t, msgs[1].ToolCalls, 3)
	assert.Equal(t, core.NewToolMessage("c1", "add", "5"), msgs[2])
	assert.Equal(t, "Agent A tried to call unknown tool: exampleTool", msgs[3].Content)
	assert.Equal(t, "Agent A tried to call unknown tool: ghost", msgs[4].Content)

	reqs := s.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1, "only attached and registered tools are offered")
	assert.Equal(t, "add", reqs[0].Tools[0].Name)
	assert.Len(t, reqs[1].Messages, 6, "system prompt plus the five transcript messages")
}

func TestRun_ToolFailuresBecomeToolMessages(t *testing.T) {
	f := testutil.NewFixture(t)
	require.NoError(t, f.Tools.Register(
		tool.NewFunctionTool("fail", "", nil, func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		}),
		tool.NewFunctionTool("explode", "", nil, func(context.Context, map[string]any) (any, error) {
			panic("kaboom")
		}),
	))
	a := f.Agent("A", "m", "", "fail", "explode", "add")

	s := model.NewScriptedProvider(model.CallTools("",
		testutil.Call("c1", "fail", ""),
		testutil.Call("c2", "explode", ""),
		testutil.Call("c3", "add", "{not json"),
	))

	res, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)

	msgs := res.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "error: tool error [EXECUTION_ERROR] in fail: boom", msgs[2].Content)
	assert.Equal(t, "error: tool error [PANIC] in explode: kaboom", msgs[3].Content)
	assert.True(t, strings.HasPrefix(msgs[4].Content, "error: decode tool arguments"), msgs[4].Content)
}

func TestRun_AssignsMissingToolCallIDs(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "", "add")
	s := model.NewScriptedProvider(model.CallTools("", testutil.Call("", "add", `{"a":1,"b":1}`)))

	res, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 1,
	})
	require.NoError(t, err)

	msgs := res.Messages()
	require.Len(t, msgs, 3)
	require.NotEmpty(t, msgs[1].ToolCalls[0].ID)
	assert.Equal(t, msgs[1].ToolCalls[0].ID, msgs[2].ToolCallID)
}

func TestRun_StopWhenIdle(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "", "add")
	b := f.Agent("B", "m", "")
	s := model.NewScriptedProvider(
		model.CallTools("", testutil.Call("c1", "add", `{"a":1,"b":2}`)),
		model.Reply("nothing more to do"),
		model.Reply("never reached"),
	)

	res, err := New(f.Agents, f.Tools, s).Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID, b.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 6, StopWhenIdle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusStoppedNoFurtherAction, res.Status)
	assert.Equal(t, 2, res.TurnsTaken)
	assert.Equal(t, 2, s.Calls())
}

func TestRun_CallbacksObserveWithoutAltering(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "", "add")

	counts := map[CallbackType]int{}
	var mu sync.Mutex
	cm := NewCallbackManager()
	for _, ct := range []CallbackType{
		CallbackBeforeRun, CallbackBeforeTurn, CallbackAfterTurn, CallbackBeforeProvider, CallbackAfterProvider,
		CallbackBeforeTool, CallbackAfterTool, CallbackOnError, CallbackOnRunComplete,
	} {
		cm.RegisterCallback(NewFunctionCallback(ct, func(_ context.Context, cc *CallbackContext) error {
			mu.Lock()
			counts[cc.CallbackType]++
			mu.Unlock()
			return errors.New("ignored")
		}))
	}
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterTurn, func(context.Context, *CallbackContext) error {
		panic("callback panic")
	}))

	s := model.NewScriptedProvider(
		model.CallTools("", testutil.Call("c1", "add", `{"a":1,"b":2}`)),
		model.Reply("ok"),
	)
	c := New(f.Agents, f.Tools, s, func(o *Options) { o.Callbacks = cm })

	res, err := c.Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 4, res.Conversation.Len())

	assert.Equal(t, map[CallbackType]int{
		CallbackBeforeRun:      1,
		CallbackBeforeTurn:     2,
		CallbackAfterTurn:      2,
		CallbackBeforeProvider: 2,
		CallbackAfterProvider:  2,
		CallbackBeforeTool:     1,
		CallbackAfterTool:      1,
		CallbackOnRunComplete:  1,
	}, counts)
}

func TestRun_OnErrorCallback(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")

	var got error
	cm := NewCallbackManager()
	cm.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		got = cc.Err
		return nil
	}))

	c := New(f.Agents, f.Tools, model.NewScriptedProvider(model.Fail(errors.New("x"))), func(o *Options) { o.Callbacks = cm })
	_, err := c.Run(context.Background(), Request{AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi")})
	require.Error(t, err)
	assert.ErrorIs(t, got, core.ErrProvider)
}

func TestRun_Spans(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "", "add")

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s := model.NewScriptedProvider(
		model.CallTools("", testutil.Call("c1", "add", `{"a":1,"b":2}`)),
		model.Reply("ok"),
	)
	c := New(f.Agents, f.Tools, s, func(o *Options) { o.TracerProvider = tp })
	_, err := c.Run(context.Background(), Request{
		AgentIDs: []core.AgentID{a.ID}, Conversation: core.NewConversation("hi"), MaxTurns: 2,
	})
	require.NoError(t, err)

	names := map[string]int{}
	for _, span := range sr.Ended() {
		names[span.Name()]++
	}
	assert.Equal(t, map[string]int{
		"conductor.run":      1,
		"conductor.turn":     2,
		"conductor.provider": 2,
		"conductor.tool":     1,
	}, names)
}

func TestRun_ConcurrentRunsShareRegistries(t *testing.T) {
	f := testutil.NewFixture(t)
	a := f.Agent("A", "m", "")
	b := f.Agent("B", "m", "")
	c := New(f.Agents, f.Tools, model.NewMockProvider())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Run(context.Background(), Request{
				AgentIDs:     []core.AgentID{a.ID, b.ID},
				Conversation: core.NewConversation(fmt.Sprintf("run %d", i)),
				MaxTurns:     3,
			})
			if assert.NoError(t, err) {
				assert.Equal(t, []string{"A", "B", "A"}, testutil.Speakers(res.Messages()))
			}
		}(i)
	}
	wg.Wait()
}
