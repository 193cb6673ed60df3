package conductor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentconductor/core"
	"github.com/hupe1980/agentconductor/logging"
	"github.com/hupe1980/agentconductor/model"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks are observers: they run synchronously, and an error returned by
// one is logged but never changes the course of the run.
type CallbackType string

const (
	// CallbackBeforeRun fires once a run has been accepted, before its first turn.
	CallbackBeforeRun CallbackType = "before_run"
	// CallbackBeforeTurn fires after the speaking agent was resolved.
	CallbackBeforeTurn CallbackType = "before_turn"
	// CallbackAfterTurn fires once the turn's messages were appended.
	CallbackAfterTurn CallbackType = "after_turn"
	// CallbackBeforeProvider fires right before the completion provider is called.
	CallbackBeforeProvider CallbackType = "before_provider"
	// CallbackAfterProvider fires after the provider returned, successfully or not.
	CallbackAfterProvider CallbackType = "after_provider"
	// CallbackBeforeTool fires before an attached, registered tool is invoked.
	CallbackBeforeTool CallbackType = "before_tool"
	// CallbackAfterTool fires after the tool returned.
	CallbackAfterTool CallbackType = "after_tool"
	// CallbackOnError fires when a run aborts with an error.
	CallbackOnError CallbackType = "on_error"
	// CallbackOnRunComplete fires when a run reaches a terminal status.
	CallbackOnRunComplete CallbackType = "on_run_complete"
)

// CallbackContext carries the information available at a lifecycle point.
// Fields that do not apply to the callback type are zero.
type CallbackContext struct {
	CallbackType CallbackType
	RunID        string
	Turn         int
	Agent        core.Agent
	Request      *model.Request
	Response     *model.Response
	ToolCall     *core.ToolCall
	ToolResult   string
	Err          error
	Result       *Result
	Metadata     map[string]any
}

// Callback is an execution lifecycle hook.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
//	cb := NewFunctionCallback(CallbackAfterTurn, func(ctx context.Context, cc *CallbackContext) error {
//	    log.Printf("turn %d by %s", cc.Turn, cc.Agent.Name)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type. Registration and execution are
// safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callbacks; they run in registration order.
func (cm *CallbackManager) RegisterCallback(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// ExecuteCallbacks runs every callback of the given type, even when an
// earlier one fails, and returns the joined errors. Panics are converted to
// errors.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	var errs []error
	for _, cb := range callbacks {
		if err := safeExecute(ctx, cb, callbackCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeExecute(ctx context.Context, cb Callback, callbackCtx *CallbackContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("callback %s panicked: %v", cb.Type(), rec)
		}
	}()
	return cb.Execute(ctx, callbackCtx)
}

// LoggingCallback writes one structured line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for the given type.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: callbackType, logger: logging.OrNoOp(logger)}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the event with run, turn and agent information.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	args := []any{"run_id", cc.RunID, "turn", cc.Turn, "agent_id", cc.Agent.ID, "agent", cc.Agent.Name}
	if cc.ToolCall != nil {
		args = append(args, "tool", cc.ToolCall.Name)
	}
	if cc.Result != nil {
		args = append(args, "status", cc.Result.Status, "turns", cc.Result.TurnsTaken)
	}
	if cc.Err != nil {
		args = append(args, "error", cc.Err.Error())
		c.logger.Warn(string(c.callbackType), args...)
		return nil
	}
	c.logger.Debug(string(c.callbackType), args...)
	return nil
}
