package observability

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentconductor/conductor"
	"github.com/hupe1980/agentconductor/core"
)

// RunRecorder turns conductor lifecycle callbacks into metrics.
type RunRecorder struct {
	metrics *Metrics
	now     func() time.Time
	// tool start times keyed by run id and call id
	started sync.Map
}

// NewRunRecorder creates a recorder writing to m.
func NewRunRecorder(m *Metrics) *RunRecorder {
	return &RunRecorder{metrics: m, now: time.Now}
}

// Register adds the recorder's callbacks to cm.
func (rr *RunRecorder) Register(cm *conductor.CallbackManager) {
	cm.RegisterCallback(
		conductor.NewFunctionCallback(conductor.CallbackBeforeRun, rr.beforeRun),
		conductor.NewFunctionCallback(conductor.CallbackAfterTurn, rr.afterTurn),
		conductor.NewFunctionCallback(conductor.CallbackBeforeTool, rr.beforeTool),
		conductor.NewFunctionCallback(conductor.CallbackAfterTool, rr.afterTool),
		conductor.NewFunctionCallback(conductor.CallbackOnRunComplete, rr.runComplete),
		conductor.NewFunctionCallback(conductor.CallbackOnError, rr.runFailed),
	)
}

func (rr *RunRecorder) beforeRun(context.Context, *conductor.CallbackContext) error {
	rr.metrics.activeRuns.Inc()
	return nil
}

func (rr *RunRecorder) afterTurn(_ context.Context, cc *conductor.CallbackContext) error {
	rr.metrics.turnsTotal.WithLabelValues(cc.Agent.Name).Inc()
	return nil
}

func (rr *RunRecorder) beforeTool(_ context.Context, cc *conductor.CallbackContext) error {
	if cc.ToolCall != nil {
		rr.started.Store(toolKey(cc), rr.now())
	}
	return nil
}

func (rr *RunRecorder) afterTool(_ context.Context, cc *conductor.CallbackContext) error {
	if cc.ToolCall == nil {
		return nil
	}
	var dur time.Duration
	if v, ok := rr.started.LoadAndDelete(toolKey(cc)); ok {
		dur = rr.now().Sub(v.(time.Time))
	}
	status := "ok"
	if cc.Err != nil {
		status = "error"
	}
	rr.metrics.RecordToolCall(cc.ToolCall.Name, status, dur)
	return nil
}

func (rr *RunRecorder) runComplete(_ context.Context, cc *conductor.CallbackContext) error {
	rr.metrics.activeRuns.Dec()
	if cc.Result == nil {
		return nil
	}
	status := string(cc.Result.Status)
	rr.metrics.runsTotal.WithLabelValues(status).Inc()
	rr.metrics.runDuration.WithLabelValues(status).Observe(cc.Result.Duration().Seconds())

	counts := map[core.Role]int{}
	for _, m := range cc.Result.Messages() {
		counts[m.Role]++
	}
	for role, n := range counts {
		rr.metrics.messagesTotal.WithLabelValues(string(role)).Add(float64(n))
	}
	return nil
}

func (rr *RunRecorder) runFailed(context.Context, *conductor.CallbackContext) error {
	rr.metrics.activeRuns.Dec()
	rr.metrics.runsTotal.WithLabelValues("failed").Inc()
	return nil
}

func toolKey(cc *conductor.CallbackContext) string {
	return cc.RunID + "/" + cc.ToolCall.ID
}
