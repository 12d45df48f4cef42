package biz

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Step is one engine call inside a composite flow. Payload may read the
// outputs of earlier groups through the FlowContext; Fallback supplies
// the substitute output when a non-critical step fails.
type Step struct {
	Name    string
	Engine  string
	Method  string
	Path    string
	Timeout time.Duration
	// Critical steps abort the whole flow on failure. Non-critical
	// steps land in the degraded list and the flow continues.
	Critical bool
	// When skips the step entirely when it returns false. Nil means
	// always run.
	When     func(fc *FlowContext) bool
	Payload  func(fc *FlowContext) map[string]any
	Fallback func(fc *FlowContext) map[string]any
}

// Group is either a single sequential step or a set of steps executed
// concurrently. Parallel members never cancel each other; the group
// waits for every member before the flow moves on.
type Group struct {
	Steps []Step
}

// Seq wraps a single step as a sequential group.
func Seq(s Step) Group {
	return Group{Steps: []Step{s}}
}

// Parallel groups steps for concurrent execution.
func Parallel(steps ...Step) Group {
	return Group{Steps: steps}
}

// FlowContext accumulates step outputs and the degraded list while a
// flow runs. It is safe for concurrent use by parallel group members.
type FlowContext struct {
	Flow string

	mu       sync.Mutex
	results  map[string]map[string]any
	degraded []string
}

// Seed stores a step output without invoking an engine, used when a
// stage's input arrives directly from the caller.
func (fc *FlowContext) Seed(step string, out map[string]any) {
	fc.store(step, out)
}

func (fc *FlowContext) store(step string, out map[string]any) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if out == nil {
		out = map[string]any{}
	}
	fc.results[step] = out
}

func (fc *FlowContext) markDegraded(step string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.degraded = append(fc.degraded, step)
}

// Result returns a step's output map, or an empty map if the step did
// not run or failed without a fallback.
func (fc *FlowContext) Result(step string) map[string]any {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if out, ok := fc.results[step]; ok {
		return out
	}
	return map[string]any{}
}

// Value returns one field from a step's output.
func (fc *FlowContext) Value(step, key string) any {
	return fc.Result(step)[key]
}

// String returns a step output field as a string, or "" when absent.
func (fc *FlowContext) String(step, key string) string {
	if s, ok := fc.Value(step, key).(string); ok {
		return s
	}
	return ""
}

// Float returns a step output field as a float64, or 0 when absent.
func (fc *FlowContext) Float(step, key string) float64 {
	if f, ok := fc.Value(step, key).(float64); ok {
		return f
	}
	return 0
}

// List returns a step output field as a slice, or nil when absent.
func (fc *FlowContext) List(step, key string) []any {
	if l, ok := fc.Value(step, key).([]any); ok {
		return l
	}
	return nil
}

// Map returns a step output field as a map, or nil when absent.
func (fc *FlowContext) Map(step, key string) map[string]any {
	if m, ok := fc.Value(step, key).(map[string]any); ok {
		return m
	}
	return nil
}

// Degraded returns the names of non-critical steps that failed, in the
// order their failures were observed. Never nil.
func (fc *FlowContext) Degraded() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]string, len(fc.degraded))
	copy(out, fc.degraded)
	return out
}

// FlowAbortError reports a critical step failure that stopped a flow.
type FlowAbortError struct {
	Flow string
	Step string
	Err  error
}

func (e *FlowAbortError) Error() string {
	return fmt.Sprintf("flow %s aborted at step %s: %v", e.Flow, e.Step, e.Err)
}

func (e *FlowAbortError) Unwrap() error {
	return e.Err
}

// FlowExecutor runs composite flows step group by step group. The same
// execution rules apply to every flow: a critical failure aborts
// immediately, a non-critical failure degrades and continues, and
// parallel members always run to completion.
type FlowExecutor struct {
	engines EngineInvoker
	logger  *log.Helper
}

// NewFlowExecutor creates the shared flow executor.
func NewFlowExecutor(engines EngineInvoker, logger log.Logger) *FlowExecutor {
	return &FlowExecutor{
		engines: engines,
		logger:  log.NewHelper(logger),
	}
}

// Run starts a fresh FlowContext and executes the groups on it.
func (e *FlowExecutor) Run(ctx context.Context, flow string, groups []Group) (*FlowContext, error) {
	fc := &FlowContext{
		Flow:    flow,
		results: make(map[string]map[string]any),
	}
	return fc, e.RunOn(ctx, fc, groups)
}

// RunOn executes groups on an existing FlowContext. Flows that branch at
// runtime run a first phase, inspect the outputs, and continue with the
// branch's groups on the same context.
func (e *FlowExecutor) RunOn(ctx context.Context, fc *FlowContext, groups []Group) error {
	for _, g := range groups {
		if len(g.Steps) == 1 {
			if err := e.runStep(ctx, fc, g.Steps[0]); err != nil {
				return err
			}
			continue
		}

		// Parallel group: every member runs to completion before the
		// flow proceeds, regardless of sibling failures.
		var wg sync.WaitGroup
		errs := make([]error, len(g.Steps))
		for i := range g.Steps {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = e.runStep(ctx, fc, g.Steps[i])
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *FlowExecutor) runStep(ctx context.Context, fc *FlowContext, step Step) error {
	if step.When != nil && !step.When(fc) {
		return nil
	}

	method := step.Method
	if method == "" {
		method = http.MethodPost
	}

	var payload map[string]any
	if step.Payload != nil {
		payload = step.Payload(fc)
	}

	out, err := e.engines.Call(ctx, step.Engine, method, step.Path, payload, step.Timeout)
	if err == nil {
		fc.store(step.Name, out)
		return nil
	}

	if step.Critical {
		e.logger.Errorw("critical step failed, aborting flow",
			"flow", fc.Flow,
			"step", step.Name,
			"engine", step.Engine,
			"error", err,
			"type", "flow")
		return &FlowAbortError{Flow: fc.Flow, Step: step.Name, Err: err}
	}

	fc.markDegraded(step.Name)
	e.logger.Warnw("step degraded, continuing flow",
		"flow", fc.Flow,
		"step", step.Name,
		"engine", step.Engine,
		"error", err,
		"type", "degraded")

	if step.Fallback != nil {
		fc.store(step.Name, step.Fallback(fc))
	} else {
		fc.store(step.Name, map[string]any{})
	}
	return nil
}
