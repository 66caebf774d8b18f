// Package execution implements the Execution Controller (spec.md §4.3):
// the state machine coordinating the VM thread — which calls HandleInstruction
// synchronously on every bytecode instruction — with the asynchronous DAP
// session thread.
//
// Grounded on original_source/.../DebugExecutionManager.cpp: the
// state/pauseReason enums, CheckState's per-state dispatch, the
// 100ms-quantum spin-wait in HandleInstruction, and Open/Close/Continue/
// Pause/Step all carry over directly; only the breakpoint-precedence check
// and frame-walk delegate to this repo's internal/breakpoints and
// vmscript types instead of the host's native stack/frame pointers.
package execution

import (
	"context"
	"sync"
	"time"

	"github.com/glyphlang/glyph-dap/internal/tracing"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// State is the debugger's run state (spec.md §4.3 "States").
type State int

const (
	Running State = iota
	Paused
	Stepping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stepping:
		return "stepping"
	default:
		return "unknown"
	}
}

// StopReason is the DAP `stopped` event's reason field.
type StopReason string

const (
	ReasonBreakpoint StopReason = "breakpoint"
	ReasonPause      StopReason = "paused"
	ReasonStep       StopReason = "step"
)

// pauseVerdict is CheckState's internal result: whether to halt this
// instruction, keep running, or (while Stepping) fall back to Running
// because the stepped stack disappeared.
type pauseVerdict int

const (
	verdictNone pauseVerdict = iota
	verdictContinuing
	verdictBreakpoint
	verdictStep
	verdictPaused
)

// StepKind is the step granularity requested by `next`/`stepIn`/`stepOut`.
type StepKind int

const (
	StepIn StepKind = iota
	StepOut
	StepOver
)

// BreakpointChecker is the subset of breakpoints.Engine the controller
// needs: the hot-path predicate.
type BreakpointChecker interface {
	IsAtBreakpoint(frame vmscript.Frame, pc vmscript.PC) bool
}

// Events is the controller's event sink; Controller calls these instead of
// holding a direct DAP session reference, so internal/dapserver supplies
// the real send-to-client logic.
type Events interface {
	Stopped(reason StopReason)
	Continued()
}

// PauseQuantum is the spin-wait sleep interval while Paused (spec.md §4.3
// "coarse sleep ~100ms").
var PauseQuantum = 100 * time.Millisecond

// Controller is the Execution Controller.
type Controller struct {
	mu sync.Mutex

	state  State
	closed bool

	breakpoints BreakpointChecker
	events      Events

	stepFrame vmscript.Frame
	stepFunc  vmscript.Function
	stepKind  StepKind

	pausedStack vmscript.Stack
	pausedPC    vmscript.PC
}

// New creates a Controller in the Running state.
func New(breakpoints BreakpointChecker, events Events) *Controller {
	return &Controller{state: Running, breakpoints: breakpoints, events: events}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// checkState implements CheckState's per-state dispatch (spec.md §4.3
// table + "Step condition").
func (c *Controller) checkState(stack vmscript.Stack, topFrame vmscript.Frame, pc vmscript.PC) pauseVerdict {
	switch c.state {
	case Paused:
		// A `pause` command sets state to Paused directly, between
		// instructions, without emitting `stopped` itself (spec.md §4.3
		// "Paused (lazy; at next hook)"); the next hook entry that observes
		// it is what actually reports and blocks.
		return verdictPaused
	case Running:
		if topFrame != nil && c.breakpoints.IsAtBreakpoint(topFrame, pc) {
			return verdictBreakpoint
		}
		return verdictNone
	case Stepping:
		if topFrame != nil && c.breakpoints.IsAtBreakpoint(topFrame, pc) {
			return verdictBreakpoint
		}
		frames := stack.Frames()
		if len(frames) == 0 {
			return verdictContinuing
		}
		if c.stepFrame == nil {
			return verdictNone
		}
		idx := frameIndex(frames, c.stepFrame)
		switch c.stepKind {
		case StepIn:
			return verdictStep
		case StepOut:
			if idx == -1 {
				return verdictStep
			}
		case StepOver:
			if idx <= 0 {
				return verdictStep
			}
		}
		return verdictNone
	default:
		return verdictNone
	}
}

// frameIndex finds target's position in frames (topmost first, matching
// the host's TopFrame()-relative walk), or -1 if target is no longer
// present — the "original stack gone" signal for STEP_OUT.
func frameIndex(frames []vmscript.Frame, target vmscript.Frame) int {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i] == target {
			return len(frames) - 1 - i
		}
	}
	return -1
}

// HandleInstruction is the instruction hook, called synchronously on the VM
// thread for every bytecode instruction. It returns once the VM may
// proceed: immediately if not pausing, or after a Paused rendezvous.
func (c *Controller) HandleInstruction(stack vmscript.Stack, pc vmscript.PC) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	frames := stack.Frames()
	var topFrame vmscript.Frame
	if len(frames) > 0 {
		topFrame = frames[len(frames)-1]
	}

	verdict := c.checkState(stack, topFrame, pc)

	switch verdict {
	case verdictNone:
		c.mu.Unlock()
		return
	case verdictContinuing:
		c.state = Running
		c.resetStep()
		c.mu.Unlock()
		c.notifyContinued()
		return
	default:
		c.state = Paused
		c.resetStep()
		c.pausedStack = stack
		c.pausedPC = pc
		reason := ReasonBreakpoint
		switch verdict {
		case verdictStep:
			reason = ReasonStep
		case verdictPaused:
			reason = ReasonPause
		}
		c.mu.Unlock()
		c.notifyStopped(reason)
	}

	for {
		c.mu.Lock()
		if c.state != Paused || c.closed {
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		time.Sleep(PauseQuantum)
	}
}

// Paused returns the stack and pc snapshot captured at the most recent pause,
// and whether the controller is still paused against that snapshot. The DAP
// thread uses this to build the Introspection Tree (spec.md §3 "Node tree"
// lifecycle: one tree per pause).
func (c *Controller) Paused() (vmscript.Stack, vmscript.PC, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return nil, 0, false
	}
	return c.pausedStack, c.pausedPC, true
}

func (c *Controller) resetStep() {
	c.stepFrame = nil
	c.stepFunc = nil
}

// Open clears closed, allowing the controller to pause the VM thread again.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = false
}

// Close forces Running and flips closed, releasing any paused VM thread and
// guaranteeing subsequent HandleInstruction calls return immediately
// (spec.md §5 "Cancellation").
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Running
	c.closed = true
}

// Continue resumes a paused or stepping VM thread.
func (c *Controller) Continue() {
	_ = tracing.WithSpan(context.Background(), "execution.continue", func(context.Context) error {
		c.mu.Lock()
		c.state = Running
		c.resetStep()
		c.mu.Unlock()
		c.notifyContinuedLocked()
		return nil
	})
}

// Pause requests a pause; it takes effect lazily, at the next instruction
// hook (spec.md §4.3 "pause command ... Paused (lazy; at next hook)").
// Returns false if already paused.
func (c *Controller) Pause() bool {
	var ok bool
	_ = tracing.WithSpan(context.Background(), "execution.pause", func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == Paused {
			ok = false
			return nil
		}
		c.state = Paused
		ok = true
		return nil
	})
	return ok
}

// Step begins a step of the given kind from the given frame/function. Only
// valid from Paused; returns false otherwise.
func (c *Controller) Step(frame vmscript.Frame, kind StepKind) bool {
	var ok bool
	_ = tracing.WithSpan(context.Background(), "execution.step", func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != Paused {
			ok = false
			return nil
		}
		c.stepFrame = frame
		if frame != nil {
			c.stepFunc = frame.Function()
		}
		c.stepKind = kind
		c.state = Stepping
		ok = true
		return nil
	})
	return ok
}

// notifyStopped wraps the events.Stopped callback in a span named after the
// stop reason (spec.md §4.3 "every state transition is wrapped in a tracing
// span (`execution.<trigger>`)").
func (c *Controller) notifyStopped(reason StopReason) {
	_ = tracing.WithSpan(context.Background(), "execution."+string(reason), func(context.Context) error {
		if c.events != nil {
			c.events.Stopped(reason)
		}
		return nil
	})
}

// notifyContinued wraps the events.Continued callback in an
// "execution.continue" span, for the stack-gone fallback in
// HandleInstruction (Continue itself already spans the whole transition).
func (c *Controller) notifyContinued() {
	_ = tracing.WithSpan(context.Background(), "execution.continue", func(context.Context) error {
		c.notifyContinuedLocked()
		return nil
	})
}

func (c *Controller) notifyContinuedLocked() {
	if c.events != nil {
		c.events.Continued()
	}
}
