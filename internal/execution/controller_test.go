package execution

import (
	"sync"
	"testing"
	"time"

	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

type fakeBreakpoints struct {
	at func(vmscript.Frame, vmscript.PC) bool
}

func (f *fakeBreakpoints) IsAtBreakpoint(frame vmscript.Frame, pc vmscript.PC) bool {
	if f.at == nil {
		return false
	}
	return f.at(frame, pc)
}

type recordingEvents struct {
	mu       sync.Mutex
	stopped  []StopReason
	continued int
}

func (r *recordingEvents) Stopped(reason StopReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, reason)
}

func (r *recordingEvents) Continued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continued++
}

func (r *recordingEvents) stoppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stopped)
}

func frame(name string) *vmscript.RefFrame {
	return &vmscript.RefFrame{Fn: &vmscript.RefFunction{Qname: name}}
}

func TestBreakpointHitPausesAndBlocksVMThread(t *testing.T) {
	PauseQuantum = 5 * time.Millisecond
	bp := &fakeBreakpoints{at: func(vmscript.Frame, vmscript.PC) bool { return true }}
	ev := &recordingEvents{}
	c := New(bp, ev)

	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{frame("A.F")}}
	done := make(chan struct{})
	go func() {
		c.HandleInstruction(stack, 0)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("expected HandleInstruction to block while Paused")
	default:
	}
	if c.State() != Paused {
		t.Fatalf("expected Paused, got %v", c.State())
	}
	if ev.stoppedCount() != 1 {
		t.Fatalf("expected one stopped event, got %d", ev.stoppedCount())
	}

	c.Continue()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected HandleInstruction to unblock after Continue")
	}
}

func TestCloseForcesRunningAndUnblocks(t *testing.T) {
	PauseQuantum = 5 * time.Millisecond
	bp := &fakeBreakpoints{at: func(vmscript.Frame, vmscript.PC) bool { return true }}
	ev := &recordingEvents{}
	c := New(bp, ev)
	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{frame("A.F")}}

	done := make(chan struct{})
	go func() {
		c.HandleInstruction(stack, 0)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	c.Close()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected Close to unblock the VM thread")
	}
	if c.State() != Running {
		t.Fatalf("expected Running after Close, got %v", c.State())
	}
}

func TestStepOverFiresAtSameOrShallowerDepth(t *testing.T) {
	bp := &fakeBreakpoints{}
	ev := &recordingEvents{}
	c := New(bp, ev)

	outer := frame("A.Outer")
	inner := frame("A.Inner")
	c.state = Paused
	c.Step(outer, StepOver)

	// still inside a deeper call: should not fire
	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{outer, inner}}
	verdict := c.checkState(stack, inner, 0)
	if verdict == verdictStep {
		t.Fatal("expected no step fire while deeper than the stepped frame")
	}

	// back at the same frame: should fire
	stack2 := &vmscript.RefStack{StackFrames: []vmscript.Frame{outer}}
	verdict2 := c.checkState(stack2, outer, 0)
	if verdict2 != verdictStep {
		t.Fatal("expected step to fire at the same depth as the stepped frame")
	}
}

func TestStepOutFiresWhenFrameGone(t *testing.T) {
	bp := &fakeBreakpoints{}
	ev := &recordingEvents{}
	c := New(bp, ev)

	inner := frame("A.Inner")
	outer := frame("A.Outer")
	c.state = Paused
	c.Step(inner, StepOut)

	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{outer}}
	verdict := c.checkState(stack, outer, 0)
	if verdict != verdictStep {
		t.Fatal("expected step to fire once the stepped frame is no longer present")
	}
}

func TestPauseCommandTakesEffectAtNextHook(t *testing.T) {
	PauseQuantum = 5 * time.Millisecond
	bp := &fakeBreakpoints{}
	ev := &recordingEvents{}
	c := New(bp, ev)
	c.Pause()

	stack := &vmscript.RefStack{StackFrames: []vmscript.Frame{frame("A.F")}}
	done := make(chan struct{})
	go func() {
		c.HandleInstruction(stack, 0)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	if ev.stoppedCount() != 1 || ev.stopped[0] != ReasonPause {
		t.Fatalf("expected one stopped(paused) event, got %+v", ev.stopped)
	}
	c.Continue()
	<-done
}
