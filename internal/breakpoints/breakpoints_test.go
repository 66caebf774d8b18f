package breakpoints

import (
	"testing"

	"github.com/glyphlang/glyph-dap/internal/scriptref"
	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

func buildVM() *vmscript.RefVM {
	vm := vmscript.NewRefVM()
	fn := &vmscript.RefFunction{
		Qname:  "Actor.Tick",
		Source: "pk3:scripts/actor.zs",
		Start:  0, End: 100,
		LineTable: []vmscript.PCLine{{PC: 0, Line: 10}, {PC: 10, Line: 11}, {PC: 20, Line: 12}},
	}
	native := &vmscript.RefFunction{Qname: "Actor.NativeThing", Native: true}
	vm.AddNamespace(vmscript.Namespace{Functions: []vmscript.Function{fn, native}})
	return vm
}

func frameAt(vm *vmscript.RefVM, name string, pc vmscript.PC) *vmscript.RefFrame {
	fn, _ := vm.ResolveFunction(name)
	return &vmscript.RefFrame{Fn: fn, Pc: pc}
}

func TestSourceBreakpointSuppressesRepeatedFiring(t *testing.T) {
	vm := buildVM()
	e := New(vm, nil, nil)

	verified, err := e.SetSourceBreakpoints(dap.Source{Path: "pk3:scripts/actor.zs"}, []int{11})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(verified) != 1 || !verified[0].Verified {
		t.Fatalf("expected one verified breakpoint, got %+v", verified)
	}

	frame := frameAt(vm, "Actor.Tick", 10)
	if !e.IsAtBreakpoint(frame, 10) {
		t.Fatal("expected first hit on line 11 to halt")
	}
	if e.IsAtBreakpoint(frame, 11) {
		t.Fatal("expected repeated instructions on the same line to be suppressed")
	}

	frame2 := frameAt(vm, "Actor.Tick", 20)
	if e.IsAtBreakpoint(frame2, 20) {
		t.Fatal("line 12 has no breakpoint, should not halt")
	}

	frame3 := frameAt(vm, "Actor.Tick", 10)
	if !e.IsAtBreakpoint(frame3, 10) {
		t.Fatal("returning to line 11 after leaving it should halt again")
	}
}

func TestFunctionBreakpointUnknownName(t *testing.T) {
	vm := buildVM()
	e := New(vm, nil, nil)

	verified, errs := e.SetFunctionBreakpoints([]string{"Actor.Tick", "Actor.DoesNotExist"})
	if len(verified) != 2 {
		t.Fatalf("expected 2 results, got %d", len(verified))
	}
	if !verified[0].Verified {
		t.Fatal("expected Actor.Tick to verify")
	}
	if verified[1].Verified {
		t.Fatal("expected Actor.DoesNotExist to fail verification")
	}
	if len(errs) != 1 {
		t.Fatalf("expected one UnknownFunction error, got %d", len(errs))
	}
}

func TestFunctionBreakpointTakesPrecedence(t *testing.T) {
	vm := buildVM()
	e := New(vm, nil, nil)
	e.SetFunctionBreakpoints([]string{"Actor.Tick"})

	frame := frameAt(vm, "Actor.Tick", 0)
	if !e.IsAtBreakpoint(frame, 0) {
		t.Fatal("expected function breakpoint to halt on first hit")
	}
	if e.IsAtBreakpoint(frame, 10) {
		t.Fatal("expected function breakpoint to suppress repeat halts on the same frame")
	}
}

func TestSetInstructionBreakpointsNotSupported(t *testing.T) {
	vm := buildVM()
	e := New(vm, nil, nil)
	if err := e.SetInstructionBreakpoints(); err == nil {
		t.Fatal("expected NotSupported error")
	}
}

func TestInvalidateForScriptEmitsChangeAndClears(t *testing.T) {
	vm := buildVM()
	var events []ChangeEvent
	e := New(vm, nil, func(ev ChangeEvent) { events = append(events, ev) })

	e.SetSourceBreakpoints(dap.Source{Path: "pk3:scripts/actor.zs"}, []int{11})
	ref := scriptref.Derive("pk3:scripts/actor.zs")
	e.InvalidateForScript(ref)

	if len(events) != 1 || events[0].Verified {
		t.Fatalf("expected one verified=false change event, got %+v", events)
	}
	frame := frameAt(vm, "Actor.Tick", 10)
	if e.IsAtBreakpoint(frame, 10) {
		t.Fatal("expected breakpoint to be gone after invalidation")
	}
}
