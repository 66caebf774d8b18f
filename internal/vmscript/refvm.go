package vmscript

import "strings"

// RefFunction is a reference Function implementation for tests: a
// function's line table is represented as a sorted list of
// (pc, line) breakpoints rather than a byte-for-byte VM encoding, since the
// debug adapter only ever needs PCToLine and the [first,last] range.
type RefFunction struct {
	Qname      string
	Native     bool
	Source     string
	Start, End PC
	LineTable  []PCLine // sorted ascending by PC
	Action     bool
	Method     bool
	ArgTypes   []Type
}

// PCLine pairs a bytecode address with the source line it begins.
type PCLine struct {
	PC   PC
	Line int
}

func (f *RefFunction) QualifiedName() string { return f.Qname }
func (f *RefFunction) IsNative() bool        { return f.Native }
func (f *RefFunction) SourcePath() string    { return f.Source }
func (f *RefFunction) CodeRange() (PC, PC)   { return f.Start, f.End }

func (f *RefFunction) LineRange() (int, int) {
	if len(f.LineTable) == 0 {
		return 0, 0
	}
	first, last := f.LineTable[0].Line, f.LineTable[0].Line
	for _, e := range f.LineTable {
		if e.Line < first {
			first = e.Line
		}
		if e.Line > last {
			last = e.Line
		}
	}
	return first, last
}

func (f *RefFunction) PCToLine(pc PC) (int, bool) {
	if f.Native || pc < f.Start || pc >= f.End || len(f.LineTable) == 0 {
		return 0, false
	}
	line := f.LineTable[0].Line
	found := false
	for _, e := range f.LineTable {
		if e.PC > pc {
			break
		}
		line = e.Line
		found = true
	}
	return line, found
}

func (f *RefFunction) IsAction() bool          { return f.Action }
func (f *RefFunction) IsMethod() bool          { return f.Method || f.Action }
func (f *RefFunction) ArgumentTypes() []Type   { return f.ArgTypes }

// RefFrame is a reference Frame implementation backed by plain slices.
type RefFrame struct {
	Fn                                        Function
	Pc                                        PC
	IntRegs, FloatRegs, StringRegs, PtrRegs, Params []Value
}

func (fr *RefFrame) Function() Function   { return fr.Fn }
func (fr *RefFrame) PC() PC               { return fr.Pc }
func (fr *RefFrame) NumIntReg() int       { return len(fr.IntRegs) }
func (fr *RefFrame) NumFloatReg() int     { return len(fr.FloatRegs) }
func (fr *RefFrame) NumStringReg() int    { return len(fr.StringRegs) }
func (fr *RefFrame) NumPointerReg() int   { return len(fr.PtrRegs) }
func (fr *RefFrame) NumParamReg() int     { return len(fr.Params) }
func (fr *RefFrame) IntReg(i int) Value   { return fr.IntRegs[i] }
func (fr *RefFrame) FloatReg(i int) Value { return fr.FloatRegs[i] }
func (fr *RefFrame) StringReg(i int) Value { return fr.StringRegs[i] }
func (fr *RefFrame) PointerReg(i int) Value { return fr.PtrRegs[i] }
func (fr *RefFrame) ParamReg(i int) Value   { return fr.Params[i] }

// RefStack is a reference Stack: Frames are stored oldest (outermost) first.
type RefStack struct {
	StackFrames []Frame
}

func (s *RefStack) Frames() []Frame { return s.StackFrames }

// RefVM is a reference VM implementation: an in-memory symbol table plus a
// heap of addressable objects, enough to drive the breakpoint engine,
// execution controller, and introspection tree end to end in tests without
// a real bytecode interpreter.
type RefVM struct {
	namespaces []Namespace
	functions  map[string]Function
	heap       map[uint64]*BasicObject
	nextAddr   uint64
}

// NewRefVM creates an empty reference VM.
func NewRefVM() *RefVM {
	return &RefVM{
		functions: make(map[string]Function),
		heap:      make(map[uint64]*BasicObject),
		nextAddr:  0x1000,
	}
}

// AddNamespace registers a namespace and indexes its functions for
// ResolveFunction.
func (vm *RefVM) AddNamespace(ns Namespace) {
	vm.namespaces = append(vm.namespaces, ns)
	for _, fn := range ns.Functions {
		vm.functions[strings.ToLower(fn.QualifiedName())] = fn
	}
}

func (vm *RefVM) Namespaces() []Namespace { return vm.namespaces }

func (vm *RefVM) ResolveFunction(qualifiedName string) (Function, bool) {
	fn, ok := vm.functions[strings.ToLower(qualifiedName)]
	return fn, ok
}

// Alloc places obj on the heap and returns its address, valid for Deref.
func (vm *RefVM) Alloc(obj *BasicObject) uint64 {
	addr := vm.nextAddr
	vm.nextAddr += 0x10
	vm.heap[addr] = obj
	return addr
}

// Deref implements the pointer-safety check from spec.md §4.4: the low 32
// bits of the address must be non-zero, and the address must name a live
// heap entry (standing in for the VM's object-magic-number check).
func (vm *RefVM) Deref(ptr Value) (Object, bool) {
	addr := ptr.PointerAddr()
	if uint32(addr) == 0 {
		return nil, false
	}
	obj, ok := vm.heap[addr]
	return obj, ok
}
