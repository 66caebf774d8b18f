// Package vmscript defines the narrow surface the debug adapter consumes
// from the host virtual machine: stack/frame access, PC-to-line mapping,
// type reflection, and pointer dereference. The VM itself — parsing,
// compiling, and executing the scripting language — is out of scope (see
// spec.md §1); this package only describes the shape the adapter needs, plus
// a small reference implementation (refvm.go) used by the test suite and, as
// an empty VM, by `glyph-dap serve`.
package vmscript

// PC is a bytecode address, in the same unit as a Function's code range.
type PC uint64

// Kind classifies a runtime Value the way the introspection tree's value
// projection needs to distinguish it (spec.md §4.4): the width-specific
// integer kinds collapse to a handful of rendering buckets, but the
// semantic kinds (enum, name, sprite id, ...) stay distinct because they
// render differently even though they share a representation.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindName
	KindSpriteID
	KindTextureID
	KindTranslationID
	KindSound
	KindColor
	KindStateLabel
	KindEnum
	KindClassPointer
	KindObjectPointer
	KindFunctionPointer
)

// Field describes one declared field of a class or struct type.
type Field struct {
	Name string
	Type Type
}

// Type is a VM-side type descriptor.
type Type interface {
	Kind() Kind
	// Name is the descriptive type name (e.g. "Actor", "int32", "MyEnum").
	Name() string
	// PointedType is valid when Kind is KindClassPointer, KindObjectPointer,
	// or KindFunctionPointer; it is the type on the other end of the pointer.
	PointedType() Type
	// Fields lists the type's own and inherited fields, in declaration
	// order, inheritance-root first. Only meaningful when this Type is
	// itself a class/struct type, i.e. typically the result of
	// PointedType() on a KindObjectPointer Type.
	Fields() []Field
}

// Value is an opaque VM runtime value. Callers use the typed accessor that
// matches the Value's Type().Kind().
type Value interface {
	Type() Type
	// Int returns the value as a signed 64-bit integer for any integer-like
	// Kind (including Bool, Name, SpriteID, ..., Color, Enum).
	Int() int64
	// Float returns the value for KindFloat32/KindFloat64.
	Float() float64
	// Str returns the value for KindString.
	Str() string
	// PointerAddr returns the raw pointer bits for any pointer Kind.
	PointerAddr() uint64
	// FunctionName returns the symbolic name for KindFunctionPointer.
	FunctionName() string
}

// Object is a dereferenced class/struct instance.
type Object interface {
	Type() Type
	// Field looks up a declared field (including inherited) by
	// case-insensitive name.
	Field(name string) (Value, bool)
}

// Function is a compiled script function.
type Function interface {
	// QualifiedName is "Class.Function"; comparisons against it must be
	// case-insensitive end to end (spec.md §9 open question).
	QualifiedName() string
	IsNative() bool
	// SourcePath is the qualified script path ("archive:path") owning this
	// function, empty for native functions.
	SourcePath() string
	// LineRange is the inclusive [first, last] source line range covered by
	// this function's line table; used to build the FunctionLineMap.
	LineRange() (first, last int)
	// CodeRange is the half-open [start, end) bytecode address range.
	CodeRange() (start, end PC)
	// PCToLine maps a program counter to a source line, or ok=false if pc
	// is outside the function or the function carries no line info
	// (native functions always return ok=false).
	PCToLine(pc PC) (line int, ok bool)
	// IsAction reports whether this is an action function: its first three
	// implicit parameters are self, invoker, state_pointer.
	IsAction() bool
	// IsMethod reports whether this function's first implicit parameter is
	// self (true for both methods and actions).
	IsMethod() bool
	// ArgumentTypes lists the function's parameter types, implicit
	// parameters (self/invoker/state_pointer) first.
	ArgumentTypes() []Type
}

// Frame is one VM call activation.
type Frame interface {
	Function() Function
	PC() PC

	NumIntReg() int
	NumFloatReg() int
	NumStringReg() int
	NumPointerReg() int
	NumParamReg() int

	IntReg(i int) Value
	FloatReg(i int) Value
	StringReg(i int) Value
	PointerReg(i int) Value
	ParamReg(i int) Value
}

// Stack is a snapshot of the frames of one VM call stack at a paused
// instant, oldest (outermost) frame first.
type Stack interface {
	Frames() []Frame
}

// VM is the abstract operations the debug adapter needs from the host
// virtual machine.
type VM interface {
	// Namespaces enumerates every loaded namespace (archive-scoped symbol
	// table), for the binary cache's scan.
	Namespaces() []Namespace
	// ResolveFunction looks up a function by its "Class.Function" qualified
	// name, case-insensitively.
	ResolveFunction(qualifiedName string) (Function, bool)
	// Deref dereferences a pointer-kind Value. It returns ok=false without
	// attempting the dereference when the pointer fails the VM's validity
	// checks (low-32-bits-zero sentinel, object magic number — spec.md
	// §4.4 "Pointer safety").
	Deref(ptr Value) (Object, bool)
}

// Namespace is one archive-scoped symbol table, enumerated during a binary
// cache scan.
type Namespace struct {
	Name    string
	Classes []Type
	Structs []Type
	// Functions lists every function declared directly on this namespace's
	// classes/structs (methods), flattened for the scanner's convenience.
	Functions []Function
}
