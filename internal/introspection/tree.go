package introspection

import (
	"strconv"
	"strings"

	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// Tree is the whole introspection tree for one paused instant (spec.md §3
// "Node tree" lifecycle: scoped to one pause, discarded on resume).
type Tree struct {
	ids    *IdProvider
	vm     vmscript.VM
	byID   map[int]*Node
	thread *Node
}

// NewTree builds the root Thread node over stack. Children (frames, scopes,
// registers, values) are constructed lazily on first access.
func NewTree(ids *IdProvider, vm vmscript.VM, stack vmscript.Stack) *Tree {
	t := &Tree{ids: ids, vm: vm, byID: make(map[int]*Node)}
	t.thread = t.newThreadNode(stack)
	return t
}

// ResolveByID implements "resolve_children_by_parent_id" (spec.md §4.4).
func (t *Tree) ResolveByID(id int) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// ResolvePath implements the slash-joined, case-insensitive path resolver
// spec.md §4.4 describes, e.g. "1/Local/self/health".
func (t *Tree) ResolvePath(path string) (*Node, bool) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return nil, false
	}
	if parts[0] != "1" {
		return nil, false
	}
	cur := t.thread
	for _, part := range parts[1:] {
		next, ok := cur.Child(part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (t *Tree) register(n *Node) *Node {
	t.byID[n.ID] = n
	return n
}

func (t *Tree) newNode(kind Kind, name string, parent *Node) *Node {
	return t.register(newNode(t.ids, kind, name, parent))
}

// newThreadNode builds Thread(id=1); its children are the VM frames,
// reversed so the topmost (innermost) frame is DAP index 0 (spec.md §4.4
// "Root structure"). The id drawn from the provider is consumed but replaced
// by 1, so every pause's tree answers the same DAP threadId.
func (t *Tree) newThreadNode(stack vmscript.Stack) *Node {
	n := newNode(t.ids, KindThread, "Thread", nil)
	n.ID = 1
	t.register(n)
	frames := stack.Frames()
	n.build = func() map[string]*Node {
		children := make(map[string]*Node, len(frames))
		for i := 0; i < len(frames); i++ {
			frame := frames[len(frames)-1-i]
			fnode := t.newFrameNode(frame, i)
			children[strconv.Itoa(i)] = fnode
		}
		n.order = indexOrder(len(frames))
		return children
	}
	return n
}

func indexOrder(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// newFrameNode builds a StackFrame node. Its children are "Local"
// (omitted for native frames) and "Registers".
func (t *Tree) newFrameNode(frame vmscript.Frame, depth int) *Node {
	fn := frame.Function()
	name := fn.QualifiedName()
	n := t.newNode(KindStackFrame, name, nil)
	n.frameRef = &frameData{Frame: frame, PC: frame.PC()}
	n.build = func() map[string]*Node {
		children := make(map[string]*Node)
		order := []string{}
		if !fn.IsNative() {
			children["local"] = t.newLocalScopeNode(frame)
			order = append(order, "local")
		}
		children["registers"] = t.newRegistersScopeNode(frame)
		order = append(order, "registers")
		n.order = order
		return children
	}
	return n
}

// Implicit parameter slots, keyed by name (spec.md §4.4 "LocalScope.children").
const (
	paramSelf         = "self"
	paramInvoker      = "invoker"
	paramStatePointer = "state_pointer"
)

// newLocalScopeNode builds the "Local" scope: self (method), plus invoker
// and state_pointer (action), resolved against the frame's argument-type
// vector and pointer-register bank. Grounded on LocalScopeStateNode.cpp.
func (t *Tree) newLocalScopeNode(frame vmscript.Frame) *Node {
	n := t.newNode(KindLocalScope, "Local", nil)
	fn := frame.Function()
	n.build = func() map[string]*Node {
		children := make(map[string]*Node)
		order := []string{}
		names := localNames(fn)
		for _, name := range names {
			idx := paramIndex(fn, name)
			if idx < 0 || idx >= frame.NumPointerReg() || idx >= len(fn.ArgumentTypes()) {
				continue
			}
			val := frame.PointerReg(idx)
			children[name] = t.newValueNode(name, val)
			order = append(order, name)
		}
		n.order = order
		return children
	}
	return n
}

func localNames(fn vmscript.Function) []string {
	if fn.IsAction() {
		return []string{paramSelf, paramInvoker, paramStatePointer}
	}
	if fn.IsMethod() {
		return []string{paramSelf}
	}
	return nil
}

func paramIndex(fn vmscript.Function, name string) int {
	switch name {
	case paramSelf:
		return 0
	case paramInvoker:
		return 1
	case paramStatePointer:
		if fn.IsAction() {
			return 2
		}
		return 1
	default:
		return -1
	}
}

// newRegistersScopeNode builds the "Registers" scope, with the five fixed
// register-bank children (spec.md §4.4 "RegistersScope.children").
func (t *Tree) newRegistersScopeNode(frame vmscript.Frame) *Node {
	n := t.newNode(KindRegistersScope, "Registers", nil)
	n.build = func() map[string]*Node {
		banks := []struct {
			name  string
			count int
			get   func(int) vmscript.Value
			kind  string
		}{
			{"Params", frame.NumParamReg(), frame.ParamReg, "Params"},
			{"IntReg", frame.NumIntReg(), frame.IntReg, "Int"},
			{"FloatReg", frame.NumFloatReg(), frame.FloatReg, "Float"},
			{"StringReg", frame.NumStringReg(), frame.StringReg, "String"},
			{"PointerReg", frame.NumPointerReg(), frame.PointerReg, "Pointer"},
		}
		children := make(map[string]*Node, len(banks))
		order := make([]string, 0, len(banks))
		for _, bank := range banks {
			children[strings.ToLower(bank.name)] = t.newRegisterBankNode(bank.name, bank.kind, bank.count, bank.get)
			order = append(order, strings.ToLower(bank.name))
		}
		n.order = order
		return children
	}
	return n
}

// newRegisterBankNode builds one indexed register bank (e.g. "IntReg"),
// whose children are decimal-string indices. Grounded on RegistersNode's
// GetChildNames/GetChildNode in RegistersScopeStateNode.cpp.
func (t *Tree) newRegisterBankNode(displayName, kindLabel string, count int, get func(int) vmscript.Value) *Node {
	n := t.newNode(KindRegisterBank, displayName, nil)
	n.TypeName = kindLabel + " Registers"
	n.ValueText = kindLabel + "[" + strconv.Itoa(count) + "]"
	n.build = func() map[string]*Node {
		children := make(map[string]*Node, count)
		order := make([]string, count)
		for i := 0; i < count; i++ {
			idx := strconv.Itoa(i)
			children[idx] = t.newValueNode(idx, get(i))
			order[i] = idx
		}
		n.order = order
		return children
	}
	return n
}

// newValueNode builds a leaf or object node for val, projecting it per
// value.go's ProjectValue. Object/struct pointers get an ObjectValue node
// whose children are the dereferenced object's declared fields (spec.md
// §4.4 "Field enumeration"); everything else is a LeafValue.
func (t *Tree) newValueNode(name string, val vmscript.Value) *Node {
	typeName, valueText := ProjectValue(t.vm, val)

	if val.Type().Kind() != vmscript.KindObjectPointer {
		n := t.newNode(KindLeafValue, name, nil)
		n.TypeName, n.ValueText = typeName, valueText
		return n
	}

	n := t.newNode(KindObjectValue, name, nil)
	n.TypeName, n.ValueText = typeName, valueText
	if !pointerValid(val) {
		return n
	}
	obj, ok := t.vm.Deref(val)
	if !ok {
		return n
	}
	n.build = func() map[string]*Node {
		fields := obj.Type().Fields()
		children := make(map[string]*Node, len(fields))
		order := make([]string, 0, len(fields))
		for _, f := range fields {
			fv, ok := obj.Field(f.Name)
			if !ok {
				continue
			}
			lname := strings.ToLower(f.Name)
			children[lname] = t.newValueNode(lname, fv)
			order = append(order, lname)
		}
		n.order = order
		return children
	}
	return n
}
