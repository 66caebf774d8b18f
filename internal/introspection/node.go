// Package introspection implements the Runtime Introspection Tree
// (spec.md §4.4): an id-addressed tree of nodes — threads, stack frames,
// scopes, and values — built fresh each time the VM pauses and projected
// into DAP Scope/Variable/StackFrame payloads on demand.
//
// Grounded on original_source/.../Nodes/{ValueStateNode,
// RegistersScopeStateNode, LocalScopeStateNode}.cpp: the node kinds, their
// children, and the value-rendering switch all follow those files' shape,
// generalized from the host's PType/VMValue reflection to this repo's
// vmscript.Type/Value.
package introspection

import (
	"fmt"
	"strings"
	"sync"

	"github.com/glyphlang/glyph-dap/internal/vmscript"
	"github.com/google/go-dap"
)

// Kind distinguishes the node sum type (spec.md §3 "Node kinds").
type Kind int

const (
	KindThread Kind = iota
	KindStackFrame
	KindLocalScope
	KindRegistersScope
	KindRegisterBank
	KindObjectValue
	KindLeafValue
)

// IdProvider allocates monotonically increasing node ids, process-wide.
// Ids are never reused within a session (spec.md §3 "Node tree" lifecycle),
// so the counter is retained across tree discards at resume.
type IdProvider struct {
	mu   sync.Mutex
	next int
}

// NewIdProvider creates a provider whose first id is 1 (0 is reserved to
// mean "no handle" in DAP's variablesReference/frameId conventions).
func NewIdProvider() *IdProvider {
	return &IdProvider{next: 1}
}

// Next returns the next unused id.
func (p *IdProvider) Next() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	return id
}

// Node is one element of the introspection tree. Every node is addressable
// by its id (for DAP variablesReference/frameId lookups) and exposes named
// children on demand (spec.md §4.4 "By id"/"By path" resolution).
type Node struct {
	ID     int
	Kind   Kind
	Name   string
	Parent *Node

	mu       sync.Mutex
	children map[string]*Node
	order    []string
	build    func() map[string]*Node // lazily constructs children once (invariant I5)
	built    bool

	// Leaf/value payload, populated for KindLeafValue/KindObjectValue nodes.
	TypeName    string
	ValueText   string
	frameRef    *frameData
}

type frameData struct {
	Frame vmscript.Frame
	PC    vmscript.PC
}

func newNode(ids *IdProvider, kind Kind, name string, parent *Node) *Node {
	return &Node{ID: ids.Next(), Kind: kind, Name: name, Parent: parent}
}

// Children returns this node's children, building them on first call and
// memoizing thereafter (invariant I5: built at most once per parent
// lifetime). Order matches the order children were declared.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.built {
		n.built = true
		if n.build != nil {
			// build() sets n.order itself (construction order matters here,
			// e.g. self before invoker, Params before IntReg): fall back to a
			// sorted key list only if it left the order unset.
			n.children = n.build()
			if len(n.order) == 0 && len(n.children) > 0 {
				for name := range n.children {
					n.order = append(n.order, name)
				}
				sortStable(n.order)
			}
		}
	}
	out := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

// Child resolves one named child, case-insensitively for identifier names.
func (n *Node) Child(name string) (*Node, bool) {
	n.Children() // force build
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[strings.ToLower(name)]
	return c, ok
}

func sortStable(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ToScope serializes a scope-kind node (LocalScope/RegistersScope) to a DAP
// Scope. Only meaningful for those kinds.
func (n *Node) ToScope() dap.Scope {
	return dap.Scope{
		Name:               n.Name,
		VariablesReference: n.ID,
		Expensive:          n.Kind == KindRegistersScope,
	}
}

// ToVariable serializes a value-kind node (LeafValue/ObjectValue/RegisterBank)
// to a DAP Variable.
func (n *Node) ToVariable() dap.Variable {
	ref := 0
	if n.Kind == KindObjectValue || n.Kind == KindRegisterBank || n.Kind == KindLocalScope || n.Kind == KindRegistersScope {
		ref = n.ID
	}
	return dap.Variable{
		Name:               n.Name,
		Type:               n.TypeName,
		Value:              n.ValueText,
		VariablesReference: ref,
	}
}

// ToStackFrame serializes a KindStackFrame node to a DAP StackFrame
// (spec.md §4.5 stackTrace shape).
func (n *Node) ToStackFrame(src *dap.Source) dap.StackFrame {
	fd := n.frameRef
	name := n.Name
	line := 0
	var source *dap.Source
	fn := fd.Frame.Function()
	if fn.IsNative() {
		name += " <Native>"
	} else {
		if l, ok := fn.PCToLine(fd.PC); ok {
			line = l
		}
		source = src
	}
	sf := dap.StackFrame{
		Id:                          n.ID,
		Name:                        name,
		Line:                        line,
		Column:                      1,
		InstructionPointerReference: fmt.Sprintf("0x%x", uint64(fd.PC)),
	}
	if source != nil {
		sf.Source = *source
	}
	return sf
}
