package vmscript

// BasicType is a concrete Type for scalar and pointer kinds — sufficient for
// everything except class/struct types, which need NewObjectType below.
type BasicType struct {
	K       Kind
	N       string
	Pointed Type
	F       []Field
}

func (t *BasicType) Kind() Kind         { return t.K }
func (t *BasicType) Name() string       { return t.N }
func (t *BasicType) PointedType() Type  { return t.Pointed }
func (t *BasicType) Fields() []Field    { return t.F }

// NewScalarType builds a Type for any non-pointer, non-object Kind.
func NewScalarType(kind Kind, name string) *BasicType {
	return &BasicType{K: kind, N: name}
}

// NewObjectType builds a class/struct Type with the given declared field
// list (already flattened through the inheritance chain, root first).
func NewObjectType(name string, fields []Field) *BasicType {
	return &BasicType{K: KindObjectPointer, N: name, F: fields}
}

// NewPointerType builds a pointer Type of the given Kind (ClassPointer,
// ObjectPointer, FunctionPointer) pointing at pointed.
func NewPointerType(kind Kind, pointed Type) *BasicType {
	name := "Pointer(" + pointed.Name() + ")"
	if kind == KindClassPointer {
		name = "ClassPointer(" + pointed.Name() + ")"
	}
	return &BasicType{K: kind, N: name, Pointed: pointed}
}

var (
	TypeInt32  = NewScalarType(KindInt32, "int32")
	TypeUint32 = NewScalarType(KindUint32, "uint32")
	TypeFloat64 = NewScalarType(KindFloat64, "double")
	TypeString = NewScalarType(KindString, "string")
	TypeBool   = NewScalarType(KindBool, "bool")
	TypeVoidPtr = NewScalarType(KindObjectPointer, "void")
)

// BasicValue is a concrete Value backing every Kind.
type BasicValue struct {
	T    Type
	I    int64
	F    float64
	S    string
	Addr uint64
	Fn   string
}

func (v *BasicValue) Type() Type           { return v.T }
func (v *BasicValue) Int() int64           { return v.I }
func (v *BasicValue) Float() float64       { return v.F }
func (v *BasicValue) Str() string          { return v.S }
func (v *BasicValue) PointerAddr() uint64  { return v.Addr }
func (v *BasicValue) FunctionName() string { return v.Fn }

func IntValue(t Type, i int64) *BasicValue         { return &BasicValue{T: t, I: i} }
func FloatValue(t Type, f float64) *BasicValue      { return &BasicValue{T: t, F: f} }
func StringValue(s string) *BasicValue              { return &BasicValue{T: TypeString, S: s} }
func BoolValue(b bool) *BasicValue {
	var i int64
	if b {
		i = 1
	}
	return &BasicValue{T: TypeBool, I: i}
}
func PointerValue(t Type, addr uint64) *BasicValue { return &BasicValue{T: t, Addr: addr} }
func FunctionPointerValue(t Type, name string) *BasicValue {
	return &BasicValue{T: t, Fn: name}
}

// objectMagic mirrors the host VM's own "object magic number" used to
// validate a pointer before dereferencing it (spec.md §4.4). The reference
// VM does not stamp it on allocated objects; RefVM.Deref checks heap
// membership instead, and nothing reads this constant.
const objectMagic uint32 = 0x474C5950 // "GLYP"

// BasicObject is a concrete Object.
type BasicObject struct {
	T      Type
	Fields map[string]Value
}

func (o *BasicObject) Type() Type { return o.T }

func (o *BasicObject) Field(name string) (Value, bool) {
	v, ok := o.Fields[lowerASCII(name)]
	return v, ok
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
