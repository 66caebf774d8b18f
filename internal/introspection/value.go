package introspection

import (
	"fmt"

	"github.com/glyphlang/glyph-dap/internal/vmscript"
)

// ProjectValue renders a typed VM value into the (type_name, value_text)
// pair spec.md §4.4 "Value projection" describes, grounded on
// ValueStateNode::ToVariable. It never recurses more than one pointer deep
// (class pointers never recurse at all, to avoid cycles).
func ProjectValue(vm vmscript.VM, val vmscript.Value) (typeName, valueText string) {
	t := val.Type()
	switch t.Kind() {
	case vmscript.KindString:
		if val.Str() == "" {
			return "string", "<EMPTY>"
		}
		return "string", fmt.Sprintf("%q", val.Str())

	case vmscript.KindClassPointer:
		pointed := t.PointedType()
		name := "?"
		if pointed != nil {
			name = pointed.Name()
		}
		return "ClassPointer", name

	case vmscript.KindFunctionPointer:
		return "FunctionPointer", val.FunctionName()

	case vmscript.KindObjectPointer:
		pointed := t.PointedType()
		pname := "void"
		if pointed != nil {
			pname = pointed.Name()
		}
		typeName = fmt.Sprintf("Pointer(%s)", pname)
		if !pointerValid(val) {
			return typeName, "<NULL>"
		}
		obj, ok := vm.Deref(val)
		if !ok {
			return typeName, "<NULL>"
		}
		return typeName, fmt.Sprintf("0x%08x {%s}", val.PointerAddr(), describeObject(obj))

	case vmscript.KindInt8:
		return "int8", fmt.Sprintf("%d", int8(val.Int()))
	case vmscript.KindUint8:
		return "uint8", fmt.Sprintf("%d", uint8(val.Int()))
	case vmscript.KindInt16:
		return "int16", fmt.Sprintf("%d", int16(val.Int()))
	case vmscript.KindUint16:
		return "uint16", fmt.Sprintf("%d", uint16(val.Int()))
	case vmscript.KindInt32:
		return "int32", fmt.Sprintf("%d", int32(val.Int()))
	case vmscript.KindUint32:
		return "uint32", fmt.Sprintf("%d", uint32(val.Int()))

	case vmscript.KindFloat32:
		return "float", fmt.Sprintf("%f", val.Float())
	case vmscript.KindFloat64:
		return "double", fmt.Sprintf("%f", val.Float())

	case vmscript.KindBool:
		if val.Int() != 0 {
			return "bool", "true"
		}
		return "bool", "false"

	case vmscript.KindName:
		return "Name", fmt.Sprintf("Name(%d)", val.Int())
	case vmscript.KindSpriteID:
		return "SpriteID", fmt.Sprintf("SpriteID(%d)", val.Int())
	case vmscript.KindTextureID:
		return "TextureID", fmt.Sprintf("TextureID(%d)", val.Int())
	case vmscript.KindTranslationID:
		return "TranslationID", fmt.Sprintf("TranslationId(%d)", val.Int())
	case vmscript.KindSound:
		return "Sound", fmt.Sprintf("Sound(%d)", val.Int())
	case vmscript.KindColor:
		return "Color", fmt.Sprintf("#%04x", val.Int())
	case vmscript.KindStateLabel:
		return "StateLabel", fmt.Sprintf("%d", val.Int())
	case vmscript.KindEnum:
		return "Enum", fmt.Sprintf("%d", val.Int())

	default:
		return t.Name(), "<ERROR?>"
	}
}

// pointerValid implements the pointer-safety check spec.md §4.4 describes:
// the low 32 bits must be non-zero (the VM's "uninitialized" sentinel).
// The object-magic-number half of the check lives in vmscript.VM.Deref,
// since only the VM implementation knows its own magic number.
func pointerValid(val vmscript.Value) bool {
	return uint32(val.PointerAddr()) != 0
}

// describeObject renders the "{...}" portion of a dereferenced pointer's
// value text: its type's descriptive name, matching
// ValueStateNode::ToVariable's one-level, non-recursive deref.
func describeObject(obj vmscript.Object) string {
	return obj.Type().Name()
}
