package bridge

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Exported function names.
const (
	FuncRetain   = "retain"
	FuncRelease  = "release"
	FuncValid    = "valid"
	FuncRefCount = "ref-count"
)

// Function is the WIT signature of one host function.
type Function struct {
	Name    string
	Params  []Param
	Results []wit.Type
}

// Param is a named WIT parameter.
type Param struct {
	Name string
	Type wit.Type
}

// CoreParams returns the flattened core wasm parameter types.
func (f Function) CoreParams() []api.ValueType {
	types := make([]wit.Type, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return FlattenTypes(types)
}

// CoreResults returns the flattened core wasm result types.
func (f Function) CoreResults() []api.ValueType {
	return FlattenTypes(f.Results)
}

// ParamNames returns the parameter names in order.
func (f Function) ParamNames() []string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.Name
	}
	return names
}

// String renders the signature in WIT syntax, e.g.
// "retain: func(id: u64) -> bool".
func (f Function) String() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteString(": func(")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", p.Name, typeName(p.Type))
	}
	sb.WriteString(")")
	switch len(f.Results) {
	case 0:
	case 1:
		sb.WriteString(" -> ")
		sb.WriteString(typeName(f.Results[0]))
	default:
		sb.WriteString(" -> tuple<")
		for i, r := range f.Results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(typeName(r))
		}
		sb.WriteString(">")
	}
	return sb.String()
}

var signatures = []Function{
	{Name: FuncRetain, Params: []Param{{"id", wit.U64{}}}, Results: []wit.Type{wit.Bool{}}},
	{Name: FuncRelease, Params: []Param{{"id", wit.U64{}}}, Results: []wit.Type{wit.Bool{}}},
	{Name: FuncValid, Params: []Param{{"id", wit.U64{}}}, Results: []wit.Type{wit.Bool{}}},
	{Name: FuncRefCount, Params: []Param{{"id", wit.U64{}}}, Results: []wit.Type{wit.S32{}}},
}

// Signatures returns the functions every host module exports.
func Signatures() []Function {
	out := make([]Function, len(signatures))
	copy(out, signatures)
	return out
}

// FlattenTypes flattens WIT types to core wasm types
func FlattenTypes(types []wit.Type) []api.ValueType {
	var result []api.ValueType
	for _, t := range types {
		result = append(result, FlattenType(t)...)
	}
	return result
}

// FlattenType flattens a primitive WIT type to core wasm types. Types the
// host interface never uses flatten to nil.
func FlattenType(t wit.Type) []api.ValueType {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []api.ValueType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []api.ValueType{api.ValueTypeI64}
	case wit.F32:
		return []api.ValueType{api.ValueTypeF32}
	case wit.F64:
		return []api.ValueType{api.ValueTypeF64}
	default:
		return nil
	}
}

func typeName(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.U16:
		return "u16"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.S8:
		return "s8"
	case wit.S16:
		return "s16"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	default:
		return fmt.Sprintf("%T", t)
	}
}
