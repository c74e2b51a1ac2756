package layout

import (
	"fmt"
	"strings"
)

// Kind classifies a field for layout purposes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindF32
	KindEnum
	KindU64
	KindI64
	KindF64
	KindPointer
	KindVec3
	KindVec4
	KindOptional
	KindAggregate
)

var kindNames = map[Kind]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindU8:        "u8",
	KindI8:        "i8",
	KindU16:       "u16",
	KindI16:       "i16",
	KindU32:       "u32",
	KindI32:       "i32",
	KindF32:       "f32",
	KindEnum:      "enum",
	KindU64:       "u64",
	KindI64:       "i64",
	KindF64:       "f64",
	KindPointer:   "pointer",
	KindVec3:      "vec3",
	KindVec4:      "vec4",
	KindOptional:  "optional",
	KindAggregate: "aggregate",
}

// schema spellings, including the names foreign metadata tends to use
var kindAliases = map[string]Kind{
	"bool":       KindBool,
	"boolean":    KindBool,
	"byte":       KindU8,
	"u8":         KindU8,
	"sbyte":      KindI8,
	"i8":         KindI8,
	"short":      KindI16,
	"i16":        KindI16,
	"ushort":     KindU16,
	"u16":        KindU16,
	"int":        KindI32,
	"i32":        KindI32,
	"uint":       KindU32,
	"u32":        KindU32,
	"float":      KindF32,
	"float32":    KindF32,
	"single":     KindF32,
	"f32":        KindF32,
	"enum":       KindEnum,
	"long":       KindI64,
	"i64":        KindI64,
	"ulong":      KindU64,
	"u64":        KindU64,
	"double":     KindF64,
	"float64":    KindF64,
	"f64":        KindF64,
	"pointer":    KindPointer,
	"ptr":        KindPointer,
	"ref":        KindPointer,
	"vector3":    KindVec3,
	"vec3":       KindVec3,
	"vector4":    KindVec4,
	"vec4":       KindVec4,
	"quaternion": KindVec4,
	"optional":   KindOptional,
	"nullable":   KindOptional,
	"struct":     KindAggregate,
	"aggregate":  KindAggregate,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a schema spelling to a Kind. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return KindInvalid, fmt.Errorf("unknown field kind %q", s)
	}
	return k, nil
}

// Primitive reports whether k has a fixed size independent of other fields.
func (k Kind) Primitive() bool {
	return k > KindInvalid && k < KindOptional
}
