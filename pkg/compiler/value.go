// edgewall/pkg/compiler/value.go

package compiler

import "strconv"

type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

// Value is the tagged scalar that flows out of the field extractor and
// between node ports during evaluation.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Flag bool
	List []string
}

func NoValue() Value               { return Value{Kind: ValueNone} }
func StringValue(s string) Value   { return Value{Kind: ValueString, Str: s} }
func NumberValue(n float64) Value  { return Value{Kind: ValueNumber, Num: n} }
func BoolValue(b bool) Value       { return Value{Kind: ValueBool, Flag: b} }
func ListValue(l []string) Value   { return Value{Kind: ValueList, List: l} }

func (v Value) IsNone() bool { return v.Kind == ValueNone }

// AsString renders the value for string-family operators. Numbers use
// the shortest round-trippable form, booleans "true"/"false".
func (v Value) AsString() (string, bool) {
	switch v.Kind {
	case ValueString:
		return v.Str, true
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case ValueBool:
		return strconv.FormatBool(v.Flag), true
	default:
		return "", false
	}
}

// AsNumber parses the value for numeric-family operators. Non-numeric
// input is a non-match, never an error.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Num, true
	case ValueString:
		n, err := strconv.ParseFloat(v.Str, 64)
		return n, err == nil
	case ValueBool:
		if v.Flag {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Truthy reports whether a fired port value counts as a boolean signal.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValueBool:
		return v.Flag
	case ValueNumber:
		return v.Num != 0
	case ValueString:
		return v.Str != ""
	case ValueList:
		return len(v.List) > 0
	default:
		return false
	}
}
