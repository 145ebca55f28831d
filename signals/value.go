package signals

import (
	"strconv"
	"strings"
)

// ValueType tells which field of a Value is meaningful.
type ValueType int

const (
	NumberValue ValueType = iota
	BooleanValue
	StringValue
)

func (t ValueType) String() string {
	switch t {
	case NumberValue:
		return "number"
	case BooleanValue:
		return "boolean"
	case StringValue:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a decoded signal value or a value supplied for writing.
type Value struct {
	Type    ValueType
	Number  float64
	Boolean bool
	Text    string
}

func Number(v float64) Value { return Value{Type: NumberValue, Number: v} }
func Boolean(v bool) Value   { return Value{Type: BooleanValue, Boolean: v} }
func String(v string) Value  { return Value{Type: StringValue, Text: v} }

// Float coerces the value to a number: booleans become 0 or 1, strings are
// parsed and fall back to 0.
func (v Value) Float() float64 {
	switch v.Type {
	case BooleanValue:
		if v.Boolean {
			return 1
		}
		return 0
	case StringValue:
		f, _ := strconv.ParseFloat(v.Text, 64)
		return f
	default:
		return v.Number
	}
}

// Numeric is Float that also reports whether the value has a numeric form.
// Only strings that do not parse as numbers lack one.
func (v Value) Numeric() (float64, bool) {
	if v.Type == StringValue {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return f, err == nil
	}
	return v.Float(), true
}

func (v Value) String() string {
	switch v.Type {
	case BooleanValue:
		return strconv.FormatBool(v.Boolean)
	case StringValue:
		return v.Text
	default:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
}

// ParseValue turns a textual value from the application layer into a Value:
// true/false become booleans, anything numeric a number, the rest a string.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true", "on":
		return Boolean(true)
	case "false", "off":
		return Boolean(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return String(s)
}
