package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by an EnhancedValue.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// wrapperKeys are the members of a suggestion object, in unwrap order.
var wrapperKeys = []string{"value", "suggested_value", "default_value", "content"}

// EnhancedValue is one AI-suggested field value. Suggestions arrive either as
// raw JSON scalars/lists or wrapped in an object exposing one of
// value, suggested_value, default_value or content.
type EnhancedValue struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	List   []EnhancedValue
	Fields map[string]EnhancedValue
}

// EnhancedData maps a semantic field name (project_value, risk_level, ...)
// to its suggestion.
type EnhancedData map[string]EnhancedValue

// Enhancement is the response of an enrichment call.
type Enhancement struct {
	EnhancedData EnhancedData `json:"enhanced_data"`
	Warnings     []string     `json:"warnings"`
}

func String(s string) EnhancedValue  { return EnhancedValue{Kind: KindString, Str: s} }
func Number(f float64) EnhancedValue { return EnhancedValue{Kind: KindNumber, Num: f} }
func Bool(b bool) EnhancedValue      { return EnhancedValue{Kind: KindBool, Bool: b} }

func List(items ...EnhancedValue) EnhancedValue {
	return EnhancedValue{Kind: KindList, List: items}
}

func Object(fields map[string]EnhancedValue) EnhancedValue {
	return EnhancedValue{Kind: KindObject, Fields: fields}
}

// IsNull reports whether the value is JSON null (or the zero value).
func (v EnhancedValue) IsNull() bool { return v.Kind == KindNull }

// IsEmpty reports whether the value counts as absent for resolution:
// null or the empty string.
func (v EnhancedValue) IsEmpty() bool {
	return v.Kind == KindNull || (v.Kind == KindString && v.Str == "")
}

// Unwrap returns the suggestion carried by an object, checking value,
// suggested_value, default_value and content in that order and skipping
// null members. Objects without any of those members are absent. Non-object
// values are returned unchanged.
func (v EnhancedValue) Unwrap() (EnhancedValue, bool) {
	if v.Kind != KindObject {
		return v, !v.IsNull()
	}
	for _, key := range wrapperKeys {
		if inner, ok := v.Fields[key]; ok && !inner.IsNull() {
			return inner, true
		}
	}
	return EnhancedValue{}, false
}

// Text renders the value as display text.
func (v EnhancedValue) Text() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	case KindList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			if s, ok := item.Text(); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ", "), true
	case KindObject:
		if inner, ok := v.Unwrap(); ok {
			return inner.Text()
		}
	}
	return "", false
}

// Float returns the numeric value when it is a finite number.
func (v EnhancedValue) Float() (float64, bool) {
	if v.Kind != KindNumber || math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return 0, false
	}
	return v.Num, true
}

func (v *EnhancedValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode enhanced value: %w", err)
	}
	converted, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = converted
	return nil
}

func (v EnhancedValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toAny())
}

func fromAny(raw any) (EnhancedValue, error) {
	switch t := raw.(type) {
	case nil:
		return EnhancedValue{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return EnhancedValue{}, fmt.Errorf("decode enhanced number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case []any:
		items := make([]EnhancedValue, 0, len(t))
		for _, item := range t {
			converted, err := fromAny(item)
			if err != nil {
				return EnhancedValue{}, err
			}
			items = append(items, converted)
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]EnhancedValue, len(t))
		for key, item := range t {
			converted, err := fromAny(item)
			if err != nil {
				return EnhancedValue{}, err
			}
			fields[key] = converted
		}
		return Object(fields), nil
	default:
		return EnhancedValue{}, fmt.Errorf("unsupported enhanced value type %T", raw)
	}
}

func (v EnhancedValue) toAny() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil
		}
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			out = append(out, item.toAny())
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Fields))
		for key, item := range v.Fields {
			out[key] = item.toAny()
		}
		return out
	default:
		return nil
	}
}
