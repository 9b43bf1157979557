package rules

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/boardsync/boardsync/internal/mapping"
)

// Comparison operators accepted in rule conditions.
const (
	OpEq         = "eq"
	OpNe         = "ne"
	OpGt         = "gt"
	OpLt         = "lt"
	OpGte        = "gte"
	OpLte        = "lte"
	OpContains   = "contains"
	OpStartsWith = "startsWith"
	OpEndsWith   = "endsWith"
	OpExists     = "exists"
	OpChanged    = "changed"
)

// EvaluateFieldCondition applies one operator to a record field.
// Unknown operators evaluate to false; "changed" compares against the
// previous record snapshot.
func EvaluateFieldCondition(record, previous map[string]interface{}, field, op string, expected interface{}) bool {
	current, present := mapping.ResolveFieldPath(record, field)

	switch op {
	case OpExists:
		return present && current != nil
	case OpChanged:
		prev, _ := mapping.ResolveFieldPath(previous, field)
		return !mapping.ValuesEqual(prev, current)
	case OpEq:
		return mapping.ValuesEqual(current, expected)
	case OpNe:
		return !mapping.ValuesEqual(current, expected)
	case OpGt, OpLt, OpGte, OpLte:
		a, aok := conditionNumber(current)
		b, bok := conditionNumber(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGte:
			return a >= b
		default:
			return a <= b
		}
	case OpContains:
		return strings.Contains(conditionString(current), conditionString(expected))
	case OpStartsWith:
		return strings.HasPrefix(conditionString(current), conditionString(expected))
	case OpEndsWith:
		return strings.HasSuffix(conditionString(current), conditionString(expected))
	}
	return false
}

// Condition is one node of a composable condition tree. Exactly one of
// the combinators or the leaf operator form is used per node.
type Condition struct {
	And []Condition `json:"and,omitempty"`
	Or  []Condition `json:"or,omitempty"`
	Not *Condition  `json:"not,omitempty"`

	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// EvaluateComplexCondition parses a JSON condition tree and evaluates
// it against the record. A parse failure evaluates to false so a
// malformed rule can never fire.
func EvaluateComplexCondition(record, previous map[string]interface{}, conditionJSON string) bool {
	var c Condition
	if err := json.Unmarshal([]byte(conditionJSON), &c); err != nil {
		return false
	}
	return evalCondition(record, previous, c)
}

func evalCondition(record, previous map[string]interface{}, c Condition) bool {
	switch {
	case len(c.And) > 0:
		for _, sub := range c.And {
			if !evalCondition(record, previous, sub) {
				return false
			}
		}
		return true
	case len(c.Or) > 0:
		for _, sub := range c.Or {
			if evalCondition(record, previous, sub) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !evalCondition(record, previous, *c.Not)
	case c.Field != "":
		op := c.Operator
		if op == "" {
			op = OpEq
		}
		return EvaluateFieldCondition(record, previous, c.Field, op, c.Value)
	}
	// An empty node places no constraint.
	return true
}

func conditionNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func conditionString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
