package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateFieldCondition(t *testing.T) {
	record := map[string]interface{}{
		"status": "shipped",
		"total":  float64(150),
		"customer": map[string]interface{}{
			"email": "a@example.com",
		},
	}
	previous := map[string]interface{}{
		"status": "pending",
		"total":  float64(150),
	}

	cases := []struct {
		name     string
		field    string
		op       string
		expected interface{}
		want     bool
	}{
		{"eq match", "status", OpEq, "shipped", true},
		{"eq mismatch", "status", OpEq, "pending", false},
		{"ne", "status", OpNe, "pending", true},
		{"gt", "total", OpGt, 100, true},
		{"gt string operand", "total", OpGt, "100", true},
		{"gt false", "total", OpGt, 200, false},
		{"lt", "total", OpLt, 200, true},
		{"gte boundary", "total", OpGte, 150, true},
		{"lte boundary", "total", OpLte, 150, true},
		{"contains", "status", OpContains, "hip", true},
		{"startsWith", "status", OpStartsWith, "ship", true},
		{"endsWith", "customer.email", OpEndsWith, "example.com", true},
		{"exists", "customer.email", OpExists, nil, true},
		{"exists missing", "customer.phone", OpExists, nil, false},
		{"changed", "status", OpChanged, nil, true},
		{"changed stable", "total", OpChanged, nil, false},
		{"unknown operator", "status", "regex", "x", false},
		{"non-numeric comparison", "status", OpGt, 5, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateFieldCondition(record, previous, tc.field, tc.op, tc.expected)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateComplexCondition(t *testing.T) {
	record := map[string]interface{}{
		"status":  "shipped",
		"total":   float64(150),
		"express": true,
	}

	cases := []struct {
		name string
		cond string
		want bool
	}{
		{
			"and all true",
			`{"and":[{"field":"status","operator":"eq","value":"shipped"},{"field":"total","operator":"gt","value":100}]}`,
			true,
		},
		{
			"and one false",
			`{"and":[{"field":"status","operator":"eq","value":"shipped"},{"field":"total","operator":"gt","value":500}]}`,
			false,
		},
		{
			"or short circuit",
			`{"or":[{"field":"total","operator":"gt","value":500},{"field":"status","operator":"eq","value":"shipped"}]}`,
			true,
		},
		{
			"not",
			`{"not":{"field":"status","operator":"eq","value":"cancelled"}}`,
			true,
		},
		{
			"nested",
			`{"and":[{"field":"express","operator":"eq","value":true},{"or":[{"field":"total","operator":"gte","value":100},{"field":"status","operator":"eq","value":"priority"}]}]}`,
			true,
		},
		{
			"leaf default operator is eq",
			`{"field":"status","value":"shipped"}`,
			true,
		},
		{
			"empty node places no constraint",
			`{}`,
			true,
		},
		{
			"malformed json never fires",
			`{"and":[`,
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvaluateComplexCondition(record, nil, tc.cond))
		})
	}
}
