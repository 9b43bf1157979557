package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boardsync/boardsync/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestValidateActionConfig(t *testing.T) {
	cases := []struct {
		name       string
		actionType models.ActionType
		raw        string
		wantErr    bool
	}{
		{"push ok", models.ActionPush, `{"board_mapping_id":"bm-1"}`, false},
		{"push missing mapping", models.ActionPush, `{}`, true},
		{"pull ok", models.ActionPull, `{"board_mapping_id":"bm-1","force_full_sync":true}`, false},
		{"pull missing mapping", models.ActionPull, `{"force_full_sync":true}`, true},
		{"updateField ok", models.ActionUpdateField, `{"field":"status","value":"done"}`, false},
		{"updateField missing field", models.ActionUpdateField, `{"value":"done"}`, true},
		{"createItem ok", models.ActionCreateItem, `{"board_mapping_id":"bm-1"}`, false},
		{"updateItem missing mapping", models.ActionUpdateItem, `{}`, true},
		{"createRelated ok", models.ActionCreateRelated, `{"collection":"tasks","fields":{"kind":"followup"}}`, false},
		{"createRelated missing collection", models.ActionCreateRelated, `{"fields":{}}`, true},
		{"empty config", models.ActionPush, ``, true},
		{"malformed json", models.ActionPush, `{"board_mapping_id"`, true},
		{"unknown action", models.ActionType("explode"), `{}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateActionConfig(tc.actionType, tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	valid := func() *models.SyncRule {
		return &models.SyncRule{
			RuleName:     "push on create",
			TriggerType:  models.TriggerOnCreate,
			TriggerTable: "orders",
			ActionType:   models.ActionPush,
			ActionConfig: `{"board_mapping_id":"bm-1"}`,
		}
	}

	assert.NoError(t, ValidateRule(valid()))

	r := valid()
	r.TriggerType = models.TriggerType("onFullMoon")
	assert.Error(t, ValidateRule(r))

	r = valid()
	r.TriggerTable = ""
	assert.Error(t, ValidateRule(r))

	// Scheduled rules are not bound to a table.
	r = valid()
	r.TriggerType = models.TriggerOnSchedule
	r.TriggerTable = ""
	assert.NoError(t, ValidateRule(r))

	r = valid()
	r.TriggerType = models.TriggerOnFieldValue
	assert.Error(t, ValidateRule(r), "onFieldValue needs a field or a condition")

	r = valid()
	r.TriggerType = models.TriggerOnFieldValue
	r.TriggerField = strPtr("status")
	assert.NoError(t, ValidateRule(r))

	r = valid()
	r.TriggerType = models.TriggerOnFieldValue
	r.TriggerCondition = strPtr(`{"field":"status","operator":"eq","value":"done"}`)
	assert.NoError(t, ValidateRule(r))

	r = valid()
	r.TriggerCondition = strPtr(`{"and":[`)
	assert.Error(t, ValidateRule(r))

	r = valid()
	r.ActionConfig = `{}`
	assert.Error(t, ValidateRule(r))
}
