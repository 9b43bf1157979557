package rules

import (
	"encoding/json"
	"fmt"

	"github.com/boardsync/boardsync/pkg/models"
)

// PushActionConfig triggers a push run for a board mapping.
type PushActionConfig struct {
	BoardMappingID string `json:"board_mapping_id"`
	ForceFullSync  bool   `json:"force_full_sync,omitempty"`
}

// PullActionConfig triggers a pull run for a board mapping.
type PullActionConfig struct {
	BoardMappingID string `json:"board_mapping_id"`
	ForceFullSync  bool   `json:"force_full_sync,omitempty"`
}

// UpdateFieldActionConfig patches one field on the triggering record.
type UpdateFieldActionConfig struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// ItemActionConfig pushes the triggering record to one board as an
// item create or update.
type ItemActionConfig struct {
	BoardMappingID string `json:"board_mapping_id"`
}

// CreateRelatedActionConfig inserts a document into another collection,
// seeded from static fields plus values copied off the trigger record.
type CreateRelatedActionConfig struct {
	Collection string                 `json:"collection"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	CopyFields map[string]string      `json:"copy_fields,omitempty"`
}

// ValidateActionConfig checks an action configuration at authoring
// time so a rule can never be saved with a payload its action cannot
// execute.
func ValidateActionConfig(actionType models.ActionType, raw string) error {
	switch actionType {
	case models.ActionPush:
		var cfg PushActionConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return err
		}
		if cfg.BoardMappingID == "" {
			return fmt.Errorf("push action requires board_mapping_id")
		}
	case models.ActionPull:
		var cfg PullActionConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return err
		}
		if cfg.BoardMappingID == "" {
			return fmt.Errorf("pull action requires board_mapping_id")
		}
	case models.ActionUpdateField:
		var cfg UpdateFieldActionConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return err
		}
		if cfg.Field == "" {
			return fmt.Errorf("updateField action requires field")
		}
	case models.ActionCreateItem, models.ActionUpdateItem:
		var cfg ItemActionConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return err
		}
		if cfg.BoardMappingID == "" {
			return fmt.Errorf("%s action requires board_mapping_id", actionType)
		}
	case models.ActionCreateRelated:
		var cfg CreateRelatedActionConfig
		if err := decodeStrict(raw, &cfg); err != nil {
			return err
		}
		if cfg.Collection == "" {
			return fmt.Errorf("createRelated action requires collection")
		}
	default:
		return fmt.Errorf("unknown action type %q", actionType)
	}
	return nil
}

// ValidateRule checks a rule's trigger and action shape before it is
// stored.
func ValidateRule(r *models.SyncRule) error {
	switch r.TriggerType {
	case models.TriggerOnCreate, models.TriggerOnUpdate, models.TriggerOnStatusChange,
		models.TriggerOnCheckout, models.TriggerOnSchedule, models.TriggerOnManualTrigger:
	case models.TriggerOnFieldValue:
		if (r.TriggerField == nil || *r.TriggerField == "") && r.TriggerCondition == nil {
			return fmt.Errorf("onFieldValue rule requires trigger_field or trigger_condition")
		}
	default:
		return fmt.Errorf("unknown trigger type %q", r.TriggerType)
	}
	if r.TriggerTable == "" && r.TriggerType != models.TriggerOnSchedule {
		return fmt.Errorf("rule requires trigger_table")
	}
	if r.TriggerCondition != nil && *r.TriggerCondition != "" {
		var c Condition
		if err := json.Unmarshal([]byte(*r.TriggerCondition), &c); err != nil {
			return fmt.Errorf("invalid trigger_condition: %w", err)
		}
	}
	return ValidateActionConfig(r.ActionType, r.ActionConfig)
}

func decodeStrict(raw string, out interface{}) error {
	if raw == "" {
		return fmt.Errorf("action config is empty")
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("invalid action config: %w", err)
	}
	return nil
}
