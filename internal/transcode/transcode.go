// Package transcode converts single field values between the external
// board's column representation and the local typed representation.
// Conversion never fails: on any unparsable input it degrades to the
// closest safe value (raw text or nil) so a record transform is never
// aborted by one bad cell.
package transcode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Column types understood by the external board.
const (
	ColumnText     = "text"
	ColumnLongText = "long_text"
	ColumnNumbers  = "numbers"
	ColumnCheckbox = "checkbox"
	ColumnDate     = "date"
	ColumnStatus   = "status"
	ColumnDropdown = "dropdown"
	ColumnPeople   = "people"
)

const dateLayout = "2006-01-02"

// Cell is one external cell as fetched: its declared type, the rendered
// text, and the raw JSON value envelope.
type Cell struct {
	Type  string
	Text  string
	Value []byte
}

// ToExternal converts a local value into the external column value
// envelope for the given column type.
func ToExternal(value interface{}, columnType string) interface{} {
	if value == nil {
		return nil
	}

	switch columnType {
	case ColumnText, ColumnLongText:
		return stringify(value)

	case ColumnNumbers:
		n, ok := toFloat(value)
		if !ok {
			return nil
		}
		return n

	case ColumnCheckbox:
		return map[string]interface{}{"checked": toBool(value)}

	case ColumnDate:
		t, ok := toTime(value)
		if !ok {
			return nil
		}
		return map[string]interface{}{"date": t.UTC().Format(dateLayout)}

	case ColumnStatus, ColumnDropdown:
		return map[string]interface{}{"label": stringify(value)}

	case ColumnPeople:
		ids := toSlice(value)
		persons := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			persons = append(persons, map[string]interface{}{
				"id":   stringify(id),
				"kind": "person",
			})
		}
		return map[string]interface{}{"personsAndTeams": persons}

	default:
		return stringify(value)
	}
}

// ToLocal converts one external cell into the local representation for
// its column type. Dates come back as epoch milliseconds, people as a
// slice of person ids.
func ToLocal(cell Cell) interface{} {
	switch cell.Type {
	case ColumnText, ColumnLongText:
		return cell.Text

	case ColumnNumbers:
		n, err := strconv.ParseFloat(strings.TrimSpace(cell.Text), 64)
		if err != nil {
			return nil
		}
		return n

	case ColumnCheckbox:
		var envelope struct {
			Checked interface{} `json:"checked"`
		}
		if len(cell.Value) > 0 && json.Unmarshal(cell.Value, &envelope) == nil && envelope.Checked != nil {
			return toBool(envelope.Checked)
		}
		// Fallback parse from the rendered text
		text := strings.ToLower(strings.TrimSpace(cell.Text))
		return text == "true" || text == "checked" || text == "v"

	case ColumnDate:
		var envelope struct {
			Date string `json:"date"`
			Time string `json:"time"`
		}
		if len(cell.Value) > 0 && json.Unmarshal(cell.Value, &envelope) == nil && envelope.Date != "" {
			layout := dateLayout
			raw := envelope.Date
			if envelope.Time != "" {
				layout = dateLayout + " 15:04:05"
				raw = envelope.Date + " " + envelope.Time
			}
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC().UnixMilli()
			}
		}
		if t, err := time.Parse(dateLayout, strings.TrimSpace(cell.Text)); err == nil {
			return t.UTC().UnixMilli()
		}
		return nil

	case ColumnStatus, ColumnDropdown:
		var envelope struct {
			Label string `json:"label"`
		}
		if len(cell.Value) > 0 && json.Unmarshal(cell.Value, &envelope) == nil && envelope.Label != "" {
			return envelope.Label
		}
		return cell.Text

	case ColumnPeople:
		var envelope struct {
			PersonsAndTeams []struct {
				ID interface{} `json:"id"`
			} `json:"personsAndTeams"`
		}
		if len(cell.Value) > 0 && json.Unmarshal(cell.Value, &envelope) == nil {
			ids := make([]interface{}, 0, len(envelope.PersonsAndTeams))
			for _, p := range envelope.PersonsAndTeams {
				ids = append(ids, stringify(p.ID))
			}
			return ids
		}
		return []interface{}{}

	default:
		if cell.Text != "" {
			return cell.Text
		}
		if len(cell.Value) > 0 {
			return string(cell.Value)
		}
		return nil
	}
}

// stringify renders any value as a string, JSON-encoding compound shapes.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return strings.Trim(string(encoded), `"`)
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "checked" || s == "1" || s == "v"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

func toTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case int64:
		return time.UnixMilli(v), true
	case float64:
		return time.UnixMilli(int64(v)), true
	case int:
		return time.UnixMilli(int64(v)), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339, dateLayout, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(millis), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func toSlice(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}
