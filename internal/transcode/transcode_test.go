package transcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToExternalText(t *testing.T) {
	assert.Equal(t, "hello", ToExternal("hello", ColumnText))
	assert.Equal(t, "42", ToExternal(42, ColumnLongText))
	assert.Equal(t, "3.5", ToExternal(3.5, ColumnText))
	assert.Nil(t, ToExternal(nil, ColumnText))
}

func TestToExternalNumbers(t *testing.T) {
	assert.Equal(t, 3.5, ToExternal(3.5, ColumnNumbers))
	assert.Equal(t, float64(7), ToExternal(7, ColumnNumbers))
	assert.Equal(t, 12.25, ToExternal("12.25", ColumnNumbers))

	// Unparsable numbers degrade to nil rather than aborting the transform.
	assert.Nil(t, ToExternal("not a number", ColumnNumbers))
	assert.Nil(t, ToExternal(map[string]interface{}{}, ColumnNumbers))
}

func TestToExternalCheckbox(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"checked": true}, ToExternal(true, ColumnCheckbox))
	assert.Equal(t, map[string]interface{}{"checked": false}, ToExternal(false, ColumnCheckbox))
	assert.Equal(t, map[string]interface{}{"checked": true}, ToExternal("checked", ColumnCheckbox))
	assert.Equal(t, map[string]interface{}{"checked": true}, ToExternal(1, ColumnCheckbox))
	assert.Equal(t, map[string]interface{}{"checked": false}, ToExternal("nope", ColumnCheckbox))
}

func TestToExternalDate(t *testing.T) {
	millis := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, map[string]interface{}{"date": "2024-03-15"}, ToExternal(millis, ColumnDate))
	assert.Equal(t, map[string]interface{}{"date": "2024-03-15"}, ToExternal("2024-03-15", ColumnDate))
	assert.Equal(t, map[string]interface{}{"date": "2024-03-15"}, ToExternal("2024-03-15T10:30:00Z", ColumnDate))
	assert.Nil(t, ToExternal("yesterday-ish", ColumnDate))
}

func TestToExternalStatusAndDropdown(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"label": "Done"}, ToExternal("Done", ColumnStatus))
	assert.Equal(t, map[string]interface{}{"label": "Blue"}, ToExternal("Blue", ColumnDropdown))
}

func TestToExternalPeople(t *testing.T) {
	out := ToExternal([]interface{}{"12345", 678}, ColumnPeople)
	envelope, ok := out.(map[string]interface{})
	require.True(t, ok)

	persons, ok := envelope["personsAndTeams"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, persons, 2)
	assert.Equal(t, "12345", persons[0]["id"])
	assert.Equal(t, "person", persons[0]["kind"])
	assert.Equal(t, "678", persons[1]["id"])
}

func TestToExternalPeopleWrapsScalar(t *testing.T) {
	out := ToExternal("99", ColumnPeople)
	envelope := out.(map[string]interface{})
	persons := envelope["personsAndTeams"].([]map[string]interface{})
	require.Len(t, persons, 1)
	assert.Equal(t, "99", persons[0]["id"])
}

func TestToExternalUnknownColumnFallsBackToText(t *testing.T) {
	assert.Equal(t, "raw", ToExternal("raw", "mystery_type"))
}

func TestToLocalText(t *testing.T) {
	assert.Equal(t, "hello", ToLocal(Cell{Type: ColumnText, Text: "hello"}))
	assert.Equal(t, "long form", ToLocal(Cell{Type: ColumnLongText, Text: "long form"}))
}

func TestToLocalNumbers(t *testing.T) {
	assert.Equal(t, 12.5, ToLocal(Cell{Type: ColumnNumbers, Text: "12.5"}))
	assert.Equal(t, float64(-3), ToLocal(Cell{Type: ColumnNumbers, Text: " -3 "}))
	assert.Nil(t, ToLocal(Cell{Type: ColumnNumbers, Text: "twelve"}))
	assert.Nil(t, ToLocal(Cell{Type: ColumnNumbers, Text: ""}))
}

func TestToLocalCheckbox(t *testing.T) {
	assert.Equal(t, true, ToLocal(Cell{Type: ColumnCheckbox, Value: []byte(`{"checked":"true"}`)}))
	assert.Equal(t, true, ToLocal(Cell{Type: ColumnCheckbox, Value: []byte(`{"checked":true}`)}))
	assert.Equal(t, false, ToLocal(Cell{Type: ColumnCheckbox, Value: []byte(`{"checked":"false"}`)}))

	// Without a value envelope the rendered text decides.
	assert.Equal(t, true, ToLocal(Cell{Type: ColumnCheckbox, Text: "v"}))
	assert.Equal(t, false, ToLocal(Cell{Type: ColumnCheckbox, Text: ""}))
}

func TestToLocalDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, ToLocal(Cell{Type: ColumnDate, Value: []byte(`{"date":"2024-03-15"}`)}))

	wantWithTime := time.Date(2024, 3, 15, 9, 45, 30, 0, time.UTC).UnixMilli()
	assert.Equal(t, wantWithTime, ToLocal(Cell{Type: ColumnDate, Value: []byte(`{"date":"2024-03-15","time":"09:45:30"}`)}))

	// Value envelope missing, text carries the date.
	assert.Equal(t, want, ToLocal(Cell{Type: ColumnDate, Text: "2024-03-15"}))
	assert.Nil(t, ToLocal(Cell{Type: ColumnDate, Text: "soon"}))
}

func TestToLocalStatusAndDropdown(t *testing.T) {
	assert.Equal(t, "Working on it", ToLocal(Cell{Type: ColumnStatus, Value: []byte(`{"label":"Working on it"}`)}))
	assert.Equal(t, "Done", ToLocal(Cell{Type: ColumnStatus, Text: "Done"}))
	assert.Equal(t, "Blue", ToLocal(Cell{Type: ColumnDropdown, Value: []byte(`{"label":"Blue"}`)}))
}

func TestToLocalPeople(t *testing.T) {
	cell := Cell{
		Type:  ColumnPeople,
		Value: []byte(`{"personsAndTeams":[{"id":12345},{"id":"678"}]}`),
	}
	out := ToLocal(cell)
	ids, ok := out.([]interface{})
	require.True(t, ok)
	require.Len(t, ids, 2)
	assert.Equal(t, "12345", ids[0])
	assert.Equal(t, "678", ids[1])

	empty := ToLocal(Cell{Type: ColumnPeople})
	assert.Equal(t, []interface{}{}, empty)
}

func TestToLocalUnknownColumn(t *testing.T) {
	assert.Equal(t, "rendered", ToLocal(Cell{Type: "mystery_type", Text: "rendered"}))
	assert.Equal(t, `{"x":1}`, ToLocal(Cell{Type: "mystery_type", Value: []byte(`{"x":1}`)}))
	assert.Nil(t, ToLocal(Cell{Type: "mystery_type"}))
}

func TestRoundTripPerColumnType(t *testing.T) {
	millis := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()

	cases := []struct {
		name       string
		columnType string
		local      interface{}
		cellText   string
		cellValue  string
	}{
		{"text", ColumnText, "alpha", "alpha", ""},
		{"numbers", ColumnNumbers, 4.5, "4.5", ""},
		{"checkbox", ColumnCheckbox, true, "", `{"checked":"true"}`},
		{"date", ColumnDate, millis, "", `{"date":"2025-01-02"}`},
		{"status", ColumnStatus, "Done", "", `{"label":"Done"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cell := Cell{Type: tc.columnType, Text: tc.cellText, Value: []byte(tc.cellValue)}
			assert.Equal(t, tc.local, ToLocal(cell))
			assert.NotNil(t, ToExternal(tc.local, tc.columnType))
		})
	}
}
