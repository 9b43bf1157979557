package boardapi

import (
	"encoding/json"
	"time"
)

// Workspace is one external workspace visible to the integration account.
type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Board is one external board (a table on the external side).
type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ItemCount   int    `json:"items_count,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Column is one typed field on a board.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

/// ColumnValue is one cell of an item: the column id, its declared type,
// the rendered text, and the raw JSON value envelope.
type ColumnValue struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Value json.RawMessage `json:"value"`
}

// Item is one row on a board.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	BoardID      string        `json:"board_id,omitempty"`
	ColumnValues []ColumnValue `json:"column_values,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ParentItemID string        `json:"parent_item_id,omitempty"`
}

// ColumnValueByID returns the cell for the given column id, if present.
func (it *Item) ColumnValueByID(columnID string) (ColumnValue, bool) {
	for _, cv := range it.ColumnValues {
		if cv.ID == columnID {
			return cv, true
		}
	}
	return ColumnValue{}, false
}

// ItemPage is one page of items with a continuation hint.
type ItemPage struct {
	Items   []Item
	HasMore bool
}

// Account identifies the authenticated account, used for connection tests.
type Account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
