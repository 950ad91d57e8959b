package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// IDField is the column that carries a record's store identifier.
const IDField = "id"

// Operation is the classification the identity classifier gives a grid row.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpReject Operation = "reject"
)

// Intent is the batch-level operation requested from the store.
type Intent string

const (
	IntentInsert Intent = "insert"
	IntentUpdate Intent = "update"
	IntentDelete Intent = "delete"
	IntentUpsert Intent = "upsert"
)

// ValidIntents defines the intents the bulk endpoint accepts.
var ValidIntents = map[Intent]bool{
	IntentInsert: true,
	IntentUpdate: true,
	IntentDelete: true,
	IntentUpsert: true,
}

// ParseIntent normalises and validates an intent string.
func ParseIntent(s string) (Intent, error) {
	in := Intent(strings.ToLower(strings.TrimSpace(s)))
	if !ValidIntents[in] {
		return "", fmt.Errorf("invalid operation %q: must be one of insert, update, delete, upsert", s)
	}
	return in, nil
}

// OutcomeLabel tags each entry of the store's flat result list.
type OutcomeLabel string

const (
	LabelInsert    OutcomeLabel = "insert"
	LabelUpdate    OutcomeLabel = "update"
	LabelDelete    OutcomeLabel = "delete"
	LabelDuplicate OutcomeLabel = "duplicate"
)

// ParseOutcomeLabel normalises a label the way the store may spell it
// ("Insert", " update "). Returns false for labels the engine does not know.
func ParseOutcomeLabel(s string) (OutcomeLabel, bool) {
	l := OutcomeLabel(strings.ToLower(strings.TrimSpace(s)))
	switch l {
	case LabelInsert, LabelUpdate, LabelDelete, LabelDuplicate:
		return l, true
	}
	return "", false
}

// GridRow is one selected row as read from the grid.
// Position is the 0-based data-row index in the grid; it is the only handle
// the grid writer needs to address the row again.
type GridRow struct {
	Position int      `json:"position"`
	Fields   IRObject `json:"fields"`
}

// DisplayRow is the 1-based row number shown to users.
func (r GridRow) DisplayRow() int {
	return r.Position + 1
}

// ClassifiedRow is a normalized row plus the operation decided for it.
//
// Invariant: for Insert/Update/Delete rows every required field is populated
// and ID, when set, came from a numeric identifier cell.
type ClassifiedRow struct {
	GridRow
	Operation Operation `json:"operation"`
	ID        *int64    `json:"id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Missing   []string  `json:"missing,omitempty"`
}

// RowIssue is one row-addressed validation problem.
type RowIssue struct {
	Row     int      `json:"row"` // 1-based display row
	Reason  string   `json:"reason"`
	Missing []string `json:"missing,omitempty"`
}

// RequestRow is one entry of a batch request: the optional identifier plus
// the row's field map, which goes on the wire flattened into one object.
type RequestRow struct {
	ID     *int64
	Fields IRObject
}

// Object returns the wire form of the row: fields with "id" set when present.
func (r RequestRow) Object() IRObject {
	obj := make(IRObject, len(r.Fields)+1)
	for k, v := range r.Fields {
		if k == IDField {
			continue
		}
		obj[k] = v
	}
	if r.ID != nil {
		obj[IDField] = IRInt(*r.ID)
	}
	return obj
}

// MarshalJSON flattens the identifier into the field map.
func (r RequestRow) MarshalJSON() ([]byte, error) {
	return r.Object().MarshalJSON()
}

// UnmarshalJSON splits "id" back out of the flattened object.
// An "id" that is present but not numeric is an error.
func (r *RequestRow) UnmarshalJSON(data []byte) error {
	var obj IRObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = nil
	if raw, ok := obj[IDField]; ok {
		delete(obj, IDField)
		if !IsEmpty(raw) {
			id, ok := AsID(raw)
			if !ok {
				return fmt.Errorf("row id must be numeric, got %s", String(raw))
			}
			r.ID = &id
		}
	}
	r.Fields = obj
	return nil
}

// BatchRequest is the single payload sent to the store's bulk endpoint.
// Row order equals the grid traversal order; it is the only handle the
// demultiplexer has for correlating results back to rows.
type BatchRequest struct {
	Target     string       `json:"table_name"`
	Intent     Intent       `json:"operation"`
	CallerID   string       `json:"userid,omitempty"`
	UniqueKeys []string     `json:"unique_keys"`
	Rows       []RequestRow `json:"rows"`
}

// RemoteOutcome is the store's atomic unit of result. Nothing in it points
// back at the request row it came from.
type RemoteOutcome struct {
	ID        int64        `json:"id"`
	Version   *int64       `json:"version,omitempty"`
	Operation OutcomeLabel `json:"operation"`
}

// StoreRowError is a per-row failure reported by the store. Row echoes the
// submitted row object when the store provides it.
type StoreRowError struct {
	Row        IRObject `json:"row,omitempty"`
	Error      string   `json:"error"`
	UniqueKeys []string `json:"unique_keys,omitempty"`
}

// BulkResponse is the bulk endpoint's response envelope.
type BulkResponse struct {
	Data   []RemoteOutcome `json:"data"`
	Error  string          `json:"error,omitempty"`
	Errors []StoreRowError `json:"errors,omitempty"`
}

// FetchResponse is the fetch endpoint's response envelope.
type FetchResponse struct {
	Data  []IRObject `json:"data"`
	Error string     `json:"error,omitempty"`
}

// RowError is a failure reported against a request row.
// RowPosition is -1 when the store's error could not be matched to a row.
type RowError struct {
	RowPosition int    `json:"row_position"`
	Message     string `json:"message"`
}

// Binding is the write-back decided for one grid row.
type Binding struct {
	Position   int          `json:"position"`
	Operation  OutcomeLabel `json:"operation"`
	ID         int64        `json:"id"`
	Version    *int64       `json:"version,omitempty"`
	PreviousID *int64       `json:"previous_id,omitempty"`
}

// ReconciliationResult aggregates one pass's outcome.
//
// Invariant: Inserted+Updated+Deleted+Duplicated+len(Errors) <= Total.
type ReconciliationResult struct {
	Total             int             `json:"total"`
	Inserted          int             `json:"inserted"`
	Updated           int             `json:"updated"`
	Deleted           int             `json:"deleted"`
	Duplicated        int             `json:"duplicated"`
	InsertedRecords   []RemoteOutcome `json:"inserted_records,omitempty"`
	UpdatedRecords    []RemoteOutcome `json:"updated_records,omitempty"`
	DeletedRecords    []RemoteOutcome `json:"deleted_records,omitempty"`
	DuplicatedRecords []RemoteOutcome `json:"duplicated_records,omitempty"`
	Errors            []RowError      `json:"errors,omitempty"`
}

// Summary titles shown to users.
const (
	TitleSuccess        = "Success"
	TitleWarning        = "Warning"
	TitlePartialSuccess = "Partial Success"
)

// Summary is the user-facing message built from a pass's counts.
type Summary struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// TableSpec describes one target entity the store exposes.
type TableSpec struct {
	Name        string   `json:"table_name"`
	Type        string   `json:"table_type"`
	UniqueKeys  []string `json:"unique_keys"`
	Description string   `json:"description,omitempty"`
}
