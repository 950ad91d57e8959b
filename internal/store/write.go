package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/protect"
)

// ErrInvalidRequest marks a batch the store refuses as a whole. The server
// answers it with 400 and a top-level error.
var ErrInvalidRequest = errors.New("invalid request")

// Per-row error messages.
const (
	MsgInsertWithID   = "insert rows must not carry an id"
	MsgIDRequired     = "row must carry an id"
	MsgMissingKeys    = "missing unique key field(s): "
	MsgNotFound       = "record %d not found or not active"
	MsgUniqueKeyInUse = "unique key already used by record %d"
)

const (
	tenantColumn = "tenant_id"

	// defaultCaller is recorded as created_by/updated_by when a request
	// names no caller.
	defaultCaller = "system"
)

// Bulk applies a batch request in one transaction and returns the flat
// result list: one outcome per successful row in request order, plus one
// error per rejected row echoing the row as it was submitted.
func (s *Store) Bulk(ctx context.Context, req ir.BatchRequest) (ir.BulkResponse, error) {
	if err := checkRequest(req); err != nil {
		return ir.BulkResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.BulkResponse{}, fmt.Errorf("bulk %s: begin tx: %w", req.Target, err)
	}
	defer tx.Rollback() // No-op if committed

	w := &batchWriter{
		s:      s,
		tx:     tx,
		req:    req,
		now:    timestamp(s.now()),
		caller: req.CallerID,
	}
	if w.caller == "" {
		w.caller = defaultCaller
	}

	resp := ir.BulkResponse{Data: []ir.RemoteOutcome{}}
	for i, row := range req.Rows {
		out, rowErr, err := w.apply(ctx, row)
		if err != nil {
			return ir.BulkResponse{}, fmt.Errorf("bulk %s: row %d: %w", req.Target, i+1, err)
		}
		if rowErr != "" {
			resp.Errors = append(resp.Errors, ir.StoreRowError{
				Row:        row.Object(),
				Error:      rowErr,
				UniqueKeys: slices.Clone(req.UniqueKeys),
			})
			continue
		}
		resp.Data = append(resp.Data, out)
	}

	if err := tx.Commit(); err != nil {
		return ir.BulkResponse{}, fmt.Errorf("bulk %s: commit: %w", req.Target, err)
	}
	s.logger.Debug("bulk applied",
		"target", req.Target, "operation", string(req.Intent),
		"rows", len(req.Rows), "outcomes", len(resp.Data), "errors", len(resp.Errors))
	return resp, nil
}

func checkRequest(req ir.BatchRequest) error {
	if strings.TrimSpace(req.Target) == "" {
		return fmt.Errorf("%w: table_name is required", ErrInvalidRequest)
	}
	if !ir.ValidIntents[req.Intent] {
		return fmt.Errorf("%w: unsupported operation %q", ErrInvalidRequest, req.Intent)
	}
	if req.Intent != ir.IntentDelete && len(req.UniqueKeys) == 0 {
		return fmt.Errorf("%w: unique_keys are required for %s", ErrInvalidRequest, req.Intent)
	}
	return nil
}

// batchWriter applies the rows of one request inside its transaction.
type batchWriter struct {
	s      *Store
	tx     *sql.Tx
	req    ir.BatchRequest
	now    string
	caller string
}

// apply handles one row. A non-empty rowErr rejects the row; err aborts
// the batch.
func (w *batchWriter) apply(ctx context.Context, row ir.RequestRow) (out ir.RemoteOutcome, rowErr string, err error) {
	switch w.req.Intent {
	case ir.IntentInsert:
		if row.ID != nil {
			return out, MsgInsertWithID, nil
		}
		return w.insert(ctx, row)
	case ir.IntentUpdate:
		if row.ID == nil {
			return out, MsgIDRequired, nil
		}
		return w.update(ctx, row)
	case ir.IntentUpsert:
		if row.ID == nil {
			return w.insert(ctx, row)
		}
		return w.update(ctx, row)
	default:
		if row.ID == nil {
			return out, MsgIDRequired, nil
		}
		return w.delete(ctx, *row.ID)
	}
}

// userFields drops the columns the store manages itself. tenant_id is
// system-managed on the grid but stored with the record's data.
func userFields(fields ir.IRObject) ir.IRObject {
	policy := protect.DefaultPolicy()
	out := make(ir.IRObject, len(fields))
	for k, v := range fields {
		if policy.IsSystem(k) && k != tenantColumn {
			continue
		}
		out[k] = v
	}
	return out
}

// entityKey hashes the row's unique-key values, or returns the row error
// naming the keys that are missing.
func (w *batchWriter) entityKey(fields ir.IRObject) (string, string, error) {
	var missing []string
	for _, k := range w.req.UniqueKeys {
		if ir.IsEmpty(fields[k]) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return "", MsgMissingKeys + strings.Join(missing, ", "), nil
	}
	key, err := ir.EntityKey(w.req.Target, w.req.UniqueKeys, fields)
	return key, "", err
}

func (w *batchWriter) insert(ctx context.Context, row ir.RequestRow) (ir.RemoteOutcome, string, error) {
	fields := userFields(row.Fields)
	key, rowErr, err := w.entityKey(fields)
	if err != nil || rowErr != "" {
		return ir.RemoteOutcome{}, rowErr, err
	}

	existing, found, err := w.s.activeBy(ctx, w.tx, "table_name = ? AND entity_key = ?", w.req.Target, key)
	if err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	if found {
		v := existing.Version
		return ir.RemoteOutcome{ID: existing.ID, Version: &v, Operation: ir.LabelDuplicate}, "", nil
	}

	id, err := w.insertVersion(ctx, key, 1, w.caller, w.now, sql.NullString{}, fields)
	if err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	v := int64(1)
	return ir.RemoteOutcome{ID: id, Version: &v, Operation: ir.LabelInsert}, "", nil
}

func (w *batchWriter) update(ctx context.Context, row ir.RequestRow) (ir.RemoteOutcome, string, error) {
	cur, found, err := w.s.activeBy(ctx, w.tx, "id = ? AND table_name = ?", *row.ID, w.req.Target)
	if err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	if !found {
		return ir.RemoteOutcome{}, fmt.Sprintf(MsgNotFound, *row.ID), nil
	}

	fields := userFields(row.Fields)
	key, rowErr, err := w.entityKey(fields)
	if err != nil || rowErr != "" {
		return ir.RemoteOutcome{}, rowErr, err
	}
	if key != cur.EntityKey {
		other, clash, err := w.s.activeBy(ctx, w.tx, "table_name = ? AND entity_key = ?", w.req.Target, key)
		if err != nil {
			return ir.RemoteOutcome{}, "", err
		}
		if clash {
			return ir.RemoteOutcome{}, fmt.Sprintf(MsgUniqueKeyInUse, other.ID), nil
		}
	}

	if err := w.deactivate(ctx, cur.ID); err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	version := cur.Version + 1
	updatedBy := sql.NullString{String: w.caller, Valid: true}
	id, err := w.insertVersion(ctx, key, version, cur.CreatedBy, cur.CreatedOn, updatedBy, fields)
	if err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	return ir.RemoteOutcome{ID: id, Version: &version, Operation: ir.LabelUpdate}, "", nil
}

func (w *batchWriter) delete(ctx context.Context, id int64) (ir.RemoteOutcome, string, error) {
	cur, found, err := w.s.activeBy(ctx, w.tx, "id = ? AND table_name = ?", id, w.req.Target)
	if err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	if !found {
		return ir.RemoteOutcome{}, fmt.Sprintf(MsgNotFound, id), nil
	}
	if err := w.deactivate(ctx, cur.ID); err != nil {
		return ir.RemoteOutcome{}, "", err
	}
	v := cur.Version
	return ir.RemoteOutcome{ID: cur.ID, Version: &v, Operation: ir.LabelDelete}, "", nil
}

// insertVersion writes a new active version and returns its identifier.
func (w *batchWriter) insertVersion(ctx context.Context, key string, version int64,
	createdBy, createdOn string, updatedBy sql.NullString, fields ir.IRObject) (int64, error) {
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return 0, fmt.Errorf("encode data: %w", err)
	}
	updatedOn := sql.NullString{}
	if updatedBy.Valid {
		updatedOn = sql.NullString{String: w.now, Valid: true}
	}

	var id int64
	err = w.tx.QueryRowContext(ctx, w.s.dialect.rebind(`
		INSERT INTO records
		(table_name, entity_key, version, is_active, created_by, created_on, updated_by, updated_on, valid_from, valid_to, data)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, NULL, ?)
		RETURNING id
	`),
		w.req.Target,
		key,
		version,
		createdBy,
		createdOn,
		updatedBy,
		updatedOn,
		w.now,
		string(data),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}
	return id, nil
}

// deactivate closes the validity window of a version.
func (w *batchWriter) deactivate(ctx context.Context, id int64) error {
	_, err := w.tx.ExecContext(ctx, w.s.dialect.rebind(`
		UPDATE records
		SET is_active = 0, valid_to = ?, updated_by = ?, updated_on = ?
		WHERE id = ?
	`), w.now, w.caller, w.now, id)
	if err != nil {
		return fmt.Errorf("deactivate record %d: %w", id, err)
	}
	return nil
}
