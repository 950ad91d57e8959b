package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/gridsync/internal/ir"
)

// Record is one stored version of an entity.
type Record struct {
	ID        int64
	Table     string
	EntityKey string
	Version   int64
	Active    bool
	CreatedBy string
	CreatedOn string
	UpdatedBy sql.NullString
	UpdatedOn sql.NullString
	ValidFrom string
	ValidTo   sql.NullString
	Data      ir.IRObject
}

// Object returns the record as the fetch endpoint serves it: the user
// fields plus the system columns.
func (r Record) Object() ir.IRObject {
	obj := make(ir.IRObject, len(r.Data)+10)
	for k, v := range r.Data {
		obj[k] = v
	}
	obj[ir.IDField] = ir.IRInt(r.ID)
	obj["version"] = ir.IRInt(r.Version)
	obj["is_active"] = ir.IRBool(r.Active)
	obj["created_by"] = ir.IRString(r.CreatedBy)
	obj["created_on"] = ir.IRString(r.CreatedOn)
	obj["updated_by"] = nullString(r.UpdatedBy)
	obj["updated_on"] = nullString(r.UpdatedOn)
	obj["valid_from"] = ir.IRString(r.ValidFrom)
	obj["valid_to"] = nullString(r.ValidTo)
	return obj
}

func nullString(ns sql.NullString) ir.IRValue {
	if !ns.Valid {
		return ir.IRNull{}
	}
	return ir.IRString(ns.String)
}

const recordColumns = `id, table_name, entity_key, version, is_active, created_by, created_on,
	updated_by, updated_on, valid_from, valid_to, data`

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var r Record
	var active int64
	var data string
	err := sc.Scan(&r.ID, &r.Table, &r.EntityKey, &r.Version, &active, &r.CreatedBy, &r.CreatedOn,
		&r.UpdatedBy, &r.UpdatedOn, &r.ValidFrom, &r.ValidTo, &data)
	if err != nil {
		return Record{}, err
	}
	r.Active = active == 1
	r.Data = ir.IRObject{}
	if data != "" && data != "{}" {
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return Record{}, fmt.Errorf("record %d: decode data: %w", r.ID, err)
		}
	}
	return r, nil
}

// Fetch returns the active version of every entity of target, ordered by
// identifier. Returns an empty slice (not nil) when there are none.
func (s *Store) Fetch(ctx context.Context, target string) ([]ir.IRObject, error) {
	records, err := s.queryRecords(ctx, s.db, `
		SELECT `+recordColumns+`
		FROM records
		WHERE table_name = ? AND is_active = 1
		ORDER BY id ASC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	out := make([]ir.IRObject, len(records))
	for i, r := range records {
		out[i] = r.Object()
	}
	return out, nil
}

// Get returns the record with the given identifier, active or not.
// The boolean is false when no such record exists.
func (s *Store) Get(ctx context.Context, id int64) (Record, bool, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+recordColumns+` FROM records WHERE id = ?
	`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %d: %w", id, err)
	}
	return r, true, nil
}

// History returns every version of the entity that record id belongs to,
// oldest first.
func (s *Store) History(ctx context.Context, id int64) ([]Record, error) {
	r, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Record{}, nil
	}
	records, err := s.queryRecords(ctx, s.db, `
		SELECT `+recordColumns+`
		FROM records
		WHERE table_name = ? AND entity_key = ?
		ORDER BY version ASC, id ASC
	`, r.Table, r.EntityKey)
	if err != nil {
		return nil, fmt.Errorf("history of record %d: %w", id, err)
	}
	return records, nil
}

// Count returns the number of stored versions of target, active or not.
func (s *Store) Count(ctx context.Context, target string) (total, active int, err error) {
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM records WHERE table_name = ?
	`), target).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", target, err)
	}
	return total, active, nil
}

func (s *Store) queryRecords(ctx context.Context, q querier, query string, args ...any) ([]Record, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// activeBy returns the active record matching a WHERE clause.
func (s *Store) activeBy(ctx context.Context, q querier, where string, args ...any) (Record, bool, error) {
	r, err := scanRecord(q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+recordColumns+` FROM records WHERE is_active = 1 AND `+where), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}
