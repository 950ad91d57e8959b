// Package catalog describes the targets a grid can be synced with: each
// table's name, its type and the unique keys that identify an entity.
//
// Catalogs are written in CUE:
//
//	table: cargo_types: {
//		type:        "master"
//		unique_keys: ["cargo_type"]
//		description: "Cargo classifications"
//	}
//
// or fetched from the store's catalog target.
package catalog

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/gridsync/internal/ir"
)

// RemoteTarget is the store target holding the catalog rows
// {id, table_name, table_type, unique_keys}.
const RemoteTarget = "table_catalog"

// Catalog is an immutable set of table specs, ordered by type then name.
type Catalog struct {
	tables []ir.TableSpec
	byName map[string]int
}

// New builds a catalog. A name given twice is an error.
func New(tables []ir.TableSpec) (*Catalog, error) {
	c := &Catalog{
		tables: make([]ir.TableSpec, len(tables)),
		byName: make(map[string]int, len(tables)),
	}
	copy(c.tables, tables)
	sort.SliceStable(c.tables, func(i, j int) bool {
		if c.tables[i].Type != c.tables[j].Type {
			return c.tables[i].Type < c.tables[j].Type
		}
		return c.tables[i].Name < c.tables[j].Name
	})
	for i, t := range c.tables {
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("catalog: table %q defined more than once", t.Name)
		}
		c.byName[t.Name] = i
	}
	return c, nil
}

// Tables returns every table spec.
func (c *Catalog) Tables() []ir.TableSpec {
	return slices.Clone(c.tables)
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	return len(c.tables)
}

// Lookup finds a table by name.
func (c *Catalog) Lookup(name string) (ir.TableSpec, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ir.TableSpec{}, false
	}
	return c.tables[i], true
}

// UniqueKeys returns the unique keys of a table, or nil when the table is
// unknown or has none configured.
func (c *Catalog) UniqueKeys(name string) []string {
	t, ok := c.Lookup(name)
	if !ok {
		return nil
	}
	return slices.Clone(t.UniqueKeys)
}

// Types returns the distinct table types in sorted order.
func (c *Catalog) Types() []string {
	var types []string
	for _, t := range c.tables {
		if len(types) == 0 || types[len(types)-1] != t.Type {
			types = append(types, t.Type)
		}
	}
	return types
}

// GroupByType groups the tables by type, each group ordered by name.
func (c *Catalog) GroupByType() map[string][]ir.TableSpec {
	groups := make(map[string][]ir.TableSpec)
	for _, t := range c.tables {
		groups[t.Type] = append(groups[t.Type], t)
	}
	return groups
}

// FromRecords builds a catalog from the rows of the store's catalog
// target. Rows without a table name are skipped.
func FromRecords(records []ir.IRObject) (*Catalog, error) {
	tables := make([]ir.TableSpec, 0, len(records))
	for i, r := range records {
		name, _ := r["table_name"].(ir.IRString)
		if name == "" {
			continue
		}
		t := ir.TableSpec{Name: string(name)}
		if typ, ok := r["table_type"].(ir.IRString); ok {
			t.Type = string(typ)
		}
		if d, ok := r["description"].(ir.IRString); ok {
			t.Description = string(d)
		}
		switch keys := r["unique_keys"].(type) {
		case ir.IRArray:
			for _, k := range keys {
				s, ok := k.(ir.IRString)
				if !ok {
					return nil, fmt.Errorf("catalog record %d (%s): unique_keys must be strings", i, name)
				}
				t.UniqueKeys = append(t.UniqueKeys, string(s))
			}
		case nil, ir.IRNull:
		default:
			return nil, fmt.Errorf("catalog record %d (%s): unique_keys must be a list", i, name)
		}
		tables = append(tables, t)
	}
	return New(tables)
}

// BatchRequest builds the upsert that publishes c to the store's catalog
// target. existing is the target's current content: tables already there
// are sent with their id so the store versions them instead of reporting
// duplicates.
func (c *Catalog) BatchRequest(callerID string, existing []ir.IRObject) ir.BatchRequest {
	ids := make(map[string]int64, len(existing))
	for _, r := range existing {
		name, _ := r["table_name"].(ir.IRString)
		if id, ok := ir.AsID(r[ir.IDField]); ok && name != "" {
			ids[string(name)] = id
		}
	}

	req := ir.BatchRequest{
		Target:     RemoteTarget,
		Intent:     ir.IntentUpsert,
		CallerID:   callerID,
		UniqueKeys: []string{"table_name"},
		Rows:       make([]ir.RequestRow, 0, len(c.tables)),
	}
	for _, t := range c.tables {
		keys := make(ir.IRArray, len(t.UniqueKeys))
		for i, k := range t.UniqueKeys {
			keys[i] = ir.IRString(k)
		}
		row := ir.RequestRow{Fields: ir.IRObject{
			"table_name":  ir.IRString(t.Name),
			"table_type":  ir.IRString(t.Type),
			"unique_keys": keys,
		}}
		if t.Description != "" {
			row.Fields["description"] = ir.IRString(t.Description)
		}
		if id, ok := ids[t.Name]; ok {
			row.ID = &id
		}
		req.Rows = append(req.Rows, row)
	}
	return req
}
