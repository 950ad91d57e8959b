// Package grid is an in-memory worksheet: a header row, data rows of scalar
// cells, a selection, and column protection.
//
// Positions are 0-based data-row indices; the header row is not addressable
// as data. A protected sheet refuses writes to locked columns, so every
// mutation of a locked column goes through protect.WithUnlocked.
package grid

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/protect"
)

// ErrLocked is returned when a write touches a locked column of a
// protected sheet.
var ErrLocked = errors.New("cell is locked")

// Sheet is a single worksheet. Safe for concurrent use.
type Sheet struct {
	mu        sync.RWMutex
	headers   []string
	index     protect.Index
	rows      [][]ir.IRValue
	locked    map[string]bool
	shaded    map[string]bool
	protected bool
	selection []int
}

// NewSheet creates an empty sheet with the given header row.
func NewSheet(headers []string) *Sheet {
	s := &Sheet{}
	s.reset(headers)
	return s
}

func (s *Sheet) reset(headers []string) {
	s.headers = slices.Clone(headers)
	s.index = protect.NewIndex(s.headers)
	s.rows = nil
	s.locked = make(map[string]bool)
	s.shaded = make(map[string]bool)
	s.selection = nil
}

// Headers returns the header row.
func (s *Sheet) Headers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.headers)
}

// Len returns the number of data rows.
func (s *Sheet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// AppendRow adds a data row and returns its position. Columns the sheet
// does not have are ignored.
func (s *Sheet) AppendRow(fields ir.IRObject) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := make([]ir.IRValue, len(s.headers))
	for i := range row {
		row[i] = ir.IRNull{}
	}
	for k, v := range fields {
		if i := s.index.Of(k); i >= 0 {
			row[i] = v
		}
	}
	s.rows = append(s.rows, row)
	return len(s.rows) - 1
}

// Row returns the cells of the row at pos keyed by header.
func (s *Sheet) Row(pos int) (ir.IRObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= len(s.rows) {
		return nil, fmt.Errorf("row %d out of range (sheet has %d data rows)", pos+1, len(s.rows))
	}
	return s.rowObject(pos), nil
}

func (s *Sheet) rowObject(pos int) ir.IRObject {
	obj := make(ir.IRObject, len(s.headers))
	for i, h := range s.headers {
		if h == "" {
			continue
		}
		obj[h] = s.rows[pos][i]
	}
	return obj
}

// Cell returns one cell value. Unknown columns read as null.
func (s *Sheet) Cell(pos int, column string) ir.IRValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.index.Of(column)
	if i < 0 || pos < 0 || pos >= len(s.rows) {
		return ir.IRNull{}
	}
	return s.rows[pos][i]
}

// WriteRow writes several cells of one row in a single operation. Columns
// the sheet does not have are skipped. Nothing is written if any target
// cell is locked.
func (s *Sheet) WriteRow(pos int, values ir.IRObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.rows) {
		return fmt.Errorf("write row %d: out of range", pos+1)
	}
	if s.protected {
		for col := range values {
			if s.locked[col] && s.index.Of(col) >= 0 {
				return fmt.Errorf("write row %d column %q: %w", pos+1, col, ErrLocked)
			}
		}
	}
	for col, v := range values {
		if i := s.index.Of(col); i >= 0 {
			s.rows[pos][i] = v
		}
	}
	return nil
}

// Protected reports whether sheet protection is on.
func (s *Sheet) Protected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protected
}

// SetProtected turns sheet protection on or off.
func (s *Sheet) SetProtected(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protected = on
	return nil
}

// ApplyColumns sets lock and shade state from an arranged column list.
// Columns not listed keep their state.
func (s *Sheet) ApplyColumns(cols []protect.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cols {
		s.locked[c.Name] = c.Locked
		s.shaded[c.Name] = c.Shaded
	}
}

// Locked reports whether a column is locked.
func (s *Sheet) Locked(column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked[column]
}

// Shaded reports whether a column is shaded.
func (s *Sheet) Shaded(column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shaded[column]
}

// Select replaces the selection. Positions may repeat, as they do when
// selection areas overlap.
func (s *Sheet) Select(positions ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		if p < 0 || p >= len(s.rows) {
			return fmt.Errorf("select row %d: out of range (sheet has %d data rows)", p+1, len(s.rows))
		}
	}
	s.selection = slices.Clone(positions)
	return nil
}

// SelectAll selects every data row.
func (s *Sheet) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = make([]int, len(s.rows))
	for i := range s.rows {
		s.selection[i] = i
	}
}

// Selection returns the selected positions in selection order.
func (s *Sheet) Selection() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.selection)
}

// ReadSelection returns the selected rows in selection order, repeats
// included.
func (s *Sheet) ReadSelection() []ir.GridRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ir.GridRow, 0, len(s.selection))
	for _, p := range s.selection {
		out = append(out, ir.GridRow{Position: p, Fields: s.rowObject(p)})
	}
	return out
}

// ApplyPolicy locks and shades the sheet's system columns and unlocks the
// rest. Used for sheets loaded from a file rather than populated.
func (s *Sheet) ApplyPolicy(p *protect.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.headers {
		sys := p.IsSystem(h)
		s.locked[h] = sys
		s.shaded[h] = sys
	}
}
