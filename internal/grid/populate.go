package grid

import (
	"fmt"
	"slices"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/protect"
)

// Populate replaces the sheet's contents with fetched records.
//
// Nested records are flattened, columns are arranged by the policy, system
// columns are locked and shaded, and the sheet is left protected. When the
// records carry identifiers, records without one are dropped. Returns the
// number of rows loaded.
func (s *Sheet) Populate(records []ir.IRObject, policy *protect.Policy) int {
	headers := ir.ExtractHeaders(records)
	keep := records
	if slices.Contains(headers, ir.IDField) {
		keep = make([]ir.IRObject, 0, len(records))
		for _, r := range records {
			if !ir.IsEmpty(ir.Flatten(r)[ir.IDField]) {
				keep = append(keep, r)
			}
		}
	}

	cols := policy.Arrange(headers)

	s.mu.Lock()
	s.reset(protect.Names(cols))
	for _, c := range cols {
		s.locked[c.Name] = c.Locked
		s.shaded[c.Name] = c.Shaded
	}
	s.protected = false
	s.mu.Unlock()

	for _, r := range keep {
		s.AppendRow(ir.Flatten(r))
	}

	s.mu.Lock()
	s.protected = true
	s.mu.Unlock()
	return len(keep)
}

// PopulateMessage is the user-facing result of a populate.
func PopulateMessage(count int) string {
	if count == 0 {
		return "No data found. Headers created."
	}
	return fmt.Sprintf("Successfully loaded %d record(s).", count)
}

// RefreshSelected overwrites selected rows with the matching fetched
// records. A row matches the record with the same identifier; only the
// columns the record carries are overwritten. Returns the number of rows
// refreshed.
func (s *Sheet) RefreshSelected(records []ir.IRObject) (int, error) {
	flat := make([]ir.IRObject, len(records))
	for i, r := range records {
		flat[i] = ir.Flatten(r)
	}

	refreshed := 0
	err := protect.WithUnlocked(s, func() error {
		seen := make(map[int]bool)
		for _, pos := range s.Selection() {
			if seen[pos] {
				continue
			}
			seen[pos] = true

			id := s.Cell(pos, ir.IDField)
			if ir.IsEmpty(id) {
				continue
			}
			rec := findByID(flat, id)
			if rec == nil {
				continue
			}
			if err := s.WriteRow(pos, rec); err != nil {
				return fmt.Errorf("refresh row %d: %w", pos+1, err)
			}
			refreshed++
		}
		return nil
	})
	return refreshed, err
}

// findByID matches identifiers numerically so a cell holding "12" finds
// the record with id 12.
func findByID(records []ir.IRObject, cell ir.IRValue) ir.IRObject {
	want, ok := ir.AsID(cell)
	if !ok {
		return nil
	}
	for _, r := range records {
		if got, ok := ir.AsID(r[ir.IDField]); ok && got == want {
			return r
		}
	}
	return nil
}
