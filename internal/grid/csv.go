package grid

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/gridsync/internal/ir"
)

// ReadCSV loads a sheet from CSV. The first record is the header row.
// Cells are typed the way a spreadsheet would show them: blank cells are
// null, plain integers and decimals are numbers, everything else is text.
func ReadCSV(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	s := NewSheet(header)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		fields := make(ir.IRObject, len(header))
		for i, h := range header {
			if h == "" || i >= len(rec) {
				continue
			}
			fields[h] = ParseCell(rec[i])
		}
		s.AppendRow(fields)
	}
	return s, nil
}

// WriteCSV writes the header row and every data row.
func (s *Sheet) WriteCSV(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(s.headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rec := make([]string, len(s.headers))
	for pos, row := range s.rows {
		for i, v := range row {
			rec[i] = ir.String(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", pos+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCell types a text cell. Integers with a leading zero ("007") stay
// text so codes survive a round trip.
func ParseCell(text string) ir.IRValue {
	t := strings.TrimSpace(text)
	if t == "" {
		return ir.IRNull{}
	}
	if hasLeadingZero(t) {
		return ir.IRString(text)
	}
	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		return ir.IRInt(n)
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && isDecimal(t) {
		return ir.IRFloat(f)
	}
	switch t {
	case "true":
		return ir.IRBool(true)
	case "false":
		return ir.IRBool(false)
	}
	return ir.IRString(text)
}

func hasLeadingZero(t string) bool {
	t = strings.TrimPrefix(t, "-")
	return len(t) > 1 && t[0] == '0' && t[1] != '.'
}

// isDecimal rejects forms ParseFloat accepts but a sheet shows as text,
// such as "Inf", "NaN" and hex floats.
func isDecimal(t string) bool {
	for _, r := range t {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E':
		default:
			return false
		}
	}
	return true
}
