package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRows parses a 1-based row list such as "1-3,7" into positions.
// Overlapping ranges yield repeated positions, the way overlapping
// selection areas do.
func ParseRows(spec string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := parseRowNumber(lo)
		if err != nil {
			return nil, err
		}
		to := from
		if isRange {
			if to, err = parseRowNumber(hi); err != nil {
				return nil, err
			}
		}
		if to < from {
			return nil, fmt.Errorf("invalid row range %q", part)
		}
		for n := from; n <= to; n++ {
			out = append(out, n-1)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty row selection %q", spec)
	}
	return out, nil
}

func parseRowNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid row number %q", s)
	}
	return n, nil
}
