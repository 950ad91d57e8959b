package catalog

import (
	"fmt"
	"regexp"

	"github.com/roach88/gridsync/internal/ir"
)

var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks a compiled table spec. Returns all errors found.
//
// A table without unique keys is valid: it can be pulled and deleted from,
// and pushes to it fail with UNIQUE_KEYS_NOT_CONFIGURED.
func Validate(t ir.TableSpec) []error {
	var errs []error
	if !tableNameRe.MatchString(t.Name) {
		errs = append(errs, &LoadError{
			Code:    ErrCodeInvalidName,
			Message: fmt.Sprintf("table %q: name must be lower snake_case", t.Name),
		})
	}
	if t.Type == "" {
		errs = append(errs, &LoadError{
			Code:    ErrCodeTableType,
			Message: fmt.Sprintf("table %s: type must not be empty", t.Name),
		})
	}
	seen := make(map[string]bool, len(t.UniqueKeys))
	for _, k := range t.UniqueKeys {
		switch {
		case k == ir.IDField:
			errs = append(errs, &LoadError{
				Code:    ErrCodeReservedKey,
				Message: fmt.Sprintf("table %s: %q cannot be a unique key", t.Name, k),
			})
		case k == "":
			errs = append(errs, &LoadError{
				Code:    ErrCodeUniqueKeys,
				Message: fmt.Sprintf("table %s: unique key must not be empty", t.Name),
			})
		case seen[k]:
			errs = append(errs, &LoadError{
				Code:    ErrCodeDuplicateKey,
				Message: fmt.Sprintf("table %s: unique key %q listed twice", t.Name, k),
			})
		}
		seen[k] = true
	}
	return errs
}
