// Package protect decides which grid columns users may edit and brackets
// every grid mutation with an unlock/relock pair.
//
// The policy itself is stateless: column arrangement is a pure function of
// the incoming column list and the set of system-managed columns.
package protect

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/gridsync/internal/ir"
)

// ShadeColor is the fill applied to cells of system-managed columns.
const ShadeColor = "#e5e5e5"

// SystemColumns are the store-managed columns, in display order.
var SystemColumns = []string{
	ir.IDField,
	"version",
	"is_active",
	"tenant_id",
	"created_by",
	"created_on",
	"updated_by",
	"updated_on",
	"valid_from",
	"valid_to",
}

// Column is one arranged grid column.
type Column struct {
	Name    string `json:"name"`
	Display string `json:"display"`
	Locked  bool   `json:"locked"`
	Shaded  bool   `json:"shaded"`
}

// Policy is an ordered set of system-managed column names.
type Policy struct {
	system []string
	set    map[string]bool
}

// DefaultPolicy returns the policy over SystemColumns.
func DefaultPolicy() *Policy {
	return NewPolicy(SystemColumns...)
}

// NewPolicy creates a policy over the given system columns. The identifier
// column is always part of the policy and always first.
func NewPolicy(system ...string) *Policy {
	p := &Policy{set: make(map[string]bool, len(system)+1)}
	p.add(ir.IDField)
	for _, c := range system {
		p.add(c)
	}
	return p
}

func (p *Policy) add(c string) {
	if c == "" || p.set[c] {
		return
	}
	p.set[c] = true
	p.system = append(p.system, c)
}

// IsSystem reports whether name is a system-managed column.
func (p *Policy) IsSystem(name string) bool {
	return p.set[name]
}

// SystemColumns returns the policy's columns in order.
func (p *Policy) SystemColumns() []string {
	return slices.Clone(p.system)
}

// Arrange orders columns for display: the identifier first, then the
// user-editable columns in source order, then every other system column in
// policy order. System columns are always present, even when the source
// does not carry them, so the layout does not depend on the data.
func (p *Policy) Arrange(all []string) []Column {
	var user []string
	seen := make(map[string]bool, len(all))
	for _, c := range all {
		if c == "" || seen[c] || p.set[c] {
			continue
		}
		seen[c] = true
		user = append(user, c)
	}

	out := make([]Column, 0, len(user)+len(p.system))
	out = append(out, p.column(ir.IDField))
	for _, c := range user {
		out = append(out, p.column(c))
	}
	for _, c := range p.system {
		if c == ir.IDField {
			continue
		}
		out = append(out, p.column(c))
	}
	return out
}

func (p *Policy) column(name string) Column {
	sys := p.set[name]
	return Column{
		Name:    name,
		Display: DisplayName(name),
		Locked:  sys,
		Shaded:  sys,
	}
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Index maps column name to position. It is valid for the column list it
// was built from; rebuild it after any re-arrangement.
type Index map[string]int

// NewIndex builds an Index over names. The first occurrence of a name wins.
func NewIndex(names []string) Index {
	idx := make(Index, len(names))
	for i, n := range names {
		if _, ok := idx[n]; !ok {
			idx[n] = i
		}
	}
	return idx
}

// Of returns the position of name, or -1.
func (ix Index) Of(name string) int {
	if i, ok := ix[name]; ok {
		return i
	}
	return -1
}

// DisplayName renders a snake_case column name as title words:
// "created_on" becomes "Created On".
func DisplayName(snake string) string {
	caser := cases.Title(language.Und)
	parts := strings.Split(snake, "_")
	words := make([]string, 0, len(parts))
	for _, w := range parts {
		if w == "" {
			continue
		}
		words = append(words, caser.String(strings.ToLower(w)))
	}
	return strings.Join(words, " ")
}
