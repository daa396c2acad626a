package store

import "fmt"

// Predicate is one of the filter engine's comparison operators.
type Predicate string

const (
	Eq       Predicate = "eq"
	Ne       Predicate = "ne"
	Gt       Predicate = "gt"
	Lt       Predicate = "lt"
	Gte      Predicate = "gte"
	Lte      Predicate = "lte"
	Like     Predicate = "like"
	NotLike  Predicate = "not_like"
	In       Predicate = "in"
	NotIn    Predicate = "not_in"
	HasKey   Predicate = "has_key"   // JSON-column key presence
	Contains Predicate = "contains"  // JSON-subset containment
)

// ColumnKind tells the filter renderer how to cast a column's SQL path.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindTime
	KindInt
	KindBool
	KindJSON
)

// Column is the typed description of one filterable column, as declared by
// an entity's capability record (Table).
type Column struct {
	// SQLPath is the bare column name, or for a JSON column the column
	// name the filter engine applies jsonb operators / ->> traversal to.
	SQLPath string
	Kind    ColumnKind
}

// Table is the capability record an entity exposes to the Store Gateway:
// its table name, primary key column, and the typed column map that
// drives predicate rendering and safe JSON-path traversal.
type Table interface {
	TableName() string
	PrimaryKeyColumn() string
	Columns() map[string]Column
}

// Where is one (column, predicate, value) clause. JSONPath, when set,
// is a dotted path into a JSON column (e.g. ["Secrets"] to reach
// data->>'Secrets') used by Eq and the other comparison predicates on a
// nested field. HasKey and Contains ignore it and test the column itself.
type Where struct {
	Column    string
	Predicate Predicate
	Value     interface{}
	JSONPath  []string
}

// Filter is a set of Where clauses AND'd together, with ordering and
// pagination (default limit 100).
type Filter struct {
	Wheres  []Where
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// NewFilter returns an empty filter with the spec's default limit.
func NewFilter() *Filter {
	return &Filter{Limit: 100}
}

func (f *Filter) Where(column string, pred Predicate, value interface{}) *Filter {
	f.Wheres = append(f.Wheres, Where{Column: column, Predicate: pred, Value: value})
	return f
}

func (f *Filter) WhereJSON(column string, pred Predicate, path []string, value interface{}) *Filter {
	f.Wheres = append(f.Wheres, Where{Column: column, Predicate: pred, Value: value, JSONPath: path})
	return f
}

func (f *Filter) OrderByDesc(column string) *Filter {
	f.OrderBy = column
	f.Desc = true
	return f
}

func (f *Filter) WithLimit(limit, offset int) *Filter {
	if limit > 0 {
		f.Limit = limit
	}
	f.Offset = offset
	return f
}

// renderColumn returns the SQL expression the predicate applies to,
// honoring the column's declared kind and any JSON subpath.
func renderColumn(col Column, path []string) string {
	expr := col.SQLPath
	if col.Kind == KindJSON && len(path) > 0 {
		for i, p := range path {
			if i == len(path)-1 {
				expr = fmt.Sprintf("%s->>'%s'", expr, escapeIdent(p))
			} else {
				expr = fmt.Sprintf("%s->'%s'", expr, escapeIdent(p))
			}
		}
	}
	return expr
}

// escapeIdent guards against JSON path components containing quotes;
// paths come from the entity's own column map or from query parameters
// already validated against that map, never raw user SQL.
func escapeIdent(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
