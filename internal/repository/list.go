package repository

import (
	"fmt"
	"strings"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

// Normalized applies the default and maximum limit and clamps the offset.
func (p Page) Normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	} else if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Sort names a column from an allow-list and a direction.
type Sort struct {
	Field string
	Desc  bool
}

func (s Sort) clause(allowed map[string]string, fallback string) string {
	column, ok := allowed[strings.ToLower(strings.TrimSpace(s.Field))]
	if !ok {
		column = fallback
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s", column, dir)
}

// whereBuilder collects AND-ed predicates with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) arg(value interface{}) string {
	w.args = append(w.args, value)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(format string, values ...interface{}) {
	placeholders := make([]interface{}, 0, len(values))
	for _, v := range values {
		placeholders = append(placeholders, w.arg(v))
	}
	w.clauses = append(w.clauses, fmt.Sprintf(format, placeholders...))
}

func (w *whereBuilder) addContains(column string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	w.add(column+" ILIKE %s", "%"+escapeLike(strings.TrimSpace(*value))+"%")
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
