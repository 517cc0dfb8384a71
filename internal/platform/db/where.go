package db

import (
	"fmt"
	"strings"
)

// Where accumulates AND-ed SQL predicates with numbered placeholders.
// Each expression carries one %d verb for its argument position.
type Where struct {
	clauses []string
	args    []any
}

func (w *Where) Add(expr string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(expr, len(w.args)))
}

// Next returns the placeholder number the next argument would take.
func (w *Where) Next() int { return len(w.args) + 1 }

func (w *Where) Args() []any { return w.args }

func (w *Where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
