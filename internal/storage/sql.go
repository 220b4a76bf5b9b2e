package storage

import (
	"strings"
)

// whereClause renders f as a SQL condition over the sessions table. bind
// returns the placeholder for the n-th (1-based) argument of the clause.
func whereClause(f Filter, bind func(n int) string) (string, []any) {
	var conds []string
	var args []any
	if f.ID != "" {
		args = append(args, f.ID)
		conds = append(conds, "id = "+bind(len(args)))
	}
	if f.ShadowID != "" {
		args = append(args, f.ShadowID)
		conds = append(conds, "shadow_id = "+bind(len(args)))
	}
	if f.OpenOnly {
		conds = append(conds, "ended_at IS NULL")
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
