package store

import (
	"fmt"
	"strings"
)

// inClause renders an IN (...) query from a format string with one %s slot
// for the placeholder list, returning the query and its args.
func inClause(format string, values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return fmt.Sprintf(format, strings.Join(placeholders, ",")), args
}
