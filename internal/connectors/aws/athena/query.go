package athena

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tablePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
	leadingWord  = regexp.MustCompile(`^[a-zA-Z]+`)
)

// Statements that modify data or schema. Athena accepts several of these in
// CTAS workflows; none of them belong in an assistant-issued query.
var forbiddenStatements = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true,
	"create": true, "drop": true, "alter": true, "truncate": true,
	"grant": true, "revoke": true, "unload": true, "msck": true,
	"vacuum": true, "optimize": true,
}

// ValidateReadOnlyQuery rejects anything that is not a single SELECT (or
// WITH ... SELECT) statement. Validation is by leading keyword per
// statement, not by scanning for substrings, so column names like
// "created_at" pass.
func ValidateReadOnlyQuery(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("athena query: empty query")
	}

	statements := strings.Split(trimmed, ";")
	seen := 0
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		seen++
		if seen > 1 {
			return fmt.Errorf("athena query: multiple statements are not allowed")
		}
		word := strings.ToLower(leadingWord.FindString(stmt))
		switch {
		case word == "select", word == "with", word == "show", word == "describe":
		case forbiddenStatements[word]:
			return fmt.Errorf("athena query: %s statements are not allowed", word)
		default:
			return fmt.Errorf("athena query: query must start with SELECT, WITH, SHOW or DESCRIBE")
		}
	}
	return nil
}

// ExpandTable substitutes the ${table} placeholder the model is told to use
// so query text never needs to carry the real database-qualified name.
func ExpandTable(sql, table string) (string, error) {
	if !strings.Contains(sql, "${table}") {
		return sql, nil
	}
	if !tablePattern.MatchString(table) {
		return "", fmt.Errorf("athena query: invalid table name %q", table)
	}
	return strings.ReplaceAll(sql, "${table}", table), nil
}
