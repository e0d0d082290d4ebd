// Package sqlcheck performs static, string-level validation of user SQL
// before it reaches a database. Validation is lexical: it guards against
// statement chaining and write-shaped statements without parsing SQL, so
// a semicolon or pagination keyword inside a string literal is rejected
// like any other. The database itself is opened read-only; this layer is
// defense in depth rather than the only barrier.
package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects which clause rules apply.
type Mode int

const (
	// ModeWidget forbids LIMIT and OFFSET because the widget layer
	// injects pagination itself.
	ModeWidget Mode = iota
	// ModeTool allows LIMIT and OFFSET so the model can paginate
	// explicitly.
	ModeTool
)

// forbiddenPrefixes are statement keywords a query must not start with.
var forbiddenPrefixes = []string{
	"drop",
	"delete",
	"update",
	"insert",
	"alter",
	"create",
	"truncate",
	"replace",
	"pragma",
}

var limitOffsetToken = regexp.MustCompile(`(?i)\b(limit|offset)\b`)

// Validate checks that query is a single read-only statement. A nil
// return means the query may be sent to the executor.
func Validate(query string, mode Mode) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("Query must be a non-empty string")
	}
	if strings.Contains(query, ";") {
		return fmt.Errorf("Semicolons are not allowed in queries")
	}

	lower := strings.ToLower(strings.TrimSpace(query))
	for _, kw := range forbiddenPrefixes {
		if strings.HasPrefix(lower, kw) {
			return fmt.Errorf("%s operations are not allowed. Only SELECT queries are permitted", strings.ToUpper(kw))
		}
	}

	if mode == ModeWidget {
		// Normalize runs of whitespace so tabs and newlines count as
		// token boundaries.
		normalized := " " + strings.Join(strings.Fields(lower), " ") + " "
		for _, tok := range []string{" limit ", " limit(", " offset ", " offset("} {
			if strings.Contains(normalized, tok) {
				kw := strings.ToUpper(strings.Trim(tok, " ("))
				return fmt.Errorf("%s clauses are not allowed in widget queries (pagination is applied automatically)", kw)
			}
		}
	}

	return nil
}

// MustValidate panics when query fails validation. For fixed queries
// known at startup; request paths use Validate.
func MustValidate(query string, mode Mode) {
	if err := Validate(query, mode); err != nil {
		panic(err)
	}
}

// HasLimitOrOffset reports whether the query already carries LIMIT or
// OFFSET as a whole-word token. The executor uses this to decide
// whether to apply its own pagination.
func HasLimitOrOffset(query string) bool {
	return limitOffsetToken.MatchString(query)
}
