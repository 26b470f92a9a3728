package dbconn

import (
	"github.com/xwb1989/sqlparser"
)

// IsSelect classifies a statement by parsing it and switching on the
// resulting AST node type, rather than re-deriving a hand-rolled keyword
// sniffer. Get() uses this to reject non-SELECT statements up front
// instead of discovering the mismatch from a driver error.
func IsSelect(query string) (bool, error) {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return false, err
	}
	_, ok := stmt.(*sqlparser.Select)
	return ok, nil
}

// IsBareExpression reports whether fragment parses as a standalone
// boolean expression (suitable for an extra_predicate) rather than a full
// statement. It's used to give a clearer error when a caller accidentally
// passes a whole SQL statement as an extra_predicate fragment.
func IsBareExpression(fragment string) bool {
	_, err := sqlparser.Parse("SELECT 1 WHERE " + fragment)
	return err == nil
}
