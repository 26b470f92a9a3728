package queue

import (
	"github.com/clusterkit/clusterkit/internal/dbconn"
	"github.com/clusterkit/clusterkit/internal/dberrors"
)

// ExtraPredicate is a raw SQL boolean-expression fragment plus its
// positional arguments. When present it is escaped via the same %s
// parameter substitution as the connection handle and appended as
// "AND (<fragment>)" to every claim, query, and bulk-finish statement.
type ExtraPredicate struct {
	Fragment string
	Args     []interface{}
}

// NewExtraPredicate validates that fragment parses as a bare boolean
// expression (rather than a whole statement smuggled in as a fragment)
// before building the predicate, so a caller's mistake surfaces as a
// clear FormatException instead of a confusing SQL syntax error deep in
// a claim/query/bulk-finish statement.
func NewExtraPredicate(fragment string, args ...interface{}) (*ExtraPredicate, error) {
	// Validate the fragment with its placeholders substituted: the parser
	// does not accept a bare %s.
	escaped, err := dbconn.Escape(fragment, args, nil)
	if err != nil {
		return nil, err
	}
	if !dbconn.IsBareExpression(escaped) {
		return nil, &dberrors.FormatException{Reason: "extra_predicate must be a bare boolean expression, not a full statement: " + fragment}
	}
	return &ExtraPredicate{Fragment: fragment, Args: args}, nil
}
