package db

import (
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var allowedOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {},
}

// InvalidIdentifierError is returned in strict mode for a table, column or operator
// that may not be interpolated into SQL.
type InvalidIdentifierError struct {
	Kind  string
	Value string
}

func (e *InvalidIdentifierError) Error() string {
	return "Invalid " + e.Kind + ": " + e.Value
}

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// ValidOperator reports whether op is an allowed comparison operator.
func ValidOperator(op string) bool {
	_, ok := allowedOperators[strings.ToUpper(strings.Join(strings.Fields(op), " "))]
	return ok
}

func checkTable(table string) error {
	if !ValidIdentifier(table) {
		return &InvalidIdentifierError{Kind: "table", Value: table}
	}
	return nil
}

func checkColumn(col string) error {
	if !ValidIdentifier(col) {
		return &InvalidIdentifierError{Kind: "column", Value: col}
	}
	return nil
}

// checkQuery validates every identifier and operator in q.
func checkQuery(q Query) error {
	for _, f := range q.Filters {
		if err := checkColumn(f.Column); err != nil {
			return err
		}
		if !ValidOperator(f.Operator) {
			return &InvalidIdentifierError{Kind: "operator", Value: f.Operator}
		}
	}
	if q.Order != nil {
		return checkColumn(q.Order.Column)
	}
	return nil
}
