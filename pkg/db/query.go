package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const DefaultPageSize = 20

// Filter is one `column,operator,value` condition.
type Filter struct {
	Column   string
	Operator string
	Value    string
}

// Order is an ORDER BY column and direction. Desc is false for ascending.
type Order struct {
	Column string
	Desc   bool
}

// Query holds the filter, search, order and paging options of a list request.
type Query struct {
	Order   *Order
	Filters []Filter
	Search  string
	// Page is 1-based; 0 means no paging. Size applies only when Page is set.
	Page int
	Size int
	// Limit is nil when no plain limit was requested.
	Limit *int
}

// Paged reports whether LIMIT/OFFSET come from page and size.
func (q Query) Paged() bool { return q.Page > 0 }

// Offset returns (Page-1)*Size.
func (q Query) Offset() int {
	if !q.Paged() {
		return 0
	}
	return (q.Page - 1) * q.Size
}

// ParseQuery reads filter, search, order, page, size and limit from query parameters.
//
// filter may repeat (also as filter[]); each value splits into at most three parts
// so the value part can hold commas. Triples with fewer than three parts are
// dropped. An order without a direction is ignored. An unparsable or non-positive
// page becomes 1 and size falls back to DefaultPageSize. An unparsable limit is ignored.
func ParseQuery(values url.Values) Query {
	var q Query

	filters := append(append([]string{}, values["filter"]...), values["filter[]"]...)
	for _, f := range filters {
		parts := strings.SplitN(f, ",", 3)
		if len(parts) < 3 {
			continue
		}
		q.Filters = append(q.Filters, Filter{Column: parts[0], Operator: parts[1], Value: parts[2]})
	}

	q.Search = values.Get("search")

	if order := values.Get("order"); order != "" {
		parts := strings.Split(order, ",")
		if len(parts) >= 2 {
			q.Order = &Order{Column: parts[0], Desc: strings.EqualFold(parts[1], "desc")}
		}
	}

	if values.Has("page") {
		q.Page = positiveInt(values.Get("page"), 1)
		q.Size = positiveInt(values.Get("size"), DefaultPageSize)
	} else if values.Has("limit") {
		if n, err := strconv.Atoi(values.Get("limit")); err == nil && n >= 0 {
			q.Limit = &n
		}
	}

	return q
}

func positiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// whereClause is a list of conditions joined with AND, plus their bound args.
type whereClause struct {
	conditions []string
	args       []any
}

func (w whereClause) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// buildWhere turns filters and a search over searchable columns into a WHERE clause.
func buildWhere(d Dialect, q Query, searchable []string) whereClause {
	qb := newQueryBuilder(d)
	var w whereClause

	for _, f := range q.Filters {
		w.conditions = append(w.conditions, fmt.Sprintf("%s %s %s", f.Column, f.Operator, qb.bind(f.Value)))
	}

	if q.Search != "" && len(searchable) > 0 {
		pattern := "%" + q.Search + "%"
		var ors []string
		for _, col := range searchable {
			ors = append(ors, fmt.Sprintf("%s LIKE %s", col, qb.bind(pattern)))
		}
		w.conditions = append(w.conditions, "("+strings.Join(ors, " OR ")+")")
	}

	w.args = qb.args
	return w
}

// buildSelect returns the list statement and the matching COUNT(*) statement. Both share args.
func buildSelect(d Dialect, table string, q Query, searchable []string) (selectSQL, countSQL string, args []any) {
	where := buildWhere(d, q, searchable)

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	b.WriteString(where.String())

	if q.Order != nil {
		dir := "ASC"
		if q.Order.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.Order.Column, dir)
	}

	switch {
	case q.Paged():
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", q.Size, q.Offset())
	case q.Limit != nil:
		fmt.Fprintf(&b, " LIMIT %d", *q.Limit)
	}

	countSQL = "SELECT COUNT(*) AS total FROM " + table + where.String()
	return b.String(), countSQL, where.args
}
