package qbclient

import (
	"fmt"
	"strconv"
	"strings"
)

// EscapeQuery makes s safe to embed inside a single quoted literal of the
// QuickBooks query language. Every value interpolated into a query must go
// through it.
func EscapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Query builds `SELECT * FROM <Entity> [WHERE ...] [MAXRESULTS n]`.
type Query struct {
	entity     string
	conditions []string
	maxResults int
}

func Select(entity string) *Query {
	return &Query{entity: entity}
}

// Where adds `field = 'value'`, escaping value.
func (q *Query) Where(field, value string) *Query {
	q.conditions = append(q.conditions, fmt.Sprintf("%s = '%s'", field, EscapeQuery(value)))
	return q
}

// WhereBool adds an unquoted boolean comparison.
func (q *Query) WhereBool(field string, value bool) *Query {
	q.conditions = append(q.conditions, fmt.Sprintf("%s = %s", field, strconv.FormatBool(value)))
	return q
}

func (q *Query) MaxResults(n int) *Query {
	q.maxResults = n
	return q
}

func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(q.entity)
	if len(q.conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conditions, " AND "))
	}
	if q.maxResults > 0 {
		b.WriteString(" MAXRESULTS ")
		b.WriteString(strconv.Itoa(q.maxResults))
	}
	return b.String()
}
