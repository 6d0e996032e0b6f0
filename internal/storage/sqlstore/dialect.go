package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect interface {
	Name() string
	// Schema returns the DDL statements run at startup, in order.
	Schema() []string
	// LockHost serialises writers for one host record inside tx.
	LockHost(ctx context.Context, tx *sql.Tx, hostKey string) error
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation(err error) bool
	// Rebind rewrites '?' placeholders into the engine's style.
	Rebind(query string) string
}

// RebindDollar rewrites '?' placeholders as $1, $2, ... Quoted text is not
// inspected; queries in this package never contain a literal '?'.
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
