package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pqUniqueViolation is the Postgres error code raised when an insert hits a
// unique index.
const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Dedup code paths treat these as "row already exists", not as
// failures.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
