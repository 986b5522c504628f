package gtid

import (
	"errors"

	jerrors "github.com/juju/errors"
)

// Error kinds. These are sentinel values in the style of
// server/innodb/basic's Err* set in the teacher repo: callers compare
// against them with jerrors.Cause after unwrapping an annotated error.
var (
	// ErrTableUnavailable means the ledger table could not be opened.
	// It is the one recoverable kind: callers should treat the ledger
	// as "not ready yet" rather than fail hard.
	ErrTableUnavailable = errors.New("gtid ledger: table unavailable")

	// ErrSchemaMismatch means the table has fewer than three columns.
	ErrSchemaMismatch = errors.New("gtid ledger: schema mismatch")

	// ErrMalformedSid means a SID could not be parsed from its textual form.
	ErrMalformedSid = errors.New("gtid ledger: malformed sid")

	// ErrMalformedInterval means a row's text form could not be parsed.
	ErrMalformedInterval = errors.New("gtid ledger: malformed interval")

	// ErrRowTooLong means a field could not be stored into a row buffer.
	ErrRowTooLong = errors.New("gtid ledger: row too long")

	// ErrStorageError is any other storage-layer non-success.
	ErrStorageError = errors.New("gtid ledger: storage error")
)

// IsRecoverable reports whether err represents a recoverable failure
// (TableUnavailable) as opposed to a hard failure. The persistor's
// public operations return a tri-value outcome: success, recoverable
// failure, or hard failure; this is how callers distinguish the
// middle case.
func IsRecoverable(err error) bool {
	return jerrors.Cause(err) == ErrTableUnavailable
}
