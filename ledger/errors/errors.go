package errors

import "errors"

// ErrNoEntry is the error we get when iterating past the last ledger entry
// or requesting a key that was never appended. Cursors use it as the flag
// value for reaching the end of the database.
var ErrNoEntry = errors.New("no ledger entry stored")

// ErrWriteConflict is returned when an append targets an existing key with
// different content. It reflects transient contention or a duplicate
// submission race, never node misbehavior, and is the only error class worth
// retrying with backoff.
var ErrWriteConflict = errors.New("conflicting ledger write")
