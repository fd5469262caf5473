// Package evoerr enumerates the error kinds produced by the dispatcher
// core (spec §7). Each kind is a sentinel that callers can match with
// errors.Is after a %w-wrapped return.
package evoerr

import "errors"

var (
	// ErrQueueWrite is returned when an envelope cannot be persisted to
	// the command queue. Writers log and swallow this error; they never
	// block on queue failure.
	ErrQueueWrite = errors.New("queue-write")

	// ErrQueueEmpty is returned by Queue.Read when no envelope matches
	// the requested filter. It is expected, not exceptional.
	ErrQueueEmpty = errors.New("queue-empty")

	// ErrDBInit is returned when the external database cannot be opened
	// or initialized for a top-level operation.
	ErrDBInit = errors.New("db-init")

	// ErrDBCurrency is returned when a required database row cannot be
	// made current (found) before a read.
	ErrDBCurrency = errors.New("db-currency")

	// ErrTranslatorUnsupported is returned by the appliance translator
	// when it is asked to render a command/banner combination it has no
	// defined wire form for.
	ErrTranslatorUnsupported = errors.New("translator-unsupported")

	// ErrNoAddress is returned when a device has no known address to
	// dispatch to (spec §4.E step 1: "report alert, mark connection
	// closed, and return no-address").
	ErrNoAddress = errors.New("no-address")

	// ErrConnectFailed is returned when the appliance transport exhausts
	// its bounded connect retries.
	ErrConnectFailed = errors.New("connect-failed")

	// ErrWriteFailed is returned when zero bytes could be written to an
	// otherwise-open appliance socket.
	ErrWriteFailed = errors.New("write-failed")

	// ErrReadTimeout is returned when the appliance transport exhausts
	// its bounded read retries without receiving a response.
	ErrReadTimeout = errors.New("read-timeout")

	// ErrJournalBusy is returned when a journal operation could not
	// proceed because a concurrent reader or writer held the advisory
	// flag past the grace period.
	ErrJournalBusy = errors.New("journal-busy")

	// ErrJournalIO is returned for any other journal file I/O failure.
	ErrJournalIO = errors.New("journal-io")

	// ErrBadFormInput is returned when a CGI request's form encoding
	// cannot be parsed.
	ErrBadFormInput = errors.New("bad-form-input")
)
