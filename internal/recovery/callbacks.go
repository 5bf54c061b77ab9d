package recovery

import "github.com/voron-io/journalrecovery/internal/tracelog"

// Callbacks lets the outer store observe recoverable defects without
// the engine logging or printing directly (spec.md §6, "the core does
// not log or print directly"). A torn transaction, a decompression
// failure, and a garbage tail followed by a later valid header are each
// reported through it; a garbage tail with no later valid header is not
// reported.
type Callbacks interface {
	// OnRecoverableDefect is invoked once per reported defect. source
	// identifies the journal file, message is a short human-readable
	// description, and cause is the underlying error if one exists (nil
	// for defects detected without an error return, e.g. a torn header).
	OnRecoverableDefect(source, message string, cause error)
}

// NopCallbacks discards every defect notification. Useful for tests and
// for callers that only care about the reader's terminal state
// (Next4Kb, RequireHeaderUpdate, LastTransactionHeader).
type NopCallbacks struct{}

func (NopCallbacks) OnRecoverableDefect(source, message string, cause error) {}

// CallbacksFunc adapts a plain function to Callbacks.
type CallbacksFunc func(source, message string, cause error)

func (f CallbacksFunc) OnRecoverableDefect(source, message string, cause error) {
	f(source, message, cause)
}

// LoggingCallbacks is the default Callbacks an outer store can use
// without writing its own routing: defects backed by an actual error
// go to tracelog.ErrorLogger, defects detected without one (a torn
// header, a suspected journal reuse) go to tracelog.WarningLogger.
type LoggingCallbacks struct{}

func (LoggingCallbacks) OnRecoverableDefect(source, message string, cause error) {
	if cause != nil {
		tracelog.ErrorLogger.PrintOnError(cause)
		return
	}
	tracelog.WarningLogger.Printf("%s: %s", source, message)
}
