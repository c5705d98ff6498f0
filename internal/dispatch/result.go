package dispatch

import "errors"

// Outcome classifies a single dispatch attempt.
type Outcome int

const (
	NotACommand Outcome = iota
	Handled
	UnknownCommand
	HandlerError
)

func (o Outcome) String() string {
	switch o {
	case NotACommand:
		return "not_a_command"
	case Handled:
		return "handled"
	case UnknownCommand:
		return "unknown_command"
	case HandlerError:
		return "handler_error"
	default:
		return "unknown"
	}
}

// Result is what OnMessage reports. Err is set only for HandlerError.
type Result struct {
	Outcome Outcome
	Command string
	Err     error
}

var (
	// ErrTimeout is returned when a handler outlives its invocation budget.
	ErrTimeout = errors.New("handler timed out")
	// ErrBusy is returned when no worker slot frees up within the budget.
	ErrBusy = errors.New("no free worker")
	// ErrClosed is returned for commands arriving after Shutdown started.
	ErrClosed = errors.New("dispatcher is shutting down")
	// ErrPanic wraps a recovered handler panic.
	ErrPanic = errors.New("handler panicked")
)
