package cmd

import "errors"

var (
	// ErrDuplicateCommand is returned when a name or alias is already registered.
	ErrDuplicateCommand = errors.New("duplicate command")
	// ErrInvalidName is returned for empty or whitespace-containing names.
	ErrInvalidName = errors.New("invalid command name")
)

// UserError is an error whose message is safe to show in the channel the
// command was invoked from. Anything else is only written to logs.
type UserError struct {
	Msg string
	Err error
}

// NewUserError returns a UserError with the given message.
func NewUserError(msg string) *UserError {
	return &UserError{Msg: msg}
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UserError) Unwrap() error { return e.Err }

// UserMessage returns the user-facing text of err if it carries one.
func UserMessage(err error) (string, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg, true
	}
	return "", false
}
