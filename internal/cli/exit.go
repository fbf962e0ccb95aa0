package cli

import "fmt"

// ExitError carries a process exit code out of a cobra RunE.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// silentExit reports a non-zero code whose message was already written.
func silentExit(code int) *ExitError {
	return &ExitError{Code: code}
}
