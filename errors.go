package postmortem

import "fmt"

// DumpError is returned when the dump of a failure could not be written.
type DumpError struct {
	// Err is the write error.
	Err error
	// Failure is the error returned by the guarded function or the recovered panic value.
	Failure any
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("dump failed: %v, while handling: %v", e.Err, e.Failure)
}

// Unwrap returns the write error and, if it is an error, the failure.
func (e *DumpError) Unwrap() []error {
	if err, ok := e.Failure.(error); ok {
		return []error{e.Err, err}
	}
	return []error{e.Err}
}
