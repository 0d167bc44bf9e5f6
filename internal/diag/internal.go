package diag

import "fmt"

// InternalError marks a generator defect. It is raised with panic and must
// never be recovered by per-statement error collection.
type InternalError struct {
	Msg string
}

func (e InternalError) Error() string {
	return "internal translator error: " + e.Msg
}

// Internalf panics with an InternalError.
func Internalf(format string, args ...any) {
	panic(InternalError{Msg: fmt.Sprintf(format, args...)})
}
