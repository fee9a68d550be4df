package match

import "fmt"

// MatchError is returned when plain data doesn't fit the kind of a trait.
// `Path` points at the offending value, with array indexes as segments.
type MatchError struct {
	Message string
	Path    *SchemaPath
}

func (e *MatchError) Error() string {
	return e.Message
}

func matchErrorf(path *SchemaPath, format string, args ...any) *MatchError {
	return &MatchError{
		Message: fmt.Sprintf(format, args...),
		Path:    path.Clone(),
	}
}
