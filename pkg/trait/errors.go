package trait

import "fmt"

// SchemaConflictError is returned when two groups contribute a trait with the
// same id to one schema.
type SchemaConflictError struct {
	Schema string
	Field  string
	Groups [2]string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf(`trait "%s" of schema "%s" is defined by both "%s" and "%s"`, e.Field, e.Schema, e.Groups[0], e.Groups[1])
}

// UnknownFieldError is returned when a path names a trait that the schema does
// not define, or steps into a trait that has no nested traits.
type UnknownFieldError struct {
	Schema string
	Field  string
	Path   string
}

func (e *UnknownFieldError) Error() string {
	if len(e.Path) > 0 && e.Path != e.Field {
		return fmt.Sprintf(`unknown trait "%s" of schema "%s" in path "%s"`, e.Field, e.Schema, e.Path)
	}

	return fmt.Sprintf(`unknown trait "%s" of schema "%s"`, e.Field, e.Schema)
}

// MalformedEntryError is returned when an object array entry has no value for
// the identity property of its trait.
type MalformedEntryError struct {
	Field      string
	Stratum    string
	Index      int
	IDProperty string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf(`entry %d of "%s" in stratum "%s" has no "%s"`, e.Index, e.Field, e.Stratum, e.IDProperty)
}
