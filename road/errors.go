package road

import "fmt"

// MissingFieldError reports a required attribute that is absent. Row is the
// zero-based record position, or -1 when the whole column is missing.
type MissingFieldError struct {
	Field string
	Row   int
}

func (e *MissingFieldError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("required field %q not found", e.Field)
	}
	return fmt.Sprintf("required field %q missing in record %d", e.Field, e.Row)
}

// InvalidFieldError reports a value that is present but unusable.
type InvalidFieldError struct {
	Field  string
	Row    int
	Value  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s %q in record %d: %s", e.Field, e.Value, e.Row, e.Reason)
}
