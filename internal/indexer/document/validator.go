package document

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	maxFieldNameLength = 128
	maxFieldTextLength = 8 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// Validate checks that the document can be indexed and returns a
// ValidationError if not.
func Validate(d *Document) error {
	errs := make(map[string]string)
	if strings.TrimSpace(d.Source) == "" {
		errs["source"] = "source is required"
	}
	if len(d.Fields) == 0 {
		errs["fields"] = "document has no fields"
	}
	for name, f := range d.Fields {
		switch {
		case strings.TrimSpace(name) == "":
			errs["fields"] = "field name must not be blank"
		case len(name) > maxFieldNameLength:
			errs[name] = fmt.Sprintf("field name must be at most %d characters", maxFieldNameLength)
		case !f.Indexed && !f.Stored:
			errs[name] = "field is neither indexed nor stored"
		case len(f.Text) > maxFieldTextLength:
			errs[name] = fmt.Sprintf("field text must be at most %d bytes", maxFieldTextLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
