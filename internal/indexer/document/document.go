// Package document defines the record handed to the index builder: a
// source label plus a set of named fields, each flagged as indexed, stored
// or both. Documents are plain values; they carry no identifier until the
// builder accepts them.
package document

import (
	"fmt"
	"maps"
	"slices"
)

// Field is a single field value and its indexing policy.
type Field struct {
	Text    string
	Indexed bool
	Stored  bool
}

// Document maps field names to values. Source names the document in build
// reports (typically its file name).
type Document struct {
	Source string
	Fields map[string]Field
}

// New creates an empty Document for the given source.
func New(source string) *Document {
	return &Document{
		Source: source,
		Fields: make(map[string]Field),
	}
}

// AddText adds a field that is analysed and indexed, optionally stored.
func (d *Document) AddText(name, text string, stored bool) *Document {
	d.Fields[name] = Field{Text: text, Indexed: true, Stored: stored}
	return d
}

// AddStored adds a field that is kept verbatim for display but never
// searched.
func (d *Document) AddStored(name, value string) *Document {
	d.Fields[name] = Field{Text: value, Stored: true}
	return d
}

// FieldNames returns the field names in sorted order, so that iteration is
// deterministic.
func (d *Document) FieldNames() []string {
	return slices.Sorted(maps.Keys(d.Fields))
}

// StoredValues returns the stored subset of the fields.
func (d *Document) StoredValues() map[string]string {
	stored := make(map[string]string)
	for name, f := range d.Fields {
		if f.Stored {
			stored[name] = f.Text
		}
	}
	return stored
}

// Failure reports a document that could not be produced, e.g. a file that
// could not be read. The builder records it and moves on.
type Failure struct {
	Source string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("document %s: %v", f.Source, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
