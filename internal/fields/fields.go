// Package fields describes the field dictionary: which XML paths are
// captured, whether each is numeric, and whether it belongs to the
// dataset-level (global) record or the unit-level record.
package fields

import (
	"fmt"
	"io"

	"github.com/ohler55/ojg/oj"
)

// Field describes one captured ABCD XML path.
type Field struct {
	Path           string `json:"name"`
	Numeric        bool   `json:"numeric"`
	GlobalField    bool   `json:"globalField"`
	VATMandatory   bool   `json:"vatMandatory"`
	GFBioMandatory bool   `json:"gfbioMandatory"`
}

// Dictionary partitions the configured fields into dataset-level
// (global) and unit-level fields, preserving declaration order.
type Dictionary struct {
	Global []Field
	Unit   []Field

	index map[string]Field
}

// Load decodes a field dictionary from r, in the JSON shape described
// by spec.md §6: an array of objects with name/numeric/globalField/
// vatMandatory/gfbioMandatory keys.
func Load(r io.Reader) (*Dictionary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("fields: read dictionary: %w", err)
	}

	var all []Field
	if err := oj.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("fields: decode dictionary: %w", err)
	}

	d := &Dictionary{index: make(map[string]Field, len(all))}
	for _, f := range all {
		if f.GlobalField {
			d.Global = append(d.Global, f)
		} else {
			d.Unit = append(d.Unit, f)
		}
		d.index[f.Path] = f
	}
	return d, nil
}

// Lookup returns the Field for path in either partition, and whether
// it was found.
func (d *Dictionary) Lookup(path string) (Field, bool) {
	f, ok := d.index[path]
	return f, ok
}
