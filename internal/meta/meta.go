// Package meta loads the site metadata document that every rendered template
// receives. The document is read once at startup; a missing or malformed file
// is a startup error.
package meta

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
)

// Data is the parsed metadata document. It is read-only after Load.
type Data struct {
	source string
	raw    []byte
	value  interface{}
}

// Load reads and parses the metadata file at path. Comments and trailing
// commas are tolerated.
func Load(path string) (*Data, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	d, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	d.source = path
	return d, nil
}

// Parse parses a metadata document from memory.
func Parse(content []byte) (*Data, error) {
	clean := jsonc.ToJSON(content)
	if !gjson.ValidBytes(clean) {
		// Unmarshal gives a positioned error message.
		var probe interface{}
		if err := json.Unmarshal(clean, &probe); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invalid JSON document")
	}

	var value interface{}
	if err := json.Unmarshal(clean, &value); err != nil {
		return nil, err
	}

	return &Data{raw: clean, value: value}, nil
}

// Source is the file the document was loaded from, empty for Parse.
func (d *Data) Source() string {
	return d.source
}

// Value returns the decoded document for use as template data.
func (d *Data) Value() interface{} {
	if d == nil {
		return nil
	}
	return d.value
}

// Lookup resolves a gjson path such as "site.title" or "pages.#.name".
// Missing paths yield nil.
func (d *Data) Lookup(path string) interface{} {
	if d == nil {
		return nil
	}
	res := gjson.GetBytes(d.raw, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}
