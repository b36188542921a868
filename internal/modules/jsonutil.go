package modules

import (
	"bytes"
	"encoding/json"
	"io"
)

// mapToReader renders a Go map as a JSON document for jsonschema.Compiler's
// AddResource, which takes an io.Reader.
func mapToReader(m map[string]any) io.Reader {
	b, err := json.Marshal(m)
	if err != nil {
		return bytes.NewReader([]byte("{}"))
	}
	return bytes.NewReader(b)
}
