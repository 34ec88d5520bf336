package export

import (
	"encoding/json"
	"io"
)

// WriteJSON writes the export as one indented JSON document.
func WriteJSON(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
