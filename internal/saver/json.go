package saver

import (
	"encoding/json"
	"io"
)

// JSONEncoder writes an indented JSON array.
type JSONEncoder struct{}

func (JSONEncoder) Extension() string { return "json" }

func (JSONEncoder) Encode(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
