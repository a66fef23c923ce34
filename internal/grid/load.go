package grid

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a grid table.
//
//	name: LA-BBA
//	rows:
//	  - {start: 1, count: 6}
//	corners:
//	  - [{lon: 0, lat: 0}, ...]
type File struct {
	Name    string     `yaml:"name"`
	Rows    []RowSpan  `yaml:"rows"`
	Corners [][]Corner `yaml:"corners"`
}

// Decode reads a YAML table definition.
func Decode(r io.Reader) (*Table, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidTable, err)
	}
	if f.Name == "" {
		f.Name = "custom"
	}
	return NewTable(f.Name, f.Corners, f.Rows)
}

// LoadFile reads a table from path. An empty path returns Default().
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}
	defer fh.Close()

	t, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Encode writes t as YAML.
func Encode(w io.Writer, t *Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Name: t.name, Rows: t.Spans(), Corners: t.Corners()}); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
