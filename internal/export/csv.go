package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes one table as CSV: header row first, then data rows.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCombinedCSV writes every table into one CSV stream, each
// section introduced by a single-cell title row and separated by a
// blank line.
func WriteCombinedCSV(w io.Writer, res *Result) error {
	for i, t := range res.Tables {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{t.Name}); err != nil {
			return err
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		if err := WriteCSV(w, t); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return nil
}

// WriteBundle writes the export as a ZIP archive with one CSV entry
// per table.
func WriteBundle(w io.Writer, res *Result) error {
	zw := zip.NewWriter(w)
	for _, t := range res.Tables {
		f, err := zw.Create(t.Name + ".csv")
		if err != nil {
			return fmt.Errorf("create entry %s: %w", t.Name, err)
		}
		if err := WriteCSV(f, t); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
	}
	return zw.Close()
}
