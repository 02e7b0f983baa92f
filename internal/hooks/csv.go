package hooks

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"hook", "slide_1", "slide_2", "slide_3", "slide_4", "slide_5"}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record returns the row as CSV fields in header order.
func (r Row) Record() []string {
	return []string{r.Hook, r.Slide1, r.Slide2, r.Slide3, r.Slide4, r.Slide5}
}
