package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteCSV renders the flat tabular form: one header row, then
// rollNumber, name, overallStatus sorted by roll number. Existing
// consumers parse this shape; keep it stable.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rollNumber", "name", "overallStatus"}); err != nil {
		return err
	}
	for _, row := range sortedByRoll(r.Rows) {
		record := []string{strconv.Itoa(row.RollNumber), row.Name, string(row.Overall)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
