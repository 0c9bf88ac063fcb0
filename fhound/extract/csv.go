package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
)

// csvExtract flattens a CSV file into space-joined rows. Parsing is lenient:
// ragged rows and stray quotes are common in exported spreadsheets and must
// not abort extraction.
func csvExtract(path string, maxBytes int64) (string, error) {
	if _, err := statRegular(path); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(io.LimitReader(f, maxBytes))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if sb.Len() > 0 {
				break
			}
			return "", err
		}
		sb.WriteString(strings.Join(record, " "))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
