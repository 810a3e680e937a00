package harvest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrBadHeader marks an export file whose header line cannot be used.
var ErrBadHeader = errors.New("bad export header")

// CSVSource reads the tabular export one row at a time. Following the export
// layout, the first column is the entity identifier and the last column is
// the target URL; blank rows are skipped and do not advance the row number.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	urlCol  int
	rowNum  int
	headers []string
}

// OpenCSV opens the export file and reads its header line. A UTF-8 BOM on
// the first header cell is tolerated.
func OpenCSV(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file %s: %w", path, err)
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("read export header from %s: %w: %v", path, ErrBadHeader, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}
	if len(headers) < 2 {
		_ = file.Close()
		return nil, fmt.Errorf("export header in %s has %d columns, need at least 2: %w", path, len(headers), ErrBadHeader)
	}

	return &CSVSource{
		file:    file,
		reader:  reader,
		idCol:   0,
		urlCol:  len(headers) - 1,
		headers: headers,
	}, nil
}

// Headers returns the trimmed header fields.
func (s *CSVSource) Headers() []string { return s.headers }

// Next returns the next non-blank row, or io.EOF when the file is exhausted.
// Rows whose identifier or URL field is empty are still returned (and
// numbered); the orchestrator decides how to handle them.
func (s *CSVSource) Next() (Row, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, fmt.Errorf("read export row: %w", err)
		}
		if blank(record) {
			continue
		}
		s.rowNum++

		row := Row{Number: s.rowNum}
		row.EntityID = strings.TrimSpace(record[s.idCol])
		if s.urlCol < len(record) {
			row.URL = strings.TrimSpace(record[s.urlCol])
		}
		return row, nil
	}
}

// Close closes the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}

func blank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
