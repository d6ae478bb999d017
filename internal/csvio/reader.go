package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"rorsync/internal/records"
)

const sniffSize = 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// DetectDelimiter picks the field separator from a sample of the file head.
// Commas win only when they outnumber semicolons; tabs win when they
// outnumber both.
func DetectDelimiter(sample []byte) rune {
	sample = bytes.TrimPrefix(sample, utf8BOM)
	commas := bytes.Count(sample, []byte{','})
	semicolons := bytes.Count(sample, []byte{';'})
	tabs := bytes.Count(sample, []byte{'\t'})
	switch {
	case tabs > commas && tabs > semicolons:
		return '\t'
	case commas > semicolons:
		return ','
	default:
		return ';'
	}
}

// Row is one data record addressed by header name.
type Row struct {
	Line   int
	fields []string
	index  map[string]int
}

// Get returns the trimmed value of column, or "" when the row is short.
func (r Row) Get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// Table is a parsed delimited file with a header row.
type Table struct {
	Path      string
	Delimiter rune
	Header    []string
	Rows      []Row
}

// ReadTable loads path, detecting the delimiter and stripping a UTF-8 BOM.
// Header names are trimmed. Every column in required must be present.
func ReadTable(path string, required ...string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	table, err := parseTable(f, required)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	table.Path = path
	return table, nil
}

func parseTable(r io.Reader, required []string) (*Table, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	sample, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	delimiter := DetectDelimiter(sample)
	if bytes.HasPrefix(sample, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file has no header row", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if _, exists := index[header[i]]; !exists {
			index[header[i]] = i
		}
	}
	var missing []string
	for _, column := range required {
		if _, ok := index[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (found %s)", ErrMissingColumn,
			strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	table := &Table{Delimiter: delimiter, Header: header}
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse row: %w", err)
		}
		if isBlank(fields) {
			continue
		}
		line, _ := reader.FieldPos(0)
		table.Rows = append(table.Rows, Row{Line: line, fields: fields, index: index})
	}
	return table, nil
}

func isBlank(fields []string) bool {
	for _, field := range fields {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ReadOrganizations loads an organization export with the Name, UUID and
// workflow step columns.
func ReadOrganizations(path string) ([]records.Organization, error) {
	table, err := ReadTable(path, records.InputColumnName, records.InputColumnUUID, records.InputColumnWorkflowStep)
	if err != nil {
		return nil, err
	}
	orgs := make([]records.Organization, 0, len(table.Rows))
	for _, row := range table.Rows {
		orgs = append(orgs, records.Organization{
			Name:         row.Get(records.InputColumnName),
			UUID:         row.Get(records.InputColumnUUID),
			WorkflowStep: row.Get(records.InputColumnWorkflowStep),
		})
	}
	return orgs, nil
}

// ReadEnriched loads an enriched file. Only the columns in required must be
// present; other columns are filled when available.
func ReadEnriched(path string, required ...string) ([]records.EnrichedRow, error) {
	table, err := ReadTable(path, required...)
	if err != nil {
		return nil, err
	}
	rows := make([]records.EnrichedRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, records.EnrichedRow{
			Organization: records.Organization{
				Name:         row.Get(records.ColumnName),
				UUID:         row.Get(records.ColumnUUID),
				WorkflowStep: row.Get(records.ColumnWorkflowStep),
			},
			MatchResult: records.MatchResult{
				Score:        row.Get(records.ColumnScore),
				RORID:        row.Get(records.ColumnRORID),
				RORName:      row.Get(records.ColumnRORName),
				Substring:    row.Get(records.ColumnSubstring),
				Chosen:       row.Get(records.ColumnChosen),
				MatchingType: row.Get(records.ColumnMatchingType),
			},
		})
	}
	return rows, nil
}
