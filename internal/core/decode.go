package core

// decode.go picks a table decoder from the file extension and turns the file
// into a uniform Table of text rows.
//
// The set of decoders is closed:
//
//	.csv   -> delimited text (encoding/csv, delimiter sniffed from the header line)
//	.xlsx  -> OOXML workbook (excelize, first sheet only)
//	.xls   -> legacy BIFF8 workbook (extrame/xls, first sheet only); zip
//	          content saved under .xls is read as .xlsx
//
// Any other extension is rejected before a single byte is decoded.

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ContextCheckInterval is how often (in rows) decoders check for cancellation.
var ContextCheckInterval = 100

// csvDelimiters are the separators considered when sniffing a CSV header line.
var csvDelimiters = []rune{',', ';', '\t', '|'}

// Decoder turns file content into a Table.
type Decoder interface {
	// Format names the decoder in user-facing messages ("CSV", "XLSX", "XLS").
	Format() string
	Decode(ctx context.Context, r io.Reader) (*Table, error)
}

// DecoderFor returns the decoder for fileName's extension (case-insensitive).
func DecoderFor(fileName string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return csvDecoder{}, nil
	case ".xlsx":
		return xlsxDecoder{}, nil
	case ".xls":
		return xlsDecoder{}, nil
	default:
		return nil, unsupportedFormat(ext)
	}
}

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	return []string{".xlsx", ".xls", ".csv"}
}

type csvDecoder struct{}

func (csvDecoder) Format() string { return "CSV" }

// Decode reads delimited text. The first record is the header row; blank
// lines are skipped by encoding/csv. Rows may be ragged.
func (d csvDecoder) Decode(ctx context.Context, r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(NewBOMSkippingReader(r))
	if err != nil {
		return nil, decodeFailure(d.Format(), fmt.Errorf("read: %w", err))
	}

	data, _ := toUTF8(raw)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, emptyFile()
	}
	if err != nil {
		return nil, decodeFailure(d.Format(), err)
	}

	table := &Table{Headers: headers}
	for n := 0; ; n++ {
		if n%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, decodeFailure(d.Format(), err)
		}
		table.Rows = append(table.Rows, NewRawRow(headers, record))
	}

	if len(table.Rows) == 0 {
		return nil, emptyFile()
	}
	return table, nil
}

// sniffDelimiter picks the candidate separator that occurs most often in the
// header line, ignoring quoted sections. Defaults to a comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	counts := make(map[rune]int, len(csvDelimiters))
	inQuotes := false
	for _, c := range string(line) {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range csvDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

type xlsxDecoder struct{}

func (xlsxDecoder) Format() string { return "XLSX" }

// Decode reads the first worksheet. Every cell is taken as its formatted text
// so leading zeros survive; missing cells become empty strings and fully blank
// rows are skipped.
func (d xlsxDecoder) Decode(ctx context.Context, r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, decodeFailure(d.Format(), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, emptyFile()
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, decodeFailure(d.Format(), fmt.Errorf("read sheet %q: %w", sheets[0], err))
	}

	// The header is the first non-blank row.
	start := 0
	for start < len(rows) && isEmptyRow(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, emptyFile()
	}

	headers := rows[start]
	table := &Table{Headers: headers}
	for n, row := range rows[start+1:] {
		if n%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isEmptyRow(row) {
			continue
		}
		table.Rows = append(table.Rows, NewRawRow(headers, row))
	}

	if len(table.Rows) == 0 {
		return nil, emptyFile()
	}
	return table, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
