package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var zipMagic = []byte("PK\x03\x04")

// tabularText renders delimited or spreadsheet data as text. XLSX
// workbooks are converted sheet by sheet to comma-separated rows; anything
// else is taken as delimited text as-is.
func tabularText(data []byte) (string, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return xlsxText(data)
	}
	if !utf8.Valid(data) {
		return "", errors.New("tabular data is neither xlsx nor text")
	}
	return string(data), nil
}

func xlsxText(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var b strings.Builder
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(sheets) > 1 {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "# %s\n", sheet)
		}
		w := csv.NewWriter(&b)
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("render sheet %q: %w", sheet, err)
		}
	}
	return b.String(), nil
}
