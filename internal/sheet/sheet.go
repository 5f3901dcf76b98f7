/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/neoproj/robo32/model"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoData            = errors.New("spreadsheet has no data rows")
	ErrMappingMissing    = errors.New("column mapping is missing")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Parse reads the first worksheet of an .xlsx file, or a .csv file, into rows keyed by the
// header cells. Blank rows are skipped; the header is the first non-blank row.
func Parse(filename string, r io.Reader) ([]model.Row, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		records, err = readExcel(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := bufio.NewReader(r)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func toRows(records [][]string) ([]model.Row, error) {
	var headers []string
	var rows []model.Row
	for _, record := range records {
		if isBlank(record) {
			continue
		}
		if headers == nil {
			headers = make([]string, len(record))
			for i, h := range record {
				headers[i] = strings.TrimSpace(h)
			}
			continue
		}

		row := make(model.Row, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// NormalizeMapping accepts a mapping keyed either by field (field -> column) or by column
// (column -> field) and returns it keyed by field. Missing fields are an error.
func NormalizeMapping(raw map[string]string) (model.Mapping, error) {
	if len(raw) == 0 {
		return model.Mapping{}, ErrMappingMissing
	}

	byField := raw
	if !hasAllFields(raw) {
		byField = make(map[string]string, len(raw))
		for column, field := range raw {
			if field != "" {
				byField[field] = column
			}
		}
	}

	m := model.Mapping{
		Predecessor: byField[model.FieldPredecessor],
		Species:     byField[model.FieldSpecies],
		Class:       byField[model.FieldClass],
		SubClass:    byField[model.FieldSubClass],
	}
	if err := m.Validate(); err != nil {
		return model.Mapping{}, err
	}
	return m, nil
}

func hasAllFields(raw map[string]string) bool {
	for _, f := range model.RequiredFields {
		if _, ok := raw[f]; !ok {
			return false
		}
	}
	return true
}
