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

package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Mapping fields as they appear in submitted column mappings.
const (
	FieldPredecessor = "cd_produto_antecessor"
	FieldSpecies     = "cd_especie"
	FieldClass       = "cd_classe"
	FieldSubClass    = "cd_sub_cla"
)

// RequiredFields lists every field a mapping must resolve to a column.
var RequiredFields = []string{FieldPredecessor, FieldSpecies, FieldClass, FieldSubClass}

// Row is one parsed spreadsheet row keyed by column header.
type Row map[string]string

// Mapping tells which spreadsheet column holds each logical field.
type Mapping struct {
	Predecessor string `json:"cd_produto_antecessor"`
	Species     string `json:"cd_especie"`
	Class       string `json:"cd_classe"`
	SubClass    string `json:"cd_sub_cla"`
}

// RowInput is the typed content of a row after applying a mapping.
type RowInput struct {
	PredecessorID  int64
	Classification Classification
}

// Column returns the spreadsheet column configured for a logical field.
func (m Mapping) Column(field string) string {
	switch field {
	case FieldPredecessor:
		return m.Predecessor
	case FieldSpecies:
		return m.Species
	case FieldClass:
		return m.Class
	case FieldSubClass:
		return m.SubClass
	}
	return ""
}

// Validate reports the fields that are not mapped to any column.
func (m Mapping) Validate() error {
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(m.Column(f)) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("mapping is missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Extract reads the mapped fields of a row as identifiers.
func (m Mapping) Extract(row Row) (RowInput, error) {
	var in RowInput
	var errs []error
	read := func(field string, dst *int64) {
		v, err := parseIdentifier(row[m.Column(field)])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = v
	}
	read(FieldPredecessor, &in.PredecessorID)
	read(FieldSpecies, &in.Classification.Species)
	read(FieldClass, &in.Classification.Class)
	read(FieldSubClass, &in.Classification.SubClass)
	return in, errors.Join(errs...)
}

// ExtractLenient reads the mapped fields, substituting zero for anything
// that is not a number.
func (m Mapping) ExtractLenient(row Row) RowInput {
	return RowInput{
		PredecessorID: ToNumberOrZero(row[m.Predecessor]),
		Classification: Classification{
			Species:  ToNumberOrZero(row[m.Species]),
			Class:    ToNumberOrZero(row[m.Class]),
			SubClass: ToNumberOrZero(row[m.SubClass]),
		},
	}
}

// ToNumberOrZero parses an identifier and falls back to zero.
func ToNumberOrZero(raw string) int64 {
	v, err := parseIdentifier(raw)
	if err != nil {
		return 0
	}
	return v
}

// parseIdentifier accepts integers, including spreadsheet renderings such as "12.0".
func parseIdentifier(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("value is empty")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("%q is not an integer identifier", raw)
	}
	return int64(f), nil
}
