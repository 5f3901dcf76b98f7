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
	"encoding/json"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/neoproj/robo32/internal/sheet"
	"github.com/neoproj/robo32/model"
)

const DefaultSubmitter = "desconhecido"

// SubmitJob is the multipart form accompanying an uploaded spreadsheet.
type SubmitJob struct {
	Mapping    string `form:"mapping"`
	UploadedBy string `form:"uploaded_by"`
}

type ValidateClassification struct {
	Species  int64 `json:"cd_especie"`
	Class    int64 `json:"cd_classe"`
	SubClass int64 `json:"cd_sub_cla"`
}

func (s *SubmitJob) ValidateSubmitJob() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Mapping, validation.Required, validation.By(isJSONObject)),
		validation.Field(&s.UploadedBy, validation.Length(0, 120)),
	)
}

func isJSONObject(value interface{}) error {
	raw, _ := value.(string)
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return errors.New("must be a JSON object of strings")
	}
	return nil
}

// ToMapping decodes the mapping field and resolves it to the logical fields.
func (s *SubmitJob) ToMapping() (model.Mapping, error) {
	var raw map[string]string
	if err := json.Unmarshal([]byte(s.Mapping), &raw); err != nil {
		return model.Mapping{}, err
	}
	return sheet.NormalizeMapping(raw)
}

// Submitter returns who uploaded the file, falling back to DefaultSubmitter.
func (s *SubmitJob) Submitter() string {
	if submitter := strings.TrimSpace(s.UploadedBy); submitter != "" {
		return submitter
	}
	return DefaultSubmitter
}

func (v *ValidateClassification) ValidateClassificationRequest() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.Species, validation.Required, validation.Min(int64(1))),
		validation.Field(&v.Class, validation.Required, validation.Min(int64(1))),
		validation.Field(&v.SubClass, validation.Required, validation.Min(int64(1))),
	)
}

func (v *ValidateClassification) ToClassification() model.Classification {
	return model.Classification{Species: v.Species, Class: v.Class, SubClass: v.SubClass}
}
