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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMapping() Mapping {
	return Mapping{Predecessor: "Produto", Species: "Especie", Class: "Classe", SubClass: "SubClasse"}
}

func TestMappingExtract(t *testing.T) {
	in, err := testMapping().Extract(Row{"Produto": "1001", "Especie": "3", "Classe": "12.0", "SubClasse": " 7 "})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), in.PredecessorID)
	assert.Equal(t, Classification{Species: 3, Class: 12, SubClass: 7}, in.Classification)
}

func TestMappingExtract_InvalidValues(t *testing.T) {
	_, err := testMapping().Extract(Row{"Produto": "abc", "Especie": "3", "Classe": "", "SubClasse": "1.5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), FieldPredecessor)
	assert.Contains(t, err.Error(), FieldClass)
	assert.Contains(t, err.Error(), FieldSubClass)
	assert.NotContains(t, err.Error(), FieldSpecies)
}

func TestMappingExtractLenient(t *testing.T) {
	in := testMapping().ExtractLenient(Row{"Produto": "x", "Especie": "4"})
	assert.Equal(t, int64(0), in.PredecessorID)
	assert.Equal(t, int64(4), in.Classification.Species)
	assert.Equal(t, int64(0), in.Classification.SubClass)
}

func TestMappingValidate(t *testing.T) {
	assert.NoError(t, testMapping().Validate())

	err := Mapping{Predecessor: "Produto"}.Validate()
	require.Error(t, err)
	assert.Equal(t, "mapping is missing fields: cd_especie, cd_classe, cd_sub_cla", err.Error())
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 7, Remaining(10, 3))
	assert.Equal(t, 0, Remaining(10, 10))
	assert.Equal(t, 0, Remaining(2, 5))
}

func TestNewAuditRow(t *testing.T) {
	cls := Classification{Species: 1, Class: 2, SubClass: 3}
	newID := int64(555)

	ok := NewAuditRow(9, 1, 100, cls, AuditStatusSuccess, &newID, "", "ana")
	require.NotNil(t, ok.SuccessPredecessor)
	assert.Equal(t, int64(100), *ok.SuccessPredecessor)
	assert.Equal(t, &newID, ok.NewID)
	assert.Nil(t, ok.ErrorMessage)

	failed := NewAuditRow(9, 2, 100, cls, AuditStatusStoreError, &newID, "boom", "ana")
	assert.Nil(t, failed.SuccessPredecessor)
	assert.Nil(t, failed.NewID)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "boom", *failed.ErrorMessage)
}

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("admission")
	assert.True(t, strings.HasPrefix(id, "admission_"))
	assert.Len(t, id, len("admission_")+36)
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("admission"))
}
