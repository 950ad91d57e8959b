package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenDropsParentPrefix(t *testing.T) {
	record := IRObject{
		"id": IRInt(1),
		"owner": IRObject{
			"name": IRString("Alice"),
			"address": IRObject{
				"city": IRString("NY"),
			},
		},
		"tags": IRArray{IRString("a")},
	}

	got := Flatten(record)

	assert.Equal(t, IRObject{
		"id":   IRInt(1),
		"name": IRString("Alice"),
		"city": IRString("NY"),
		"tags": IRArray{IRString("a")},
	}, got)
}

func TestFlattenKeepsEmptyObjectAsLeaf(t *testing.T) {
	got := Flatten(IRObject{"meta": IRObject{}, "id": IRInt(2)})
	assert.Equal(t, IRObject{"meta": IRObject{}, "id": IRInt(2)}, got)
}

func TestFlattenDoesNotMutateInput(t *testing.T) {
	record := IRObject{"nested": IRObject{"a": IRInt(1)}}
	_ = Flatten(record)
	assert.Contains(t, record, "nested")
	assert.NotContains(t, record, "a")
}

func TestExtractHeaders(t *testing.T) {
	records := []IRObject{
		{
			"id":         IRInt(1),
			"cargo_type": IRString("bulk"),
			"audit":      IRObject{"created_by": IRString("u1")},
		},
		{
			"id":          IRInt(2),
			"cargo_type":  IRString("liquid"),
			"description": IRString("tank"),
		},
	}

	assert.Equal(t, []string{"created_by", "cargo_type", "id", "description"}, ExtractHeaders(records))
}

func TestExtractHeadersEmpty(t *testing.T) {
	assert.Empty(t, ExtractHeaders(nil))
}

func TestExtractHeadersNoDuplicatesAcrossLevels(t *testing.T) {
	records := []IRObject{{
		"name":  IRString("top"),
		"inner": IRObject{"name": IRString("nested")},
	}}

	assert.Equal(t, []string{"name"}, ExtractHeaders(records))
}
