package pipeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"go-cube-export/internal/model"
)

const claimForm = `{"Result":{"Form":{
	"Number": "EC-1042",
	"Started": "2024-03-05 09:30:00",
	"Fields": [
		{"Field": "Status", "Uid": "u-1", "Value": "Open"},
		{"Field": "Amount", "Uid": "u-2", "Value": "12"},
		{"Field": "Total", "Uid": "u-3", "Value": 99.5},
		{"Field": "Opened", "Uid": "u-4", "Value": "2024-03-05 09:30:00"},
		{"Field": "Due", "Uid": "u-5", "Value": "next tuesday"},
		{"Field": "Tags", "Uid": "u-6", "Values": [{"Value": "travel"}, {"Value": "meals"}]},
		{"Field": "Meta", "Uid": "u-7", "Value": "{\"cost_center\": \"CC-7\"}"},
		{"Field": "Broken", "Uid": "u-8", "Value": "{not json"},
		{"Field": 12, "Uid": "u-9", "Value": "numeric field name"},
		{"Field": "Lines", "Uid": "u-10", "Rows": [
			{"Fields": [{"Field": "Item", "Value": "Taxi"}, {"Field": "Qty", "Value": "2"}]},
			{"Fields": [{"Field": "Item", "Value": "Hotel"}, {"Field": "Qty", "Value": "1"}]}
		]},
		{"Field": "Empty", "Uid": "u-11", "Rows": []}
	]
}}}`

func fieldsDef(field string) model.FieldDef {
	return model.FieldDef{Path: "Result.Form.Fields", Field: field}
}

func TestExtractFieldByName(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	assert.Equal(t, "Open", e.ExtractField(p, fieldsDef("Status")))
	assert.Equal(t, "numeric field name", e.ExtractField(p, fieldsDef("12")))
}

func TestExtractFieldMatchOn(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	def := model.FieldDef{Path: "Result.Form.Fields", Field: "u-1", MatchOn: "Uid"}
	assert.Equal(t, "Open", e.ExtractField(p, def))
}

func TestExtractPathLookup(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	assert.Equal(t, "EC-1042", e.ExtractField(p, model.FieldDef{Path: "Result.Form.Number"}))

	whole := e.ExtractField(p, model.FieldDef{})
	assert.Equal(t, p, whole)
}

func TestExtractMissingIsNilAndLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewExtractor(zap.New(core))
	p := decodePayload(t, claimForm)

	assert.Nil(t, e.ExtractField(p, model.FieldDef{Path: "Result.Form.Nope"}))
	assert.Nil(t, e.ExtractField(p, fieldsDef("Nope")))
	assert.Nil(t, e.ExtractField(p, model.FieldDef{Path: "Result.Form.Number", Field: "Status"}))

	assert.Equal(t, 1, logs.FilterMessage("path not found").Len())
	assert.Equal(t, 1, logs.FilterMessage("field not found").Len())
	assert.Equal(t, 1, logs.FilterMessage("expected a list of field records").Len())
}

func TestExtractValuesJoined(t *testing.T) {
	e := NewExtractor(nil)
	assert.Equal(t, "travel, meals", e.ExtractField(decodePayload(t, claimForm), fieldsDef("Tags")))
}

func TestExtractParseJSON(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	def := fieldsDef("Meta")
	def.ParseJSON = true
	assert.Equal(t, map[string]interface{}{"cost_center": "CC-7"}, e.ExtractField(p, def))

	def = fieldsDef("Broken")
	def.ParseJSON = true
	assert.Nil(t, e.ExtractField(p, def))
}

func TestExtractCoercion(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	def := fieldsDef("Amount")
	def.Type = model.TypeInt
	assert.Equal(t, int64(12), e.ExtractField(p, def))

	def = fieldsDef("Total")
	def.Type = model.TypeFloat
	assert.Equal(t, 99.5, e.ExtractField(p, def))

	def = fieldsDef("Opened")
	def.Type = model.TypeDate
	assert.Equal(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), e.ExtractField(p, def))

	def = fieldsDef("Due")
	def.Type = model.TypeDate
	assert.Equal(t, "next tuesday", e.ExtractField(p, def))

	def = fieldsDef("Status")
	def.Type = model.TypeInt
	assert.Equal(t, "Open", e.ExtractField(p, def))
}

func TestExtractSubfield(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)

	def := fieldsDef("Lines")
	def.Subfield = "Rows"
	def.Extract = mustSpec(t, `{
		"Item": {"path": "Fields", "field": "Item"},
		"Qty":  {"path": "Fields", "field": "Qty", "type": "int"}
	}`)

	got := e.ExtractField(p, def)
	want := []interface{}{
		map[string]interface{}{"Item": "Taxi", "Qty": int64(2)},
		map[string]interface{}{"Item": "Hotel", "Qty": int64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subfield rows mismatch (-want +got):\n%s", diff)
	}

	raw := fieldsDef("Lines")
	raw.Subfield = "Rows"
	rows, ok := e.ExtractField(p, raw).([]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 2)

	empty := fieldsDef("Empty")
	empty.Subfield = "Rows"
	assert.Equal(t, []interface{}{}, e.ExtractField(p, empty))
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewExtractor(nil)
	p := decodePayload(t, claimForm)
	spec := mustSpec(t, `{
		"status": {"path": "Result.Form.Fields", "field": "Status"},
		"amount": {"path": "Result.Form.Fields", "field": "Amount", "type": "float"},
		"tags":   {"path": "Result.Form.Fields", "field": "Tags"},
		"number": {"path": "Result.Form.Number"},
		"lines":  {"path": "Result.Form.Fields", "field": "Lines", "subfield": "Rows",
		           "extract": {"Item": {"path": "Fields", "field": "Item"}}}
	}`)

	first := e.Extract(p, spec)
	second := e.Extract(p, spec)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("extraction not deterministic:\n%s", diff)
	}
	assert.Equal(t, 12.0, first["amount"])
	assert.Equal(t, "EC-1042", first["number"])
}

func TestFieldDefDecoding(t *testing.T) {
	var def model.FieldDef
	require.NoError(t, json.Unmarshal([]byte(`{"path":"a.b","field":7,"matchOn":"Uid","parseJson":true}`), &def))
	assert.Equal(t, "7", def.Field)
	assert.Equal(t, "Uid", def.MatchKey())
	assert.True(t, def.ParseJSON)
	assert.Equal(t, model.LookupField, def.Kind())
}
