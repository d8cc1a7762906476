package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ValueType names an optional coercion applied to an extracted value.
type ValueType string

const (
	TypeNone  ValueType = ""
	TypeInt   ValueType = "int"
	TypeFloat ValueType = "float"
	TypeDate  ValueType = "date"
)

// DefaultMatchOn is the key compared against FieldDef.Field when none is configured.
const DefaultMatchOn = "Field"

// LookupKind tags the three shapes a FieldDef can take.
type LookupKind int

const (
	// LookupPath returns whatever sits at Path.
	LookupPath LookupKind = iota
	// LookupField scans the records at Path for the one whose MatchOn key equals Field.
	LookupField
	// LookupSubfield descends from the matched record into its Subfield rows.
	LookupSubfield
)

func (k LookupKind) String() string {
	switch k {
	case LookupPath:
		return "path"
	case LookupField:
		return "field"
	case LookupSubfield:
		return "subfield"
	default:
		return fmt.Sprintf("LookupKind(%d)", int(k))
	}
}

// FieldDef is one node of an extraction specification.
type FieldDef struct {
	Path      string
	Field     string
	Subfield  string
	Extract   ExtractionSpec
	MatchOn   string
	ParseJSON bool
	Type      ValueType
}

// Kind reports which lookup shape d describes.
func (d FieldDef) Kind() LookupKind {
	switch {
	case d.Field == "":
		return LookupPath
	case d.Subfield != "":
		return LookupSubfield
	default:
		return LookupField
	}
}

// MatchKey returns the record key compared against Field.
func (d FieldDef) MatchKey() string {
	if d.MatchOn == "" {
		return DefaultMatchOn
	}
	return d.MatchOn
}

type fieldDefJSON struct {
	Path           string          `json:"path"`
	Field          json.RawMessage `json:"field"`
	Subfield       string          `json:"subfield"`
	Extract        ExtractionSpec  `json:"extract"`
	MatchOn        string          `json:"match_on"`
	MatchOnCamel   string          `json:"matchOn"`
	ParseJSON      bool            `json:"parse_json"`
	ParseJSONCamel bool            `json:"parseJson"`
	Type           ValueType       `json:"type"`
}

// UnmarshalJSON accepts both the snake_case keys of existing definition bundles
// and camelCase spellings. A numeric "field" is kept in its textual form.
func (d *FieldDef) UnmarshalJSON(b []byte) error {
	var raw fieldDefJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	field, err := scalarText(raw.Field)
	if err != nil {
		return fmt.Errorf("field: %w", err)
	}
	*d = FieldDef{
		Path:      raw.Path,
		Field:     field,
		Subfield:  raw.Subfield,
		Extract:   raw.Extract,
		MatchOn:   firstNonEmpty(raw.MatchOn, raw.MatchOnCamel),
		ParseJSON: raw.ParseJSON || raw.ParseJSONCamel,
		Type:      raw.Type,
	}
	return nil
}

// NamedField pairs an output name with its definition.
type NamedField struct {
	Name string
	Def  FieldDef
}

// ExtractionSpec is an ordered set of named field definitions.
type ExtractionSpec []NamedField

func (s *ExtractionSpec) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*s = nil
		return nil
	}
	var out ExtractionSpec
	err := decodeOrderedObject(b, func(key string, value json.RawMessage) error {
		var def FieldDef
		if err := json.Unmarshal(value, &def); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, NamedField{Name: key, Def: def})
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// ColumnKind tags a report column.
type ColumnKind int

const (
	ColumnStatic ColumnKind = iota
	ColumnFormNumber
	ColumnLookup
)

// FormNumberToken is the column literal replaced by the form's number.
const FormNumberToken = "form_number"

// ColumnSpec describes how one report column is filled.
type ColumnSpec struct {
	Kind    ColumnKind
	Literal interface{}
	Lookup  FieldDef
}

func (c *ColumnSpec) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var def FieldDef
		if err := json.Unmarshal(b, &def); err != nil {
			return err
		}
		*c = ColumnSpec{Kind: ColumnLookup, Lookup: def}
		return nil
	}
	var lit interface{}
	if err := json.Unmarshal(b, &lit); err != nil {
		return err
	}
	if s, ok := lit.(string); ok && s == FormNumberToken {
		*c = ColumnSpec{Kind: ColumnFormNumber}
		return nil
	}
	*c = ColumnSpec{Kind: ColumnStatic, Literal: lit}
	return nil
}

// NamedColumn pairs a column header with its spec.
type NamedColumn struct {
	Name string
	Spec ColumnSpec
}

// RowSpec is a toc.json / report.json definition. Column order follows the file.
type RowSpec struct {
	Columns []NamedColumn
}

func (r *RowSpec) UnmarshalJSON(b []byte) error {
	var raw struct {
		Columns json.RawMessage `json:"columns"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.Columns) == 0 {
		return fmt.Errorf("row definition has no columns")
	}
	var cols []NamedColumn
	err := decodeOrderedObject(raw.Columns, func(key string, value json.RawMessage) error {
		var spec ColumnSpec
		if err := json.Unmarshal(value, &spec); err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		cols = append(cols, NamedColumn{Name: key, Spec: spec})
		return nil
	})
	if err != nil {
		return err
	}
	r.Columns = cols
	return nil
}

// Headers returns the column names in order.
func (r *RowSpec) Headers() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Name
	}
	return out
}

// Row is one evaluated spreadsheet row.
type Row struct {
	Columns []string
	Values  []interface{}
}

// HTMLDefinition is html.json plus the layout.html template it drives.
type HTMLDefinition struct {
	Fields ExtractionSpec `json:"fields_to_extract"`
	Layout string         `json:"-"`
}

// Definitions is the export-definition bundle for one process.
type Definitions struct {
	Dir     string
	Present bool
	TOC     *RowSpec
	Report  *RowSpec
	HTML    *HTMLDefinition
}

func decodeOrderedObject(b []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		return "", fmt.Errorf("expected scalar, got %s", raw)
	}
	return string(raw), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
