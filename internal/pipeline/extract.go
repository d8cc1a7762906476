package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
	"go-cube-export/pkg/utils"
)

// Extractor evaluates extraction specs against decoded payloads. Lookup
// failures are logged and produce nil; they are never returned as errors.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract evaluates every named definition of spec against payload.
func (e *Extractor) Extract(payload interface{}, spec model.ExtractionSpec) map[string]interface{} {
	out := make(map[string]interface{}, len(spec))
	for _, nf := range spec {
		out[nf.Name] = e.ExtractField(payload, nf.Def)
	}
	return out
}

// ExtractField navigates def.Path and applies the lookup def describes.
func (e *Extractor) ExtractField(data interface{}, def model.FieldDef) interface{} {
	node, ok := e.navigate(data, def.Path)
	if !ok {
		return nil
	}

	switch def.Kind() {
	case model.LookupPath:
		return node
	case model.LookupField, model.LookupSubfield:
		records, ok := node.([]interface{})
		if !ok {
			e.logger.Warn("expected a list of field records",
				zap.String("field", def.Field),
				zap.String("got", fmt.Sprintf("%T", node)))
			return nil
		}
		field, found := matchRecord(records, def.MatchKey(), def.Field)
		if !found {
			e.logger.Warn("field not found", zap.String("field", def.Field), zap.String("match_on", def.MatchKey()))
			return nil
		}
		if def.Kind() == model.LookupSubfield {
			return e.extractSubfield(field, def)
		}
		return e.ExtractValue(field, def)
	default:
		return nil
	}
}

// navigate walks dot separated keys. An empty path stays on data.
func (e *Extractor) navigate(data interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}
	cur := data
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			e.logger.Warn("path not found", zap.String("path", path), zap.String("segment", part))
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			e.logger.Warn("path not found", zap.String("path", path), zap.String("segment", part))
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func matchRecord(records []interface{}, key, want string) (map[string]interface{}, bool) {
	for _, r := range records {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		v, ok := m[key]
		if !ok {
			continue
		}
		if fmt.Sprint(v) == want {
			return m, true
		}
	}
	return nil, false
}

func (e *Extractor) extractSubfield(field map[string]interface{}, def model.FieldDef) interface{} {
	items, _ := field[def.Subfield].([]interface{})
	if len(items) == 0 {
		e.logger.Info("no data for subfield", zap.String("field", def.Field), zap.String("subfield", def.Subfield))
		return []interface{}{}
	}
	if len(def.Extract) == 0 {
		return items
	}
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		row := make(map[string]interface{}, len(def.Extract))
		for _, child := range def.Extract {
			row[child.Name] = e.ExtractField(item, child.Def)
		}
		out = append(out, row)
	}
	return out
}

// ExtractValue reads Value, or joins Values with ", ", then applies parse_json
// and type coercion.
func (e *Extractor) ExtractValue(field map[string]interface{}, def model.FieldDef) interface{} {
	var value interface{}
	if v, ok := field["Value"]; ok {
		value = v
	} else if vs, ok := field["Values"].([]interface{}); ok && len(vs) > 0 {
		parts := make([]string, 0, len(vs))
		for _, item := range vs {
			m, _ := asMap(item)
			if v, ok := m["Value"]; ok && v != nil {
				parts = append(parts, fmt.Sprint(v))
			} else {
				parts = append(parts, "")
			}
		}
		value = strings.Join(parts, ", ")
	}

	if def.ParseJSON {
		if s, ok := value.(string); ok && s != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err != nil {
				e.logger.Warn("could not parse JSON value", zap.String("field", def.Field), zap.Error(err))
				value = nil
			} else {
				value = parsed
			}
		}
	}

	if value != nil && def.Type != model.TypeNone {
		value = e.coerce(value, def.Type)
	}
	return value
}

// coerce converts value to typ, returning value unchanged when it cannot.
func (e *Extractor) coerce(value interface{}, typ model.ValueType) interface{} {
	var (
		out interface{}
		ok  bool
	)
	switch typ {
	case model.TypeInt:
		out, ok = utils.ToInt64(value)
	case model.TypeFloat:
		out, ok = utils.ToFloat64(value)
	case model.TypeDate:
		if s, isStr := value.(string); isStr {
			t, err := time.Parse(model.RemoteTimeLayout, s)
			out, ok = t, err == nil
		}
	default:
		return value
	}
	if !ok {
		e.logger.Warn("could not convert value",
			zap.Any("value", value),
			zap.String("type", string(typ)))
		return value
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case model.Payload:
		return m, true
	default:
		return nil, false
	}
}
