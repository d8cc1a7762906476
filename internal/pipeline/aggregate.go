package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"go-cube-export/internal/model"
	"go-cube-export/pkg/utils"
)

// ReportAggregator turns payloads into spreadsheet rows and appends them to a
// per-process workbook. Every sink write happens under lock.
type ReportAggregator struct {
	sink    TabularSink
	extract *Extractor
	lock    sync.Locker
}

// NewReportAggregator returns an aggregator serializing writes on lock. A nil
// lock gets a private mutex.
func NewReportAggregator(sink TabularSink, extract *Extractor, lock sync.Locker) *ReportAggregator {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	if extract == nil {
		extract = NewExtractor(nil)
	}
	return &ReportAggregator{sink: sink, extract: extract, lock: lock}
}

// BuildRow evaluates spec's columns against payload. Failed lookups become "".
func (a *ReportAggregator) BuildRow(payload model.Payload, formNumber string, spec *model.RowSpec) model.Row {
	row := model.Row{
		Columns: spec.Headers(),
		Values:  make([]interface{}, len(spec.Columns)),
	}
	for i, col := range spec.Columns {
		switch col.Spec.Kind {
		case model.ColumnFormNumber:
			row.Values[i] = formNumber
		case model.ColumnStatic:
			row.Values[i] = cellValue(col.Spec.Literal)
		case model.ColumnLookup:
			v := a.extract.ExtractField(payload, col.Spec.Lookup)
			if col.Spec.Lookup.Kind() == model.LookupSubfield {
				row.Values[i] = flattenRows(v, col.Spec.Lookup.Extract)
				continue
			}
			row.Values[i] = cellValue(v)
		}
	}
	return row
}

// Append writes row into sheet of the workbook at path, creating the workbook
// or the sheet when missing.
func (a *ReportAggregator) Append(path string, row model.Row, sheet string) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	sheets, err := a.sink.Sheets(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := a.sink.Create(path, sheet, row.Columns, row.Values); err != nil {
			return fmt.Errorf("failed to create workbook %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open workbook %s: %w", path, err)
	}

	for _, s := range sheets {
		if s == sheet {
			if err := a.sink.AppendRow(path, sheet, row.Values); err != nil {
				return fmt.Errorf("failed to append to sheet %q: %w", sheet, err)
			}
			return nil
		}
	}
	if err := a.sink.AddSheet(path, sheet, row.Columns, row.Values); err != nil {
		return fmt.Errorf("failed to add sheet %q: %w", sheet, err)
	}
	return nil
}

// cellValue maps an extracted value onto something a spreadsheet cell holds.
func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case string, bool, int64, float64, time.Time:
		return val
	case json.Number:
		return utils.NormalizeNumber(val)
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// flattenRows renders subfield rows as "label: value, label: value; ...",
// leaving out empty values.
func flattenRows(v interface{}, spec model.ExtractionSpec) string {
	items, ok := v.([]interface{})
	if !ok || len(items) == 0 {
		return ""
	}
	var rows []string
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var parts []string
		for _, child := range spec {
			val := m[child.Name]
			if isEmpty(val) {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %v", child.Name, cellValue(val)))
		}
		if len(parts) > 0 {
			rows = append(rows, strings.Join(parts, ", "))
		}
	}
	return strings.Join(rows, "; ")
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}
