package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
)

// Definition bundle file names.
const (
	TOCFile    = "toc.json"
	ReportFile = "report.json"
	HTMLFile   = "html.json"
	LayoutFile = "layout.html"
)

// DefinitionsDir is where the bundle of processID lives under root.
func DefinitionsDir(root string, processID int64) string {
	return filepath.Join(root, strconv.FormatInt(processID, 10))
}

// LoadDefinitions reads the bundle in <root>/<processID>. Missing files leave
// the matching feature disabled; unreadable or invalid files are errors.
func LoadDefinitions(root string, processID int64, logger *zap.Logger) (*model.Definitions, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := DefinitionsDir(root, processID)
	defs := &model.Definitions{Dir: dir}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return defs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat definitions %s: %w", dir, err)
	}
	if !info.IsDir() {
		return defs, nil
	}
	defs.Present = true

	var toc model.RowSpec
	if ok, err := readJSON(filepath.Join(dir, TOCFile), &toc); err != nil {
		return nil, err
	} else if ok {
		defs.TOC = &toc
	}

	var report model.RowSpec
	if ok, err := readJSON(filepath.Join(dir, ReportFile), &report); err != nil {
		return nil, err
	} else if ok {
		defs.Report = &report
	}

	var html model.HTMLDefinition
	ok, err := readJSON(filepath.Join(dir, HTMLFile), &html)
	if err != nil {
		return nil, err
	}
	if ok {
		layout, err := os.ReadFile(filepath.Join(dir, LayoutFile))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("html.json present without layout.html, HTML reports disabled",
				zap.Int64("process_id", processID))
		case err != nil:
			return nil, fmt.Errorf("failed to read %s: %w", LayoutFile, err)
		default:
			html.Layout = string(layout)
			defs.HTML = &html
		}
	}
	return defs, nil
}

func readJSON(path string, dst interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("invalid %s: %w", path, err)
	}
	return true, nil
}
