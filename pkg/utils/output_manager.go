package utils

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager lays out export artifacts under a root directory:
//
//	<root>/<group>/<process>/Process.xlsx
//	<root>/<group>/<process>/<formNumber>/...
type OutputManager struct {
	BaseOutputDir string
}

// WorkbookName is the spreadsheet every process aggregates into.
const WorkbookName = "Process.xlsx"

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// ProcessDir returns the directory of one process without creating it.
func (om *OutputManager) ProcessDir(groupName, processName string) string {
	return filepath.Join(om.BaseOutputDir, SanitizeName(groupName), SanitizeName(processName))
}

// CreateFormDir creates the per-form directory under processDir.
func (om *OutputManager) CreateFormDir(processDir, formNumber string) (string, error) {
	dir := filepath.Join(processDir, SanitizeName(formNumber))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create form output directory: %w", err)
	}
	return dir, nil
}

// WorkbookPath is the aggregate spreadsheet of processDir.
func (om *OutputManager) WorkbookPath(processDir string) string {
	return filepath.Join(processDir, WorkbookName)
}

// HasWorkbook reports whether processDir already holds a spreadsheet.
func (om *OutputManager) HasWorkbook(processDir string) bool {
	matches, err := filepath.Glob(filepath.Join(processDir, "*.xlsx"))
	return err == nil && len(matches) > 0
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}

// SanitizeName makes a remote name usable as a single path segment.
func SanitizeName(name string) string {
	name = strings.NewReplacer("/", "", `"`, "", "\\", "").Replace(name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// SanitizeFileName strips characters that are invalid in file names on common filesystems.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// FileURL turns a local path into an absolute file:// URL.
func FileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}
