package pipeline

import (
	"context"
	"io"

	"go-cube-export/internal/model"
)

// RemoteClient is the forms service as the pipeline sees it. Budget exhaustion
// arrives as a payload carrying an error message, not as an error.
type RemoteClient interface {
	Fetch(ctx context.Context, url string, body interface{}) (model.Payload, error)
	FetchForm(ctx context.Context, formID int64) (model.Payload, error)
	FetchDownloadURL(ctx context.Context, fileID int64) (string, error)
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// TabularSink is a workbook file with named sheets.
type TabularSink interface {
	// Sheets lists the sheet names of the workbook at path. A missing workbook
	// yields an error wrapping fs.ErrNotExist.
	Sheets(path string) ([]string, error)
	// Create writes a new workbook holding one sheet with header and row.
	Create(path, sheet string, header []string, row []interface{}) error
	// AddSheet adds a sheet with header and row to an existing workbook.
	AddSheet(path, sheet string, header []string, row []interface{}) error
	// AppendRow writes row after the last used row of an existing sheet.
	AppendRow(path, sheet string, row []interface{}) error
}

// ReportRenderer converts an HTML file on disk into a PDF.
type ReportRenderer interface {
	RenderPDF(ctx context.Context, htmlPath, pdfPath string) error
}
