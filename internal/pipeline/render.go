package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"go-cube-export/internal/model"
	"go-cube-export/pkg/utils"
)

// RenderMode selects how attachment and asset links are addressed.
type RenderMode int

const (
	// ModeLocal links to the downloaded copies with file:// URLs.
	ModeLocal RenderMode = iota
	// ModeRemote links under the configured external base URL.
	ModeRemote
)

func (m RenderMode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// Asset file names looked up in the assets directory and under the external asset URL.
const (
	StylesheetAsset = "stylesheet.css"
	LogoAsset       = "logo.png"
)

func init() {
	// Layout bundles are written for an environment that does not autoescape.
	pongo2.SetAutoescape(false)
	if err := pongo2.RegisterFilter("from_json", filterFromJSON); err != nil {
		panic(err)
	}
}

func filterFromJSON(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	var v interface{}
	if err := json.Unmarshal([]byte(in.String()), &v); err != nil {
		return nil, &pongo2.Error{Sender: "filter:from_json", OrigError: err}
	}
	return pongo2.AsValue(v), nil
}

// TemplaterOptions configures a Templater.
type TemplaterOptions struct {
	AssetsDir        string
	SharePoint       string
	SharePointAssets string
	// NoCloud disables the remote variant.
	NoCloud bool
}

// RenderInput is everything needed to render one form's report.
type RenderInput struct {
	Payload     model.Payload
	Definition  *model.HTMLDefinition
	FormDir     string
	FormNumber  string
	GroupName   string
	ProcessName string
	Attachments []model.Attachment
}

// RenderResult names the files written by Render.
type RenderResult struct {
	HTMLPath string
	PDFPath  string
	Remote   bool
}

// Templater renders the per-form HTML report in local and remote variants and
// prints the local one to PDF.
type Templater struct {
	opts     TemplaterOptions
	renderer ReportRenderer
	extract  *Extractor
	logger   *zap.Logger

	mu        sync.Mutex
	templates map[string]*pongo2.Template
	css       *string
}

func NewTemplater(opts TemplaterOptions, renderer ReportRenderer, extract *Extractor, logger *zap.Logger) *Templater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extract == nil {
		extract = NewExtractor(logger)
	}
	return &Templater{
		opts:      opts,
		renderer:  renderer,
		extract:   extract,
		logger:    logger,
		templates: make(map[string]*pongo2.Template),
	}
}

// ReportFileNames returns the html and pdf names for formNumber.
func ReportFileNames(formNumber string) (string, string) {
	return "report_" + formNumber + ".html", "report_" + formNumber + ".pdf"
}

// Render writes report_<n>.html and report_<n>.pdf into in.FormDir. With cloud
// export enabled the remote variant replaces the local HTML once the PDF exists.
func (t *Templater) Render(ctx context.Context, in RenderInput) (RenderResult, error) {
	values := t.extract.Extract(in.Payload, in.Definition.Fields)

	htmlName, pdfName := ReportFileNames(in.FormNumber)
	res := RenderResult{
		HTMLPath: filepath.Join(in.FormDir, htmlName),
		PDFPath:  filepath.Join(in.FormDir, pdfName),
	}

	local, err := t.RenderHTML(in, values, ModeLocal)
	if err != nil {
		return res, err
	}
	if err := os.WriteFile(res.HTMLPath, []byte(local), 0644); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", res.HTMLPath, err)
	}
	if t.renderer != nil {
		if err := t.renderer.RenderPDF(ctx, res.HTMLPath, res.PDFPath); err != nil {
			return res, fmt.Errorf("failed to render PDF for %s: %w", in.FormNumber, err)
		}
	}

	if t.opts.NoCloud {
		return res, nil
	}
	remote, err := t.RenderHTML(in, values, ModeRemote)
	if err != nil {
		return res, err
	}
	if err := os.WriteFile(res.HTMLPath, []byte(remote), 0644); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", res.HTMLPath, err)
	}
	res.Remote = true
	return res, nil
}

// RenderHTML renders the layout for one mode with the extracted values.
func (t *Templater) RenderHTML(in RenderInput, values map[string]interface{}, mode RenderMode) (string, error) {
	tpl, err := t.template(in.Definition.Layout)
	if err != nil {
		return "", err
	}

	files, err := t.LinksFragment(in, mode)
	if err != nil {
		return "", err
	}

	data := pongo2.Context{}
	for k, v := range values {
		data[k] = v
	}
	data["files_html"] = pongo2.AsSafeValue(files)
	switch mode {
	case ModeLocal:
		data["css_content"] = pongo2.AsSafeValue(t.stylesheet())
		data["logo_url"] = utils.FileURL(filepath.Join(t.opts.AssetsDir, LogoAsset))
	case ModeRemote:
		data["css_url"] = joinURL(t.opts.SharePointAssets, StylesheetAsset)
		data["logo_url"] = joinURL(t.opts.SharePointAssets, LogoAsset)
	}

	out, err := tpl.Execute(data)
	if err != nil {
		return "", fmt.Errorf("failed to render %s layout: %w", mode, err)
	}
	return out, nil
}

// LinksFragment builds one <p> per attachment: an anchor for PDFs, an image otherwise.
func (t *Templater) LinksFragment(in RenderInput, mode RenderMode) (string, error) {
	var buf bytes.Buffer
	for _, f := range in.Attachments {
		name := utils.SanitizeFileName(f.FileName)
		var href string
		if mode == ModeLocal {
			href = utils.FileURL(filepath.Join(in.FormDir, name))
		} else {
			href = joinURL(t.opts.SharePoint, path.Join(
				utils.SanitizeName(in.GroupName),
				utils.SanitizeName(in.ProcessName),
				in.FormNumber,
				name,
			))
		}

		p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		if strings.HasSuffix(strings.ToLower(f.FileName), ".pdf") {
			a := &html.Node{
				Type:     html.ElementNode,
				Data:     "a",
				DataAtom: atom.A,
				Attr: []html.Attribute{
					{Key: "href", Val: href},
					{Key: "target", Val: "_blank"},
				},
			}
			a.AppendChild(&html.Node{Type: html.TextNode, Data: f.FileName})
			p.AppendChild(a)
		} else {
			p.AppendChild(&html.Node{
				Type:     html.ElementNode,
				Data:     "img",
				DataAtom: atom.Img,
				Attr: []html.Attribute{
					{Key: "src", Val: href},
					{Key: "alt", Val: f.FileName},
					{Key: "style", Val: "max-width: 200px;"},
				},
			})
		}
		if err := html.Render(&buf, p); err != nil {
			return "", fmt.Errorf("failed to render attachment link: %w", err)
		}
	}
	return buf.String(), nil
}

func (t *Templater) template(layout string) (*pongo2.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tpl, ok := t.templates[layout]; ok {
		return tpl, nil
	}
	tpl, err := pongo2.FromString(layout)
	if err != nil {
		return nil, fmt.Errorf("invalid layout template: %w", err)
	}
	t.templates[layout] = tpl
	return tpl, nil
}

func (t *Templater) stylesheet() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.css != nil {
		return *t.css
	}
	css := ""
	data, err := os.ReadFile(filepath.Join(t.opts.AssetsDir, StylesheetAsset))
	if err != nil {
		t.logger.Warn("stylesheet unavailable, rendering without it", zap.Error(err))
	} else {
		css = string(data)
	}
	t.css = &css
	return css
}

// joinURL resolves the relative path ref against base the way a browser would.
func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return base + ref
	}
	return b.ResolveReference(&url.URL{Path: ref}).String()
}
