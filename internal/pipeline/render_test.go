package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-cube-export/internal/model"
	"go-cube-export/pkg/utils"
)

const testLayout = `<html><head><style>{{ css_content }}</style>` +
	`<link rel="stylesheet" href="{{ css_url }}"></head>` +
	`<body><img src="{{ logo_url }}"><h1>{{ status }} & co</h1>{{ files_html }}</body></html>`

func renderFixture(t *testing.T) (RenderInput, string) {
	t.Helper()
	root := t.TempDir()
	assets := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(assets, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(assets, StylesheetAsset), []byte("h1{color:red}"), 0644))

	formDir := filepath.Join(root, "HR", "Claims", "EC-1")
	require.NoError(t, os.MkdirAll(formDir, 0755))

	return RenderInput{
		Payload: decodePayload(t, claimForm),
		Definition: &model.HTMLDefinition{
			Fields: mustSpec(t, `{"status": {"path": "Result.Form.Fields", "field": "Status"}}`),
			Layout: testLayout,
		},
		FormDir:     formDir,
		FormNumber:  "EC-1",
		GroupName:   "HR",
		ProcessName: "Claims",
		Attachments: []model.Attachment{
			{FileID: 1, FileName: "receipt.PDF"},
			{FileID: 2, FileName: "photo?.png"},
		},
	}, assets
}

func TestLinksFragmentLocal(t *testing.T) {
	in, assets := renderFixture(t)
	tpl := NewTemplater(TemplaterOptions{AssetsDir: assets}, nil, nil, nil)

	frag, err := tpl.LinksFragment(in, ModeLocal)
	require.NoError(t, err)

	pdfURL := utils.FileURL(filepath.Join(in.FormDir, "receipt.PDF"))
	imgURL := utils.FileURL(filepath.Join(in.FormDir, "photo.png"))
	assert.Contains(t, frag, `<p><a href="`+pdfURL+`" target="_blank">receipt.PDF</a></p>`)
	assert.Contains(t, frag, `<p><img src="`+imgURL+`" alt="photo?.png" style="max-width: 200px;"/></p>`)
}

func TestLinksFragmentRemote(t *testing.T) {
	in, _ := renderFixture(t)
	tpl := NewTemplater(TemplaterOptions{SharePoint: "https://sp.example.com/sites/cube/"}, nil, nil, nil)

	frag, err := tpl.LinksFragment(in, ModeRemote)
	require.NoError(t, err)
	assert.Contains(t, frag, `href="https://sp.example.com/sites/cube/HR/Claims/EC-1/receipt.PDF"`)
	assert.Contains(t, frag, `src="https://sp.example.com/sites/cube/HR/Claims/EC-1/photo.png"`)
}

func TestLinksFragmentEmpty(t *testing.T) {
	in, _ := renderFixture(t)
	in.Attachments = nil
	frag, err := NewTemplater(TemplaterOptions{}, nil, nil, nil).LinksFragment(in, ModeLocal)
	require.NoError(t, err)
	assert.Empty(t, frag)
}

func TestRenderNoCloudKeepsLocalVariant(t *testing.T) {
	in, assets := renderFixture(t)
	renderer := newFakeRenderer()
	tpl := NewTemplater(TemplaterOptions{AssetsDir: assets, NoCloud: true}, renderer, nil, nil)

	res, err := tpl.Render(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Remote)
	assert.Equal(t, filepath.Join(in.FormDir, "report_EC-1.html"), res.HTMLPath)
	assert.Equal(t, filepath.Join(in.FormDir, "report_EC-1.pdf"), res.PDFPath)
	assert.FileExists(t, res.PDFPath)

	html, err := os.ReadFile(res.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<style>h1{color:red}</style>")
	assert.Contains(t, string(html), "<h1>Open & co</h1>")
	assert.Contains(t, string(html), utils.FileURL(filepath.Join(assets, LogoAsset)))
	assert.Contains(t, string(html), `target="_blank"`)
}

func TestRenderCloudOverwritesHTMLAfterPDF(t *testing.T) {
	in, assets := renderFixture(t)
	renderer := newFakeRenderer()
	tpl := NewTemplater(TemplaterOptions{
		AssetsDir:        assets,
		SharePoint:       "https://sp.example.com/sites/cube/",
		SharePointAssets: "https://sp.example.com/assets/",
	}, renderer, nil, nil)

	res, err := tpl.Render(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Remote)

	printed := renderer.seen[res.PDFPath]
	assert.Contains(t, printed, "file://")
	assert.Contains(t, printed, "h1{color:red}")

	html, err := os.ReadFile(res.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), `href="https://sp.example.com/assets/stylesheet.css"`)
	assert.Contains(t, string(html), `src="https://sp.example.com/assets/logo.png"`)
	assert.Contains(t, string(html), "https://sp.example.com/sites/cube/HR/Claims/EC-1/receipt.PDF")
	assert.NotContains(t, string(html), "file://")
	assert.NotContains(t, string(html), "h1{color:red}")
}

func TestRenderMissingStylesheet(t *testing.T) {
	in, _ := renderFixture(t)
	tpl := NewTemplater(TemplaterOptions{AssetsDir: t.TempDir(), NoCloud: true}, nil, nil, nil)

	res, err := tpl.Render(context.Background(), in)
	require.NoError(t, err)
	html, err := os.ReadFile(res.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<style></style>")
	assert.NoFileExists(t, res.PDFPath)
}

type failingRenderer struct{}

func (failingRenderer) RenderPDF(context.Context, string, string) error {
	return errors.New("chrome crashed")
}

func TestRenderPropagatesPDFFailure(t *testing.T) {
	in, assets := renderFixture(t)
	tpl := NewTemplater(TemplaterOptions{AssetsDir: assets}, failingRenderer{}, nil, nil)

	_, err := tpl.Render(context.Background(), in)
	assert.ErrorContains(t, err, "chrome crashed")
}

func TestFromJSONFilter(t *testing.T) {
	in, _ := renderFixture(t)
	in.Attachments = nil
	in.Definition = &model.HTMLDefinition{
		Fields: mustSpec(t, `{"meta": {"path": "Result.Form.Fields", "field": "Tags"}}`),
		Layout: `{{ raw|from_json|length }}`,
	}
	tpl := NewTemplater(TemplaterOptions{NoCloud: true}, nil, nil, nil)

	out, err := tpl.RenderHTML(in, map[string]interface{}{"raw": `[1, 2, 3]`}, ModeLocal)
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}
