// Package report prints rendered HTML reports to PDF with headless Chromium.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"go-cube-export/pkg/utils"
)

// Options configures a PDFRenderer.
type Options struct {
	// BrowserBin is the Chromium binary. Empty lets the launcher find or fetch one.
	BrowserBin string
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// PDFRenderer is a ReportRenderer sharing one browser across calls. Pages are
// opened per call, so RenderPDF is safe for concurrent use.
type PDFRenderer struct {
	opts Options

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func New(opts Options) *PDFRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PDFRenderer{opts: opts}
}

func (r *PDFRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	controlURL := r.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(true).
			Set(flags.Flag("allow-file-access-from-files"))
		if r.opts.BrowserBin != "" {
			l = l.Bin(r.opts.BrowserBin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		r.launcher = l
		controlURL = u
		r.opts.Logger.Info("pdf browser launched", zap.String("bin", r.opts.BrowserBin))
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if r.launcher != nil {
			r.launcher.Kill()
			r.launcher = nil
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	r.browser = browser
	return browser, nil
}

// RenderPDF loads htmlPath over file:// so local images and links resolve,
// then prints it to pdfPath.
func (r *PDFRenderer) RenderPDF(ctx context.Context, htmlPath, pdfPath string) error {
	browser, err := r.ensureBrowser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: utils.FileURL(htmlPath)})
	if err != nil {
		return fmt.Errorf("open %s: %w", htmlPath, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", htmlPath, err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return fmt.Errorf("print %s: %w", htmlPath, err)
	}

	out, err := os.Create(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", pdfPath, err)
	}
	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", pdfPath, err)
	}
	return out.Close()
}

// Close shuts the browser down.
func (r *PDFRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.browser != nil {
		errs = append(errs, r.browser.Close())
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
	return errors.Join(errs...)
}
