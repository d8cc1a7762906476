// Package remote talks to the Cube forms service.
//
// Every call is a JSON POST authenticated with the RpmApiKey header. The
// service reports most failures inside a 200 response as
// Result.Error.Message, so callers inspect the payload and use Classify.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go-cube-export/internal/model"
)

// Messages the service embeds in Result.Error.Message.
const (
	RateLimitMessage        = "API daily limit reached"
	ArchivedMessage         = "Process is archived"
	PermissionMessagePrefix = "User lacks permission"
)

// Client is the HTTP RemoteClient. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	apiKey   string
	urls     model.Endpoints
	maxCalls int64
	calls    atomic.Int64
	logger   *zap.Logger
}

// Options configures a Client.
type Options struct {
	APIKey    string
	Endpoints model.Endpoints
	// MaxCalls is the daily call budget. Zero or less disables the budget.
	MaxCalls   int64
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New returns a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     hc,
		apiKey:   opts.APIKey,
		urls:     opts.Endpoints,
		maxCalls: opts.MaxCalls,
		logger:   logger,
	}
}

// Calls returns how many budgeted calls were made.
func (c *Client) Calls() int64 { return c.calls.Load() }

// spend consumes one unit of budget and reports whether the call may proceed.
func (c *Client) spend() bool {
	n := c.calls.Add(1)
	if c.maxCalls > 0 && n > c.maxCalls {
		if n == c.maxCalls+1 {
			c.logger.Warn("daily call budget exhausted", zap.Int64("max_calls", c.maxCalls))
		}
		return false
	}
	return true
}

// Fetch POSTs body to url and decodes the JSON response. Once the budget is
// spent it returns a synthesized rate-limit payload without calling out.
func (c *Client) Fetch(ctx context.Context, url string, body interface{}) (model.Payload, error) {
	if !c.spend() {
		return model.ErrorPayload(RateLimitMessage), nil
	}
	return c.post(ctx, url, body)
}

// FetchForm returns the full payload of one form.
func (c *Client) FetchForm(ctx context.Context, formID int64) (model.Payload, error) {
	return c.Fetch(ctx, c.urls.Data, map[string]interface{}{"FormID": formID})
}

// FetchDownloadURL resolves the temporary download URL of an attachment.
func (c *Client) FetchDownloadURL(ctx context.Context, fileID int64) (string, error) {
	payload, err := c.Fetch(ctx, c.urls.Files, map[string]interface{}{
		"FileID":            fileID,
		"ReturnDownloadUrl": true,
	})
	if err != nil {
		return "", err
	}
	if msg := payload.ErrorMessage(); msg != "" {
		return "", fmt.Errorf("file %d: %w", fileID, Classify(msg))
	}
	v, ok := payload.Lookup("Result", "DownloadUrl")
	if !ok {
		return "", fmt.Errorf("%w: file %d has no Result.DownloadUrl", model.ErrMalformedResponse, fileID)
	}
	u, ok := v.(string)
	if !ok || u == "" {
		return "", fmt.Errorf("%w: file %d has empty download url", model.ErrMalformedResponse, fileID)
	}
	return u, nil
}

// Download opens url for reading. Non-2xx statuses wrap model.ErrAttachmentDownloadFailed.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAttachmentDownloadFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", model.ErrAttachmentDownloadFailed, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, url string, body interface{}) (model.Payload, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("RpmApiKey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("POST %s: unexpected status %d", url, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload model.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	return payload, nil
}

// Classify maps an embedded error message to a sentinel error. Empty input yields nil.
func Classify(message string) error {
	switch {
	case message == "":
		return nil
	case message == RateLimitMessage:
		return model.ErrRateLimitExceeded
	case message == ArchivedMessage:
		return model.ErrProcessArchived
	case strings.HasPrefix(message, PermissionMessagePrefix):
		return fmt.Errorf("%w: %s", model.ErrPermissionDenied, message)
	default:
		return fmt.Errorf("%w: %s", model.ErrFormUnavailable, message)
	}
}
