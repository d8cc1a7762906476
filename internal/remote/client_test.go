package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-cube-export/internal/model"
)

func newTestClient(t *testing.T, srv *httptest.Server, maxCalls int64) *Client {
	return New(Options{
		APIKey: "key-123",
		Endpoints: model.Endpoints{
			Groups:    srv.URL + "/groups",
			Processes: srv.URL + "/processes",
			Forms:     srv.URL + "/forms",
			Data:      srv.URL + "/data",
			Files:     srv.URL + "/files",
		},
		MaxCalls:   maxCalls,
		HTTPClient: srv.Client(),
		Logger:     zaptest.NewLogger(t),
	})
}

func TestFetchFormSendsHeadersAndKeepsNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/data", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("RpmApiKey"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(55), body["FormID"])

		w.Write([]byte(`{"Result":{"Form":{"Number":"F-55","ID":55}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	payload, err := c.FetchForm(context.Background(), 55)
	require.NoError(t, err)
	v, ok := payload.Lookup("Result", "Form", "ID")
	require.True(t, ok)
	assert.Equal(t, json.Number("55"), v)
	assert.Equal(t, "", payload.ErrorMessage())
}

func TestBudgetSynthesizesRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"Result":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		p, err := c.FetchForm(ctx, int64(i))
		require.NoError(t, err)
		assert.Empty(t, p.ErrorMessage())
	}

	p, err := c.FetchForm(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, RateLimitMessage, p.ErrorMessage())
	assert.ErrorIs(t, Classify(p.ErrorMessage()), model.ErrRateLimitExceeded)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDownloadURLAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["ReturnDownloadUrl"])
		if body["FileID"] == float64(1) {
			w.Write([]byte(`{"Result":{"DownloadUrl":"` + srvURL + `/blob/ok"}}`))
			return
		}
		w.Write([]byte(`{"Result":{"DownloadUrl":"` + srvURL + `/blob/gone"}}`))
	})
	mux.HandleFunc("/blob/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PDFDATA"))
	})
	mux.HandleFunc("/blob/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(t, srv, 0)
	ctx := context.Background()

	u, err := c.FetchDownloadURL(ctx, 1)
	require.NoError(t, err)
	rc, err := c.Download(ctx, u)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "PDFDATA", string(data))

	u, err = c.FetchDownloadURL(ctx, 2)
	require.NoError(t, err)
	_, err = c.Download(ctx, u)
	assert.ErrorIs(t, err, model.ErrAttachmentDownloadFailed)
}

func TestFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Fetch(context.Background(), srv.URL+"/groups", struct{}{})
	assert.ErrorIs(t, err, model.ErrMalformedResponse)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(""))
	assert.ErrorIs(t, Classify("API daily limit reached"), model.ErrRateLimitExceeded)
	assert.ErrorIs(t, Classify("Process is archived"), model.ErrProcessArchived)
	assert.ErrorIs(t, Classify("User lacks permission to view process 4"), model.ErrPermissionDenied)
	assert.ErrorIs(t, Classify("Form not found"), model.ErrFormUnavailable)
}
