package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchWildcardRoute(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/api/v1/runs/abc", "/api/v1/runs/*", true},
		{"/api/v1/runs", "/api/v1/runs/*", true},
		{"/api/v1/processes/12/progress", "/api/v1/processes/*/progress", true},
		{"/api/v1/processes/12/enable", "/api/v1/processes/*/progress", false},
		{"/swagger/index.html", "/swagger/*", true},
		{"/other", "/swagger/*", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchWildcardRoute(tc.path, tc.pattern), "%s vs %s", tc.path, tc.pattern)
	}
}

func TestRouterDispatch(t *testing.T) {
	r := New(nil)
	r.GET("/api/v1/processes/*/progress", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(Segment(req.URL.Path, 3)))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/processes/42/progress", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/processes/42/progress", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
