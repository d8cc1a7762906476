package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"go-cube-export/internal/model"
	"go-cube-export/internal/remote"
	"go-cube-export/internal/store"
)

var testEndpoints = model.Endpoints{
	Groups:    "groups",
	Processes: "processes",
	Forms:     "forms",
	Data:      "data",
	Files:     "files",
}

// decodePayload decodes raw the way the HTTP client does, numbers as json.Number.
func decodePayload(t testing.TB, raw string) model.Payload {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var p model.Payload
	require.NoError(t, dec.Decode(&p))
	return p
}

func mustSpec(t testing.TB, raw string) model.ExtractionSpec {
	t.Helper()
	var s model.ExtractionSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s
}

func mustRowSpec(t testing.TB, raw string) *model.RowSpec {
	t.Helper()
	var r model.RowSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return &r
}

// formJSON builds a Result.Form payload with a Status and an Amount field.
func formJSON(id int64, number, started, status string, files ...model.Attachment) string {
	fj, _ := json.Marshal(files)
	if files == nil {
		fj = []byte("[]")
	}
	return fmt.Sprintf(`{"Result":{"Form":{
		"ID": %d,
		"Number": %q,
		"Started": %q,
		"Files": %s,
		"Fields": [
			{"Field": "Status", "Uid": "f-status", "Value": %q},
			{"Field": "Amount", "Uid": "f-amount", "Value": "12"}
		]
	}}}`, id, number, started, fj, status)
}

// --- remote ---

type fakeClient struct {
	t  testing.TB
	mu sync.Mutex

	listings map[string]string
	forms    map[int64]string // processID -> forms listing
	payloads map[int64]string // formID -> Result.Form payload
	files    map[int64][]byte // fileID -> content; missing ids fail to download

	// formBudget limits FetchForm calls before the rate-limit message; 0 is unlimited.
	formBudget int
	formCalls  int
	fetched    []int64
}

func newFakeClient(t testing.TB) *fakeClient {
	return &fakeClient{
		t:        t,
		listings: map[string]string{},
		forms:    map[int64]string{},
		payloads: map[int64]string{},
		files:    map[int64][]byte{},
	}
}

func (c *fakeClient) Fetch(_ context.Context, url string, body interface{}) (model.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if url == testEndpoints.Forms {
		pid, _ := body.(map[string]interface{})["ProcessID"].(int64)
		raw, ok := c.forms[pid]
		if !ok {
			raw = `{"Result":{"Forms":[]}}`
		}
		return decodePayload(c.t, raw), nil
	}
	raw, ok := c.listings[url]
	if !ok {
		return nil, fmt.Errorf("unexpected url %s", url)
	}
	return decodePayload(c.t, raw), nil
}

func (c *fakeClient) FetchForm(_ context.Context, formID int64) (model.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formCalls++
	if c.formBudget > 0 && c.formCalls > c.formBudget {
		return model.ErrorPayload(remote.RateLimitMessage), nil
	}
	c.fetched = append(c.fetched, formID)
	raw, ok := c.payloads[formID]
	if !ok {
		return model.ErrorPayload("Form not found"), nil
	}
	return decodePayload(c.t, raw), nil
}

func (c *fakeClient) FetchDownloadURL(_ context.Context, fileID int64) (string, error) {
	return "mem://" + strconv.FormatInt(fileID, 10), nil
}

func (c *fakeClient) Download(_ context.Context, url string) (io.ReadCloser, error) {
	id, _ := strconv.ParseInt(strings.TrimPrefix(url, "mem://"), 10, 64)
	c.mu.Lock()
	data, ok := c.files[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: status 404", model.ErrAttachmentDownloadFailed)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// --- store ---

type formKey struct{ process, form int64 }

type fakeStore struct {
	mu        sync.Mutex
	groups    map[int64]string
	processes map[int64]model.Process
	forms     map[formKey]bool
	resets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:    map[int64]string{},
		processes: map[int64]model.Process{},
		forms:     map[formKey]bool{},
	}
}

var _ store.MetadataStore = (*fakeStore)(nil)

func (s *fakeStore) UpsertGroup(_ context.Context, g model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		s.groups[g.ID] = g.Name
	}
	return nil
}

func (s *fakeStore) UpsertProcess(_ context.Context, p model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processes[p.ID]; !ok {
		s.processes[p.ID] = p
	}
	return nil
}

func (s *fakeStore) UpsertForm(_ context.Context, f model.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := formKey{f.ProcessID, f.ID}
	if _, ok := s.forms[k]; !ok {
		s.forms[k] = f.Completed
	}
	return nil
}

func (s *fakeStore) GroupName(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.groups[id]; ok {
		return n, nil
	}
	return store.UnsortedGroup, nil
}

func (s *fakeStore) GetProcess(_ context.Context, id int64) (model.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[id]
	if !ok {
		return p, fmt.Errorf("process %d: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (s *fakeStore) ProcessEnabled(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bool(s.processes[id].Enabled), nil
}

func (s *fakeStore) ListEnabledProcesses(context.Context) ([]model.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Process
	for _, p := range s.processes {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ResetProcess(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	for k := range s.forms {
		if k.process == id {
			s.forms[k] = false
		}
	}
	return nil
}

func (s *fakeStore) PendingForms(_ context.Context, id int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for k, done := range s.forms {
		if k.process == id && !done {
			out = append(out, k.form)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *fakeStore) Session(context.Context) (store.FormSession, error) {
	return &fakeSession{s: s}, nil
}

func (s *fakeStore) completed(processID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for k, done := range s.forms {
		if k.process == processID && done {
			out = append(out, k.form)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *fakeStore) addForms(processID int64, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.forms[formKey{processID, id}] = false
	}
}

type fakeSession struct{ s *fakeStore }

func (f *fakeSession) MarkFormComplete(_ context.Context, processID, formID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	k := formKey{processID, formID}
	if _, ok := f.s.forms[k]; !ok {
		return fmt.Errorf("form %d: %w", formID, model.ErrNotFound)
	}
	f.s.forms[k] = true
	return nil
}

func (f *fakeSession) Close() error { return nil }

// --- sink ---

type memSheet struct {
	header []string
	rows   [][]interface{}
}

// memSink keeps workbooks in memory but touches the file on disk so the
// workbook-exists check sees it. It flags overlapping calls.
type memSink struct {
	mu       sync.Mutex
	books    map[string]map[string]*memSheet
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func newMemSink() *memSink {
	return &memSink{books: map[string]map[string]*memSheet{}}
}

func (m *memSink) enter() func() {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	return func() { m.inFlight.Add(-1) }
}

func (m *memSink) Sheets(path string) ([]string, error) {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	var out []string
	for name := range book {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memSink) Create(path, sheet string, header []string, row []interface{}) error {
	defer m.enter()()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[path] = map[string]*memSheet{sheet: {header: header, rows: [][]interface{}{row}}}
	return nil
}

func (m *memSink) AddSheet(path, sheet string, header []string, row []interface{}) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[path][sheet] = &memSheet{header: header, rows: [][]interface{}{row}}
	return nil
}

func (m *memSink) AppendRow(path, sheet string, row []interface{}) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.books[path][sheet]
	s.rows = append(s.rows, row)
	return nil
}

func (m *memSink) sheet(path, name string) *memSheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.books[path]; ok {
		return book[name]
	}
	return nil
}

// --- renderer ---

type fakeRenderer struct {
	mu    sync.Mutex
	seen  map[string]string // pdf path -> html content at print time
	calls int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{seen: map[string]string{}}
}

func (r *fakeRenderer) RenderPDF(_ context.Context, htmlPath, pdfPath string) error {
	content, err := os.ReadFile(htmlPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.calls++
	r.seen[pdfPath] = string(content)
	r.mu.Unlock()
	return os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0644)
}
