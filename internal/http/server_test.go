package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gradeboard/internal/core"
	"gradeboard/internal/dashboard"
	"gradeboard/internal/loader"
	"gradeboard/internal/session"
)

type tableSource struct {
	t     core.Table
	err   error
	calls int64
	delay time.Duration
}

func (s *tableSource) ReadTable(ctx context.Context) (core.Table, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.t, s.err
}

func (s *tableSource) SourceName() string { return "test-sample" }

const uploadCSV = "Division,Class,Grade,Count\n" +
	"Primary,Class 1,A,5\n" +
	"Primary,Class 1,A,3\n" +
	"Primary,Class 1,B,2\n" +
	"Secondary,Class 4,U,4\n"

func newTestServer(t *testing.T, src *tableSource, opts Options) *Server {
	t.Helper()
	if src == nil {
		src = &tableSource{t: loader.Sample()}
	}
	opts.LoaderOptions = loader.DefaultOptions()
	srv, err := NewServer(":0", src, session.NewStore(100, time.Hour), opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// client replays the session cookie like a browser.
type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rr := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.Name == session.CookieName {
			c.cookie = ck
		}
	}
	return rr
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) upload(filename, content string, htmx bool) *httptest.ResponseRecorder {
	c.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		c.t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return c.do(req)
}

func (c *client) overview() map[string]interface{} {
	c.t.Helper()
	rr := c.get("/api/overview")
	if rr.Code != http.StatusOK {
		c.t.Fatalf("overview status=%d", rr.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		c.t.Fatalf("overview json: %v", err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}

	rr := c.get("/")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"School Overview", "Primary vs Secondary Comparison", "Pass Rate", "test-sample"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if c.cookie == nil {
		t.Fatal("session cookie not set")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing security headers")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if rr := c.get(path); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	if rr := c.get("/nope"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestDivisionPage(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}

	rr := c.get("/division/primary?chart=pie")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Primary School Detailed View", "Class 1", "Class 3", "type=pie", "Number of Classes"} {
		if !strings.Contains(body, want) {
			t.Errorf("division body missing %q", want)
		}
	}
	if !strings.Contains(body, "class=Class%201") {
		t.Error("primary class chart missing")
	}
	if strings.Contains(body, "class=Class%204") {
		t.Error("secondary class chart on primary page")
	}

	req := httptest.NewRequest(http.MethodGet, "/division/secondary?chart=bar", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "class-panels")
	rr = c.do(req)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "<html") {
		t.Fatalf("partial: status=%d full page=%v", rr.Code, strings.Contains(rr.Body.String(), "<html"))
	}
	if !strings.Contains(rr.Body.String(), `id="class-panels"`) {
		t.Error("partial missing class panels")
	}

	if rr := c.get("/division/nursery"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown division status=%d", rr.Code)
	}
}

func TestUploadReplacesSessionTable(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	sampleTotal := float64(dashboard.BuildOverview(loader.Sample()).Total)

	if got := c.overview()["total"]; got != sampleTotal {
		t.Fatalf("default total = %v, want %v", got, sampleTotal)
	}

	rr := c.upload("results.csv", uploadCSV, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventDatasetLoaded) {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rr.Body.String(), "upload:results.csv") {
		t.Errorf("status partial = %s", rr.Body.String())
	}

	ov := c.overview()
	if ov["total"] != float64(14) || ov["uploaded"] != true {
		t.Fatalf("overview after upload = %v", ov)
	}

	// Another browser still sees the default data.
	other := &client{t: t, srv: c.srv}
	if got := other.overview()["total"]; got != sampleTotal {
		t.Fatalf("other session total = %v", got)
	}
}

func TestUploadFailureKeepsPreviousTable(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	if rr := c.upload("results.csv", uploadCSV, true); rr.Code != http.StatusOK {
		t.Fatalf("first upload status=%d", rr.Code)
	}

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing column", "Division,Class,Grade\nPrimary,Class 1,A\n", "missing required column(s): Count"},
		{"bad grade", "Division,Class,Grade,Count\nPrimary,Class 1,F,3\n", "column Grade"},
		{"negative count", "Division,Class,Grade,Count\nPrimary,Class 1,A,-1\n", "column Count"},
		{"empty", "", "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := c.upload("bad.csv", tt.content, true)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q: %s", tt.want, rr.Body.String())
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), EventUploadFailed) {
				t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
			}
			if got := c.overview()["total"]; got != float64(14) {
				t.Fatalf("previous table lost, total = %v", got)
			}
		})
	}
}

func TestUploadWithoutHTMX(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}

	rr := c.upload("results.csv", uploadCSV, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Fatalf("status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = c.upload("bad.csv", "Division,Class\n", false)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("failure status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<html") || !strings.Contains(rr.Body.String(), "Upload rejected") {
		t.Error("plain form failure should render the page with the error")
	}
}

func TestUploadTooLarge(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{MaxUploadBytes: 64})}
	rr := c.upload("results.csv", uploadCSV+strings.Repeat("Primary,Class 2,C,1\n", 10), true)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	if rr := c.do(req); rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestReset(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	c.upload("results.csv", uploadCSV, true)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set("HX-Request", "true")
	rr := c.do(req)
	if rr.Header().Get("HX-Redirect") != "/" {
		t.Fatalf("HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
	}
	if ov := c.overview(); ov["uploaded"] != false || ov["source"] != "test-sample" {
		t.Fatalf("overview after reset = %v", ov)
	}
}

func TestCharts(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}

	for _, path := range []string{
		"/charts/distribution.svg",
		"/charts/distribution.svg?division=secondary&class=Class%205&type=pie",
		"/charts/distribution.svg?division=Primary&class=Nope",
		"/charts/comparison.svg?division=primary",
		"/charts/divisions.svg?w=900&h=99999",
	} {
		rr := c.get(path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "image/svg+xml" {
			t.Errorf("%s content type %q", path, ct)
		}
		if !strings.Contains(rr.Body.String(), "<svg") {
			t.Errorf("%s is not svg", path)
		}
	}

	if rr := c.get("/charts/distribution.svg?division=Nursery"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown division status=%d", rr.Code)
	}
}

func TestAPIDistributionAndMatrix(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	c.upload("results.csv", uploadCSV, true)

	rr := c.get("/api/distribution?division=primary&class=Class%201")
	var dist struct {
		Labels   []string `json:"labels"`
		Datasets []struct {
			Data []int64 `json:"data"`
		} `json:"datasets"`
		Total    int64   `json:"total"`
		PassRate float64 `json:"pass_rate"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dist); err != nil {
		t.Fatalf("json: %v", err)
	}
	want := []int64{0, 8, 2, 0, 0, 0, 0}
	if len(dist.Datasets) != 1 || len(dist.Datasets[0].Data) != 7 {
		t.Fatalf("datasets = %+v", dist.Datasets)
	}
	for i, v := range want {
		if dist.Datasets[0].Data[i] != v {
			t.Fatalf("data = %v, want %v", dist.Datasets[0].Data, want)
		}
	}
	if strings.Join(dist.Labels, ",") != "A*,A,B,C,D,E,U" || dist.Total != 10 || dist.PassRate != 100 {
		t.Fatalf("distribution = %+v", dist)
	}

	rr = c.get("/api/matrix?division=secondary")
	var m struct {
		Labels   []string `json:"labels"`
		Datasets []struct {
			Label string  `json:"label"`
			Data  []int64 `json:"data"`
		} `json:"datasets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(m.Labels) != 1 || m.Labels[0] != "Class 4" || len(m.Datasets) != 7 {
		t.Fatalf("matrix = %+v", m)
	}
	if m.Datasets[6].Label != "U" || m.Datasets[6].Data[0] != 4 {
		t.Fatalf("U row = %+v", m.Datasets[6])
	}

	if rr := c.get("/api/distribution?division=Nursery"); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown division status=%d", rr.Code)
	}
}

func TestExportRoundTrip(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	c.upload("results.csv", uploadCSV, true)

	rr := c.get("/export.csv")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Content-Disposition"), "grades.csv") {
		t.Fatalf("status=%d disposition=%q", rr.Code, rr.Header().Get("Content-Disposition"))
	}
	reloaded, err := loader.LoadFromFile(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("reload export: %v", err)
	}
	if got := core.Aggregate(reloaded, core.All()); got != (core.Distribution{0, 8, 2, 0, 0, 0, 4}) {
		t.Fatalf("reloaded distribution = %v", got)
	}

	rr = c.get("/export.xlsx")
	if rr.Code != http.StatusOK {
		t.Fatalf("xlsx status=%d", rr.Code)
	}
	fromXLSX, err := loader.FromXLSX(rr.Body.Bytes(), loader.DefaultOptions())
	if err != nil {
		t.Fatalf("reload xlsx: %v", err)
	}
	if fromXLSX.Len() != reloaded.Len() {
		t.Fatalf("xlsx rows = %d, csv rows = %d", fromXLSX.Len(), reloaded.Len())
	}
}

func TestDefaultTableLoadedOnce(t *testing.T) {
	src := &tableSource{t: loader.Sample(), delay: 20 * time.Millisecond}
	srv := newTestServer(t, src, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/overview", nil))
			if rr.Code != http.StatusOK {
				t.Errorf("status=%d", rr.Code)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt64(&src.calls); n != 1 {
		t.Fatalf("ReadTable called %d times, want 1", n)
	}
}

func TestDefaultTableError(t *testing.T) {
	src := &tableSource{err: errors.New("sheet unavailable")}
	c := &client{t: t, srv: newTestServer(t, src, Options{})}

	if rr := c.get("/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
	if rr := c.get("/"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("index status=%d", rr.Code)
	}
	if rr := c.get("/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}

	// An upload does not need the default table.
	c.upload("results.csv", uploadCSV, true)
	if rr := c.get("/"); rr.Code != http.StatusOK {
		t.Fatalf("index after upload status=%d", rr.Code)
	}
}

func TestUploadRateLimited(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{UploadsPerMinute: 1})}
	if rr := c.upload("results.csv", uploadCSV, true); rr.Code != http.StatusOK {
		t.Fatalf("first upload status=%d", rr.Code)
	}
	rr := c.upload("results.csv", uploadCSV, true)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rr := c.get("/"); rr.Code != http.StatusOK {
		t.Fatalf("GET should not be limited, status=%d", rr.Code)
	}
}

func TestScannerPathNotFound(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	if rr := c.get("/.env"); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestStaticAssetsServed(t *testing.T) {
	c := &client{t: t, srv: newTestServer(t, nil, Options{})}
	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		rr := c.get(path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Body.Len() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
	if rr := c.get("/static/missing.js"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing asset status=%d", rr.Code)
	}
}
