package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"gradeboard/internal/core"
	"gradeboard/internal/dashboard"
	"gradeboard/internal/loader"
	applog "gradeboard/internal/log"
	"gradeboard/internal/services"
	"gradeboard/internal/session"
)

// pageData is shared by every full page.
type pageData struct {
	Title          string
	Active         string
	Path           string
	Divisions      []core.Division
	Source         string
	Uploaded       bool
	LoadedAt       time.Time
	LastError      string
	MaxUploadBytes int64
	Columns        []string

	Overview dashboard.Overview
	View     dashboard.DivisionView
	Rows     [][]dashboard.ClassPanel
	Chart    dashboard.ChartType
}

func (s *Server) newPage(v view, title, active, path string) pageData {
	return pageData{
		Title:          title,
		Active:         active,
		Path:           path,
		Divisions:      navDivisions(v.Table),
		Source:         v.Source,
		Uploaded:       v.Session.Uploaded,
		LoadedAt:       v.Session.LoadedAt,
		LastError:      v.Session.LastError,
		MaxUploadBytes: s.opts.MaxUploadBytes,
		Columns:        loader.Columns,
	}
}

// UploadStatus is the sidebar upload panel of a full page.
func (p pageData) UploadStatus() uploadStatus {
	return uploadStatus{
		Source:         p.Source,
		Uploaded:       p.Uploaded,
		LoadedAt:       p.LoadedAt,
		Error:          p.LastError,
		MaxUploadBytes: p.MaxUploadBytes,
		Columns:        p.Columns,
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady checks that templates parsed and the default dataset can be
// read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if t, err := s.defaultTable(ctx); err != nil {
		checks["dataset"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["dataset"] = map[string]interface{}{
			"status": "ok",
			"source": s.opts.SourceName,
			"rows":   t.Len(),
		}
	}

	checks["sessions"] = map[string]interface{}{"active": s.sessions.Len()}
	checks["rate_limiter"] = map[string]interface{}{"active_clients": s.rateLimiter.ActiveClients()}

	_ = writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	metric := func(name, help, kind string, value interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime)
	metric("uploads_total", "Successful uploads", "counter", atomic.LoadInt64(&s.appMetrics.uploads))
	metric("upload_errors_total", "Rejected uploads", "counter", atomic.LoadInt64(&s.appMetrics.uploadErrors))
	metric("dataset_cache_hits_total", "Default dataset cache hits", "counter", atomic.LoadInt64(&s.appMetrics.datasetHits))
	metric("dataset_cache_misses_total", "Default dataset cache misses", "counter", atomic.LoadInt64(&s.appMetrics.datasetMisses))
	metric("sessions_active", "Live browser sessions", "gauge", s.sessions.Len())
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("suspicious_requests_total", "Requests flagged by the detector", "counter", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "Scanner requests answered with 404", "counter", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	data := s.newPage(v, "School Overview", "overview", "/")
	data.Overview = dashboard.BuildOverview(v.Table)
	s.render(w, r, "index", data)
}

func (s *Server) handleDivision(w http.ResponseWriter, r *http.Request) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	slug := r.PathValue("slug")
	d, ok := resolveDivision(slug, v.Table)
	if !ok || d == "" {
		NotFoundError(fmt.Sprintf("Unknown division %q", sanitizeInput(slug))).Write(w)
		return
	}

	data := s.newPage(v, string(d)+" School", d.Slug(), r.URL.RequestURI())
	data.View = dashboard.BuildDivisionView(v.Table, d)
	data.Rows = data.View.Rows(2)
	data.Chart = dashboard.ParseChartType(r.URL.Query().Get("chart"))

	name := "division"
	if isHTMX(r) && r.Header.Get("HX-Target") == "class-panels" {
		name = "class_panels"
	}
	s.render(w, r, name, data)
}

// handleUpload replaces the session table with the posted file. A rejected
// file leaves the previous table in place and answers 422 with the reason.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	sess := s.sessions.Ensure(w, r)

	// Multipart overhead on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+64<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.uploadFailed(w, r, sess.ID, http.StatusRequestEntityTooLarge,
				fmt.Errorf("file exceeds the %d KiB upload limit", s.opts.MaxUploadBytes>>10))
		default:
			s.uploadFailed(w, r, sess.ID, http.StatusBadRequest, errors.New("choose a CSV or XLSX file to upload"))
		}
		return
	}
	defer file.Close()

	b, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		s.uploadFailed(w, r, sess.ID, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(b)) > s.opts.MaxUploadBytes {
		s.uploadFailed(w, r, sess.ID, http.StatusRequestEntityTooLarge,
			fmt.Errorf("file exceeds the %d KiB upload limit", s.opts.MaxUploadBytes>>10))
		return
	}

	filename := sanitizeInput(header.Filename)
	updated, err := s.datasets.Upload(r.Context(), sess.ID, filename, b)
	if err != nil {
		atomicAdd(&s.appMetrics.uploadErrors)
		status := http.StatusUnprocessableEntity
		if !errors.Is(err, loader.ErrFormat) && !errors.Is(err, loader.ErrValue) && !errors.Is(err, services.ErrEmptyUpload) {
			status = http.StatusBadRequest
		}
		s.writeUploadStatus(w, r, status, updated, err, nil)
		return
	}
	atomicAdd(&s.appMetrics.uploads)

	total := core.Aggregate(updated.Table, core.All()).Total()
	logger.InfoContext(r.Context(), "Upload accepted",
		applog.FieldSessionID, updated.ID,
		applog.FieldFilename, filename,
		applog.FieldRows, updated.Table.Len())

	if !isHTMX(r) {
		NewHTMXResponse().Redirect(r, "/").Write(w)
		return
	}
	s.writeUploadStatus(w, r, http.StatusOK, updated, nil,
		func(b *HTMXResponseBuilder) {
			b.TriggerDatasetLoaded(updated.Source, updated.Table.Len(), total).
				TriggerSuccessNotification(fmt.Sprintf("Loaded %s students from %s", formatThousands(total), strings.TrimPrefix(updated.Source, "upload:")))
		})
}

func (s *Server) uploadFailed(w http.ResponseWriter, r *http.Request, sessionID string, status int, err error) {
	atomicAdd(&s.appMetrics.uploadErrors)
	sess := s.sessions.Fail(sessionID, err)
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Upload rejected",
		applog.FieldSessionID, sessionID,
		applog.FieldError, err.Error(),
		applog.FieldStatusCode, status)
	s.writeUploadStatus(w, r, status, sess, err, nil)
}

// uploadStatus feeds the upload panel partial.
type uploadStatus struct {
	Source         string
	Uploaded       bool
	LoadedAt       time.Time
	Error          string
	MaxUploadBytes int64
	Columns        []string
}

// writeUploadStatus answers htmx with the upload panel partial. Plain form
// posts get the overview page so the browser shows the outcome.
func (s *Server) writeUploadStatus(w http.ResponseWriter, r *http.Request, status int, sess session.Session, err error, decorate func(*HTMXResponseBuilder)) {
	if !isHTMX(r) {
		v := view{Session: sess, Table: sess.Table, Source: sess.Source}
		if !sess.Uploaded {
			t, terr := s.defaultTable(r.Context())
			if terr != nil {
				s.serverError(w, r, "Default dataset unavailable", terr)
				return
			}
			v.Table, v.Source = t, s.opts.SourceName
		}
		data := s.newPage(v, "School Overview", "overview", "/")
		data.Overview = dashboard.BuildOverview(v.Table)
		s.renderStatus(w, r, status, "index", data)
		return
	}

	us := uploadStatus{
		Source:         sess.Source,
		Uploaded:       sess.Uploaded,
		LoadedAt:       sess.LoadedAt,
		MaxUploadBytes: s.opts.MaxUploadBytes,
		Columns:        loader.Columns,
	}
	if !sess.Uploaded {
		us.Source = s.opts.SourceName
	}
	b := NewHTMXResponse().Status(status)
	if err != nil {
		us.Error = err.Error()
		b.TriggerUploadFailed(us.Error).TriggerErrorNotification("Upload rejected")
	}
	if decorate != nil {
		decorate(b)
	}

	var buf bytes.Buffer
	if terr := s.templates.ExecuteTemplate(&buf, "upload_status", us); terr != nil {
		s.serverError(w, r, "Template render error", terr)
		return
	}
	b.BodyHTML(buf.Bytes()).Write(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Ensure(w, r)
	s.datasets.Reset(r.Context(), sess.ID)
	NewHTMXResponse().
		TriggerDatasetReset().
		TriggerSuccessNotification("Showing the default dataset").
		Redirect(r, "/").
		Write(w)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "csv", "text/csv; charset=utf-8", loader.WriteCSV)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", loader.WriteXLSX)
}

// export writes the current table in loader format, so the file can be
// uploaded again unchanged.
func (s *Server) export(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, core.Table) error) {
	v, err := s.currentView(w, r)
	if err != nil {
		s.serverError(w, r, "Default dataset unavailable", err)
		return
	}
	var buf bytes.Buffer
	if err := write(&buf, v.Table); err != nil {
		s.serverError(w, r, "Export failed", err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Dataset exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldSource, v.Source,
		applog.FieldRows, v.Table.Len(),
		"format", ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="grades.%s"`, ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus executes into a buffer first so a template error never leaves
// a half-written page behind.
func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template render error",
			"template", name,
			applog.FieldComponent, applog.ComponentTemplate,
			applog.FieldError, err.Error())
		InternalServerError("Page could not be rendered").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogError(r.Context(), msg, err, applog.ComponentHTTP, applog.OpRead,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
	InternalServerError(msg).Write(w)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}

