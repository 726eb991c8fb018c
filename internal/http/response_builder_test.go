package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
}

func TestHTMXResponseBuilder_DatasetTriggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerDatasetLoaded("upload:results.csv", 60, 1234).
		TriggerSuccessNotification("Loaded").
		Write(w)

	var got map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	var loaded struct {
		Source string `json:"source"`
		Rows   int    `json:"rows"`
		Total  int64  `json:"total"`
	}
	if err := json.Unmarshal(got[EventDatasetLoaded], &loaded); err != nil {
		t.Fatalf("dataset:loaded payload: %v", err)
	}
	if loaded.Source != "upload:results.csv" || loaded.Rows != 60 || loaded.Total != 1234 {
		t.Errorf("dataset:loaded = %+v", loaded)
	}
	if !strings.Contains(string(got[EventNotification]), `"type":"success"`) {
		t.Errorf("notification = %s", got[EventNotification])
	}
}

func TestHTMXResponseBuilder_ResetAndFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().TriggerDatasetReset().Write(w)
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"dataset:reset"`) {
		t.Errorf("missing dataset:reset: %s", w.Header().Get("HX-Trigger"))
	}

	w = httptest.NewRecorder()
	UnprocessableEntityError("bad grade").TriggerUploadFailed("bad grade").Write(w)
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"upload:failed":{"message":"bad grade"}`) {
		t.Errorf("missing upload:failed: %s", w.Header().Get("HX-Trigger"))
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestHTMXResponseBuilder_Redirect(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	w := httptest.NewRecorder()
	NewHTMXResponse().Redirect(req, "/").Write(w)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("plain redirect: code=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	req.Header.Set("HX-Request", "true")
	w = httptest.NewRecorder()
	NewHTMXResponse().Redirect(req, "/").Write(w)
	if w.Code != http.StatusOK || w.Header().Get("HX-Redirect") != "/" {
		t.Errorf("htmx redirect: code=%d hx-redirect=%q", w.Code, w.Header().Get("HX-Redirect"))
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `<div class="error" role="alert">Invalid input</div>`,
		},
		{
			name:       "unprocessable entity",
			builder:    UnprocessableEntityError("missing required column(s): Count"),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `<div class="error" role="alert">missing required column(s): Count</div>`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `<div class="error" role="alert">Something broke</div>`,
		},
		{
			name:       "not found",
			builder:    NotFoundError("Unknown division"),
			wantStatus: http.StatusNotFound,
			wantBody:   `<div class="error" role="alert">Unknown division</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewHTMXResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
