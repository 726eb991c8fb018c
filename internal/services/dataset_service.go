// Package services orchestrates uploads across the loader, the session store
// and the event publisher.
package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"gradeboard/internal/amqp"
	"gradeboard/internal/core"
	"gradeboard/internal/loader"
	applog "gradeboard/internal/log"
	"gradeboard/internal/session"
)

const publishTimeout = 3 * time.Second

// ErrEmptyUpload is returned for a zero-byte file.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// Publisher announces successful uploads.
type Publisher interface {
	PublishDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error
}

// DatasetService swaps session tables in response to uploads and resets.
type DatasetService struct {
	sessions  *session.Store
	publisher Publisher
	opts      loader.Options
	logger    *applog.Logger
}

// NewDatasetService creates the service. publisher may be nil.
func NewDatasetService(sessions *session.Store, publisher Publisher, opts loader.Options) *DatasetService {
	return &DatasetService{
		sessions:  sessions,
		publisher: publisher,
		opts:      opts,
		logger:    applog.WithComponent(applog.ComponentLoader),
	}
}

// Upload parses b and, on success, makes it the session's table. On failure
// the session keeps its previous table and records the error, which is
// returned unchanged so callers can match loader.ErrFormat or ErrValue.
func (s *DatasetService) Upload(ctx context.Context, sessionID, filename string, b []byte) (session.Session, error) {
	if len(b) == 0 {
		return s.sessions.Fail(sessionID, ErrEmptyUpload), ErrEmptyUpload
	}

	t, err := loader.Load(filename, b, s.opts)
	if err != nil {
		sess := s.sessions.Fail(sessionID, err)
		s.logger.WarnContext(ctx, "Upload rejected",
			applog.FieldSessionID, sessionID,
			applog.FieldFilename, filename,
			applog.FieldError, err.Error(),
			"error_type", errorType(err))
		return sess, err
	}

	source := UploadSource(filename)
	sess := s.sessions.Replace(sessionID, t, source)
	applog.NewStructuredLogger(s.logger).LogDatasetLoaded(ctx, sessionID, source,
		t.Len(), len(t.Classes("")), core.Aggregate(t, core.All()).Total())
	s.publish(ctx, sess)
	return sess, nil
}

// Reset returns the session to the default dataset.
func (s *DatasetService) Reset(ctx context.Context, sessionID string) session.Session {
	sess := s.sessions.Reset(sessionID)
	s.logger.InfoContext(ctx, "Session reset to default dataset",
		applog.FieldSessionID, sessionID,
		applog.FieldOperation, applog.OpReset)
	return sess
}

// publish never fails the upload: the table is already installed.
func (s *DatasetService) publish(ctx context.Context, sess session.Session) {
	if s.publisher == nil {
		return
	}
	msg := NewLoadedMessage(sess)

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.PublishDatasetLoaded(pctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish dataset event",
			applog.FieldSessionID, sess.ID,
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
}

// NewLoadedMessage summarises the session table for the audit queue.
func NewLoadedMessage(sess session.Session) *amqp.DatasetLoadedMessage {
	total := core.Aggregate(sess.Table, core.All()).Total()
	return amqp.NewDatasetLoadedMessage(sess.ID, sess.Source, sess.Table.Len(), len(sess.Table.Classes("")), total)
}

// UploadSource names an uploaded file for logs and the page footer.
func UploadSource(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return "upload:" + name
}

func errorType(err error) string {
	switch {
	case errors.Is(err, loader.ErrFormat):
		return applog.ErrorTypeFormat
	case errors.Is(err, loader.ErrValue):
		return applog.ErrorTypeValidation
	default:
		return applog.ErrorTypeInternal
	}
}
